// Copyright 2025 Certen Protocol

package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func testLeaves(n int) [][]byte {
	leaves := make([][]byte, n)
	for i := range leaves {
		h := sha256.Sum256([]byte{byte(i)})
		leaves[i] = h[:]
	}
	return leaves
}

func TestBuildTreeRejectsBadInput(t *testing.T) {
	if _, err := BuildTree(nil); err == nil {
		t.Fatalf("expected error for empty leaves")
	}
	if _, err := BuildTree([][]byte{{0x01, 0x02}}); err == nil {
		t.Fatalf("expected error for short leaf")
	}
}

func TestSingleLeafTreeRootIsLeaf(t *testing.T) {
	leaves := testLeaves(1)
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if !bytes.Equal(tree.Root(), leaves[0]) {
		t.Fatalf("single-leaf root = %x, want leaf %x", tree.Root(), leaves[0])
	}
	proof, err := tree.GenerateProof(0)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	ok, err := VerifyProof(leaves[0], proof, tree.Root())
	if err != nil || !ok {
		t.Fatalf("single-leaf proof does not verify: ok=%v err=%v", ok, err)
	}
}

func TestTwoLeafRootIsPairHash(t *testing.T) {
	leaves := testLeaves(2)
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	want := hashPair(leaves[0], leaves[1])
	if !bytes.Equal(tree.Root(), want) {
		t.Fatalf("root = %x, want sha256(l0||l1) = %x", tree.Root(), want)
	}
}

func TestOddLeafPairsWithItself(t *testing.T) {
	leaves := testLeaves(3)
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	left := hashPair(leaves[0], leaves[1])
	right := hashPair(leaves[2], leaves[2])
	want := hashPair(left, right)
	if !bytes.Equal(tree.Root(), want) {
		t.Fatalf("root = %x, want %x", tree.Root(), want)
	}
}

func TestEveryLeafProofVerifies(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13} {
		leaves := testLeaves(n)
		tree, err := BuildTree(leaves)
		if err != nil {
			t.Fatalf("BuildTree(%d): %v", n, err)
		}
		root := tree.Root()
		for i := 0; i < n; i++ {
			proof, err := tree.GenerateProof(i)
			if err != nil {
				t.Fatalf("GenerateProof(%d) of %d: %v", i, n, err)
			}
			ok, err := VerifyProof(leaves[i], proof, root)
			if err != nil {
				t.Fatalf("VerifyProof(%d of %d): %v", i, n, err)
			}
			if !ok {
				t.Fatalf("proof for leaf %d of %d does not verify", i, n)
			}
		}
	}
}

func TestProofRejectsWrongLeaf(t *testing.T) {
	leaves := testLeaves(5)
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	proof, err := tree.GenerateProof(2)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	ok, err := VerifyProof(leaves[3], proof, tree.Root())
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if ok {
		t.Fatalf("proof for leaf 2 must not verify leaf 3")
	}
}

func TestProofRejectsTamperedSibling(t *testing.T) {
	leaves := testLeaves(4)
	tree, err := BuildTree(leaves)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	proof, err := tree.GenerateProof(1)
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	raw, err := hex.DecodeString(proof.Path[0].Hash)
	if err != nil {
		t.Fatalf("decode sibling: %v", err)
	}
	raw[0] ^= 0xff
	proof.Path[0].Hash = hex.EncodeToString(raw)

	ok, err := VerifyProof(leaves[1], proof, tree.Root())
	if err != nil {
		t.Fatalf("VerifyProof: %v", err)
	}
	if ok {
		t.Fatalf("tampered proof must not verify")
	}
}

func TestGenerateProofOutOfRange(t *testing.T) {
	tree, err := BuildTree(testLeaves(2))
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	if _, err := tree.GenerateProof(-1); err == nil {
		t.Fatalf("expected error for negative index")
	}
	if _, err := tree.GenerateProof(2); err == nil {
		t.Fatalf("expected error for index past last leaf")
	}
}

func TestVerifyProofRejectsMalformedInputs(t *testing.T) {
	if _, err := VerifyProof([]byte{0x01}, &InclusionProof{}, make([]byte, 32)); err == nil {
		t.Fatalf("expected error for short leaf hash")
	}
	if _, err := VerifyProof(make([]byte, 32), &InclusionProof{}, []byte{0x01}); err == nil {
		t.Fatalf("expected error for short root")
	}
	bad := &InclusionProof{Path: []ProofNode{{Hash: "zz", Position: Left}}}
	if _, err := VerifyProof(make([]byte, 32), bad, make([]byte, 32)); err == nil {
		t.Fatalf("expected error for non-hex sibling")
	}
}

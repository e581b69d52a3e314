// Copyright 2025 Certen Protocol

package tron

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/untron/intent-solver/pkg/merkle"
)

// fakeNode is an in-memory NodeClient serving a fixed run of blocks, enough
// to exercise the proof builder without a live java-tron.
type fakeNode struct {
	blocks  map[int64]Block
	headers map[int64][]byte
}

func (f *fakeNode) GetNowBlock2(ctx context.Context) (Block, []byte, error) {
	return Block{}, nil, fmt.Errorf("not implemented")
}

func (f *fakeNode) GetBlockByNum2(ctx context.Context, num int64) (Block, []byte, error) {
	b, ok := f.blocks[num]
	if !ok {
		return Block{}, nil, fmt.Errorf("no block %d", num)
	}
	return b, f.headers[num], nil
}

func (f *fakeNode) GetTransactionInfoById(ctx context.Context, txid []byte) (TransactionInfo, error) {
	return TransactionInfo{}, fmt.Errorf("not implemented")
}

func (f *fakeNode) GetAccount(ctx context.Context, addr Address) (Account, error) {
	return Account{}, fmt.Errorf("not implemented")
}

func (f *fakeNode) GetAccountResource(ctx context.Context, addr Address) (AccountResource, error) {
	return AccountResource{}, fmt.Errorf("not implemented")
}

func (f *fakeNode) GetChainParameters(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (f *fakeNode) TriggerConstantContract(ctx context.Context, owner, contract Address, data []byte, callValueSun int64) (int64, []byte, error) {
	return 0, nil, fmt.Errorf("not implemented")
}

func (f *fakeNode) EstimateEnergy(ctx context.Context, owner, contract Address, data []byte, callValueSun int64) (int64, error) {
	return 0, fmt.Errorf("not implemented")
}

func (f *fakeNode) BroadcastTransaction(ctx context.Context, txBytes []byte) error {
	return fmt.Errorf("not implemented")
}

func (f *fakeNode) GetTransactionByID(ctx context.Context, txid []byte) ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func leaf(n byte) []byte {
	h := sha256.Sum256([]byte{n})
	return h[:]
}

func proofFixture(startBlock int64, txids [][]byte) *fakeNode {
	f := &fakeNode{blocks: make(map[int64]Block), headers: make(map[int64][]byte)}
	for i := int64(0); i < 20; i++ {
		num := startBlock + i
		b := Block{Header: BlockHeaderRaw{Number: num}}
		if i == 0 {
			b.TxIDs = txids
		}
		f.blocks[num] = b
		header := bytes.Repeat([]byte{byte(num)}, 174)
		f.headers[num] = header
	}
	return f
}

func TestBuildInclusionProofTwentyBlocks(t *testing.T) {
	txids := [][]byte{leaf(1), leaf(2), leaf(3), leaf(4), leaf(5)}
	target := txids[3]
	node := proofFixture(100, txids)
	c := NewClient(node)

	encodedTx := []byte{0x0a, 0x02, 0x12, 0x34}
	proof, err := c.BuildInclusionProof(context.Background(), 100, target, encodedTx)
	if err != nil {
		t.Fatalf("BuildInclusionProof: %v", err)
	}
	if proof.Index != 3 {
		t.Fatalf("index = %d, want 3", proof.Index)
	}
	if !bytes.Equal(proof.EncodedTx, encodedTx) {
		t.Fatalf("encodedTx not carried through")
	}
	for i, h := range proof.Blocks {
		if len(h) != 174 {
			t.Fatalf("block %d header is %d bytes, want 174", i, len(h))
		}
	}
	if !bytes.Equal(proof.Blocks[0], node.headers[100]) || !bytes.Equal(proof.Blocks[19], node.headers[119]) {
		t.Fatalf("block headers not in ascending block order")
	}
}

func TestBuildInclusionProofPathVerifies(t *testing.T) {
	txids := [][]byte{leaf(1), leaf(2), leaf(3), leaf(4), leaf(5)}
	target := txids[2]
	node := proofFixture(200, txids)
	c := NewClient(node)

	proof, err := c.BuildInclusionProof(context.Background(), 200, target, nil)
	if err != nil {
		t.Fatalf("BuildInclusionProof: %v", err)
	}

	tree, err := merkle.BuildTree(txids)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	incl, err := tree.GenerateProof(int(proof.Index))
	if err != nil {
		t.Fatalf("GenerateProof: %v", err)
	}
	ok, err := merkle.VerifyProof(target, incl, tree.Root())
	if err != nil || !ok {
		t.Fatalf("reference path does not verify: ok=%v err=%v", ok, err)
	}

	if len(proof.Proof) != len(incl.Path) {
		t.Fatalf("sibling count = %d, want %d", len(proof.Proof), len(incl.Path))
	}
	for i, sib := range proof.Proof {
		want, err := hex.DecodeString(incl.Path[i].Hash)
		if err != nil {
			t.Fatalf("reference sibling %d: %v", i, err)
		}
		if !bytes.Equal(sib[:], want) {
			t.Fatalf("sibling %d = %x, want %x", i, sib, want)
		}
	}
}

func TestBuildInclusionProofMissingTx(t *testing.T) {
	node := proofFixture(300, [][]byte{leaf(1), leaf(2)})
	c := NewClient(node)
	if _, err := c.BuildInclusionProof(context.Background(), 300, leaf(9), nil); err == nil {
		t.Fatalf("expected error for txid not in block")
	}
}

func TestBuildInclusionProofRejectsBadHeaderLength(t *testing.T) {
	node := proofFixture(400, [][]byte{leaf(1)})
	node.headers[405] = []byte{0x01, 0x02}
	c := NewClient(node)
	if _, err := c.BuildInclusionProof(context.Background(), 400, leaf(1), nil); err == nil {
		t.Fatalf("expected error for malformed packed header")
	}
}

func TestPackedHeaderOffsets(t *testing.T) {
	header := make([]byte, packedHeaderSize)
	for i := range header {
		header[i] = byte(i)
	}
	digest := packedHeaderDigest(header)
	if len(digest) != packedHeaderDigestHi-packedHeaderDigestLo {
		t.Fatalf("digest length = %d", len(digest))
	}
	if digest[0] != 2 {
		t.Fatalf("digest must start at byte 2, got value %d", digest[0])
	}
	sig := packedHeaderSignature(header)
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[0] != packedHeaderSigOffset {
		t.Fatalf("signature must start at byte %d", packedHeaderSigOffset)
	}
}

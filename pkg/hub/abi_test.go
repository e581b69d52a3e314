// Copyright 2025 Certen Protocol

package hub

import (
	"math/big"
	"testing"
)

func TestBuildClaimIntentDataHasSelectorPrefix(t *testing.T) {
	var id [32]byte
	id[31] = 0x09
	data := buildClaimIntentData(id)
	if len(data) != 4+32 {
		t.Fatalf("len(data) = %d, want %d", len(data), 4+32)
	}
	for i, b := range claimIntentSel {
		if data[i] != b {
			t.Fatalf("selector mismatch at %d", i)
		}
	}
}

func TestBuildProveIntentFillDataRoundTrips(t *testing.T) {
	var id [32]byte
	id[0] = 0x01
	var blocks [20][]byte
	for i := range blocks {
		blocks[i] = make([]byte, 174)
		blocks[i][0] = byte(i)
	}
	proof := TronProof{
		Blocks:    blocks,
		EncodedTx: []byte{0xaa, 0xbb},
		Proof:     [][32]byte{{0x01}, {0x02}},
		Index:     big.NewInt(3),
	}
	data := buildProveIntentFillData(id, proof)
	if len(data) < 4 {
		t.Fatalf("data too short")
	}
	values, err := proveIntentFillArgs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	gotID := values[0].([32]byte)
	if gotID != id {
		t.Fatalf("intentId mismatch")
	}
	gotBlocks := values[1].([20][]byte)
	if len(gotBlocks) != 20 || len(gotBlocks[1]) != 174 {
		t.Fatalf("blocks shape mismatch: %d blocks", len(gotBlocks))
	}
	gotIndex := values[4].(*big.Int)
	if gotIndex.Int64() != 3 {
		t.Fatalf("index = %d, want 3", gotIndex.Int64())
	}
}

func TestUnpackAllowance(t *testing.T) {
	packed, err := allowanceReturn.Pack(big.NewInt(42))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	got, err := unpackAllowance(packed)
	if err != nil {
		t.Fatalf("unpackAllowance: %v", err)
	}
	if got.Int64() != 42 {
		t.Fatalf("got %d, want 42", got.Int64())
	}
}

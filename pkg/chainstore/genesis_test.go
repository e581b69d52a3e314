// Copyright 2025 Certen Protocol

package chainstore

import (
	"encoding/hex"
	"testing"
)

func TestComputeEventChainGenesisIsDeterministic(t *testing.T) {
	a := ComputeEventChainGenesis("pool")
	b := ComputeEventChainGenesis("pool")
	if a != b {
		t.Fatalf("genesis for the same index name must be stable: %x != %x", a, b)
	}
}

func TestComputeEventChainGenesisDiffersByIndexName(t *testing.T) {
	pool := ComputeEventChainGenesis("pool")
	forwarder := ComputeEventChainGenesis("forwarder:56")
	if pool == forwarder {
		t.Fatalf("distinct streams must not share a genesis tip")
	}
}

func TestComputeEventChainGenesisIsNonZero(t *testing.T) {
	g := ComputeEventChainGenesis("pool")
	var zero [32]byte
	if g == zero {
		t.Fatalf("genesis must not be the zero hash, got %s", hex.EncodeToString(g[:]))
	}
}

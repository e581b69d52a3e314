// Copyright 2025 Certen Protocol

package aa

import (
	"math/big"
	"testing"
)

func TestRecoverFromAA25(t *testing.T) {
	cases := []struct {
		name        string
		opNonce     int64
		chainNonce  int64
		wantFloor   int64
	}{
		{"op behind chain", 0, 1, 1},
		{"op equal chain", 1, 1, 2},
		{"op ahead of chain", 3, 1, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := RecoverFromAA25(big.NewInt(c.opNonce), big.NewInt(c.chainNonce))
			if got.Int64() != c.wantFloor {
				t.Fatalf("RecoverFromAA25(%d,%d) = %d, want %d", c.opNonce, c.chainNonce, got.Int64(), c.wantFloor)
			}
		})
	}
}

func TestNextNonceFloorTakesMax(t *testing.T) {
	got := NextNonceFloor(big.NewInt(5), big.NewInt(3))
	if got.Int64() != 5 {
		t.Fatalf("NextNonceFloor = %d, want 5", got.Int64())
	}
	got = NextNonceFloor(big.NewInt(2), big.NewInt(3))
	if got.Int64() != 3 {
		t.Fatalf("NextNonceFloor = %d, want 3", got.Int64())
	}
	got = NextNonceFloor(nil, big.NewInt(7))
	if got.Int64() != 7 {
		t.Fatalf("NextNonceFloor(nil,7) = %d, want 7", got.Int64())
	}
}

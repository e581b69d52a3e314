// Copyright 2025 Certen Protocol

package tron

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestAddressEVMRoundTrip(t *testing.T) {
	evm := make([]byte, 20)
	for i := range evm {
		evm[i] = byte(i + 1)
	}
	a := FromEVM(evm)
	if !bytes.Equal(a.EVM(), evm) {
		t.Fatalf("EVM() = %x, want %x", a.EVM(), evm)
	}
	prefixed := a.PrefixedBytes()
	if len(prefixed) != 21 || prefixed[0] != 0x41 {
		t.Fatalf("PrefixedBytes() = %x, want 0x41-prefixed 21 bytes", prefixed)
	}
	if !bytes.Equal(prefixed[1:], evm) {
		t.Fatalf("prefixed tail = %x, want %x", prefixed[1:], evm)
	}
}

func TestAddressBase58CheckRoundTrip(t *testing.T) {
	evm := make([]byte, 20)
	for i := range evm {
		evm[i] = byte(0xa0 + i)
	}
	a := FromEVM(evm)
	s := a.Base58Check()
	if len(s) == 0 || s[0] != 'T' {
		t.Fatalf("Base58Check() = %q, want a T-prefixed address", s)
	}
	back, err := FromBase58Check(s)
	if err != nil {
		t.Fatalf("FromBase58Check(%q): %v", s, err)
	}
	if !bytes.Equal(back.EVM(), evm) {
		t.Fatalf("round trip = %x, want %x", back.EVM(), evm)
	}
}

func TestFromBase58CheckRejectsBadChecksum(t *testing.T) {
	a := FromEVM(make([]byte, 20))
	s := a.Base58Check()
	// Flip the last character to corrupt the checksum; base58 has no 'l' so
	// swapping between two valid alphabet characters keeps decode working.
	last := s[len(s)-1]
	replacement := byte('1')
	if last == '1' {
		replacement = '2'
	}
	corrupted := s[:len(s)-1] + string(replacement)
	if _, err := FromBase58Check(corrupted); err == nil {
		t.Fatalf("expected checksum rejection for %q", corrupted)
	}
}

func TestFromPrefixedBytesRejectsWrongPrefix(t *testing.T) {
	b := make([]byte, 21)
	b[0] = 0x42
	if _, err := FromPrefixedBytes(b); err == nil {
		t.Fatalf("expected rejection of prefix 0x42")
	}
	if _, err := FromPrefixedBytes(b[:20]); err == nil {
		t.Fatalf("expected rejection of 20-byte input")
	}
}

func TestFromPublicKeyMatchesEVMAddress(t *testing.T) {
	key, err := crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	a := FromPublicKey(&key.PublicKey)
	want := crypto.PubkeyToAddress(key.PublicKey)
	if !bytes.Equal(a.EVM(), want.Bytes()) {
		t.Fatalf("FromPublicKey EVM bytes = %x, want %x", a.EVM(), want.Bytes())
	}
}

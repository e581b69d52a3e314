// Copyright 2025 Certen Protocol

package tron

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/untron/intent-solver/pkg/tron/protocol"
)

func testRawTransfer(ownerKeyHex string, t *testing.T) (*protocol.RawTransaction, Address) {
	t.Helper()
	key, err := crypto.HexToECDSA(ownerKeyHex)
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	owner := FromPublicKey(&key.PublicKey)
	to := FromEVM(bytes.Repeat([]byte{0x22}, 20))
	return &protocol.RawTransaction{
		RefBlockBytes: []byte{0x12, 0x34},
		RefBlockHash:  bytes.Repeat([]byte{0xab}, 8),
		RefBlockNum:   4660,
		Timestamp:     1_700_000_000_000,
		Expiration:    1_700_000_060_000,
		Contracts: []*protocol.Contract{{
			Type: protocol.ContractTypeTransfer,
			Transfer: &protocol.TransferContract{
				OwnerAddress: owner.PrefixedBytes(),
				ToAddress:    to.PrefixedBytes(),
				Amount:       1234,
			},
		}},
	}, owner
}

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestSignRawTxidIsSha256OfRawData(t *testing.T) {
	key, _ := crypto.HexToECDSA(testKeyHex)
	raw, _ := testRawTransfer(testKeyHex, t)

	signed, err := signRawWithFeeLimit(raw, key, 0)
	if err != nil {
		t.Fatalf("signRawWithFeeLimit: %v", err)
	}
	want := sha256.Sum256(raw.Marshal())
	if signed.Txid != want {
		t.Fatalf("txid = %x, want %x", signed.Txid, want)
	}
}

func TestSignRawSignatureRecoversSigner(t *testing.T) {
	key, _ := crypto.HexToECDSA(testKeyHex)
	raw, owner := testRawTransfer(testKeyHex, t)

	signed, err := signRawWithFeeLimit(raw, key, 0)
	if err != nil {
		t.Fatalf("signRawWithFeeLimit: %v", err)
	}
	if len(signed.Tx.Signature) != 1 {
		t.Fatalf("signature count = %d, want 1", len(signed.Tx.Signature))
	}
	sig := append([]byte(nil), signed.Tx.Signature[0]...)
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("recovery byte = %d, want 27 or 28", sig[64])
	}

	sig[64] -= 27
	pub, err := crypto.SigToPub(signed.Txid[:], sig)
	if err != nil {
		t.Fatalf("SigToPub: %v", err)
	}
	if got := FromPublicKey(pub); got.Base58Check() != owner.Base58Check() {
		t.Fatalf("recovered signer = %s, want %s", got.Base58Check(), owner.Base58Check())
	}
}

func TestSignRawFeeLimitChangesTxid(t *testing.T) {
	key, _ := crypto.HexToECDSA(testKeyHex)
	raw, _ := testRawTransfer(testKeyHex, t)

	a, err := signRawWithFeeLimit(raw, key, 0)
	if err != nil {
		t.Fatalf("sign pass 1: %v", err)
	}
	b, err := signRawWithFeeLimit(raw, key, 25_000_000)
	if err != nil {
		t.Fatalf("sign pass 2: %v", err)
	}
	if a.Txid == b.Txid {
		t.Fatalf("txid did not change when fee_limit changed")
	}
	if b.FeeLimitSun != 25_000_000 {
		t.Fatalf("FeeLimitSun = %d, want 25000000", b.FeeLimitSun)
	}
}

func TestRawDataBytesRecoversRawData(t *testing.T) {
	key, _ := crypto.HexToECDSA(testKeyHex)
	raw, _ := testRawTransfer(testKeyHex, t)

	signed, err := signRawWithFeeLimit(raw, key, 0)
	if err != nil {
		t.Fatalf("signRawWithFeeLimit: %v", err)
	}
	got, err := RawDataBytes(signed.Tx.Marshal())
	if err != nil {
		t.Fatalf("RawDataBytes: %v", err)
	}
	if !bytes.Equal(got, raw.Marshal()) {
		t.Fatalf("RawDataBytes = %x, want %x", got, raw.Marshal())
	}
	want := sha256.Sum256(got)
	if want != signed.Txid {
		t.Fatalf("sha256(RawDataBytes) = %x, want txid %x", want, signed.Txid)
	}
}

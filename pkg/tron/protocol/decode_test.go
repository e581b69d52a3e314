// Copyright 2025 Certen Protocol

package protocol

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 21, 1<<63 - 1} {
		buf := appendVarint(nil, v)
		got, n, err := readVarint(buf)
		if err != nil {
			t.Fatalf("readVarint(%d): %v", v, err)
		}
		if got != v || n != len(buf) {
			t.Fatalf("readVarint(%d) = (%d, %d), want (%d, %d)", v, got, n, v, len(buf))
		}
	}
}

func TestReadVarintTruncated(t *testing.T) {
	if _, _, err := readVarint([]byte{0x80}); err == nil {
		t.Fatalf("expected error for truncated varint")
	}
}

func TestParseFieldsTransferContract(t *testing.T) {
	c := &TransferContract{
		OwnerAddress: bytes.Repeat([]byte{0x41}, 21),
		ToAddress:    bytes.Repeat([]byte{0x42}, 21),
		Amount:       1234,
	}
	fields, err := ParseFields(c.Marshal())
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	owner, ok := First(fields, 1)
	if !ok || !bytes.Equal(owner.Bytes, c.OwnerAddress) {
		t.Fatalf("field 1 = %x, want owner address", owner.Bytes)
	}
	to, ok := First(fields, 2)
	if !ok || !bytes.Equal(to.Bytes, c.ToAddress) {
		t.Fatalf("field 2 = %x, want to address", to.Bytes)
	}
	amount, ok := First(fields, 3)
	if !ok || amount.Varint != 1234 {
		t.Fatalf("field 3 = %d, want 1234", amount.Varint)
	}
}

func TestParseFieldsTransactionRawData(t *testing.T) {
	raw := &RawTransaction{
		RefBlockBytes: []byte{0xaa, 0xbb},
		RefBlockHash:  bytes.Repeat([]byte{0xcc}, 8),
		RefBlockNum:   7,
		Timestamp:     1000,
		Expiration:    2000,
		FeeLimit:      50,
		Contracts: []*Contract{{
			Type:     ContractTypeTransfer,
			Transfer: &TransferContract{OwnerAddress: []byte{1}, ToAddress: []byte{2}, Amount: 3},
		}},
	}
	tx := &Transaction{RawData: raw, Signature: [][]byte{bytes.Repeat([]byte{0xee}, 65)}}

	fields, err := ParseFields(tx.Marshal())
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	rawField, ok := First(fields, 1)
	if !ok || !bytes.Equal(rawField.Bytes, raw.Marshal()) {
		t.Fatalf("transaction field 1 does not carry raw_data bytes")
	}
	sig, ok := First(fields, 2)
	if !ok || len(sig.Bytes) != 65 {
		t.Fatalf("transaction field 2 = %d bytes, want 65-byte signature", len(sig.Bytes))
	}

	inner, err := ParseFields(rawField.Bytes)
	if err != nil {
		t.Fatalf("ParseFields(raw_data): %v", err)
	}
	if f, ok := First(inner, 18); !ok || f.Varint != 50 {
		t.Fatalf("raw_data fee_limit = %v, want 50", f.Varint)
	}
	if f, ok := First(inner, 11); !ok || len(f.Bytes) == 0 {
		t.Fatalf("raw_data contract field missing")
	}
}

func TestContractMarshalCarriesTypeURL(t *testing.T) {
	c := &Contract{
		Type:     ContractTypeTriggerSmart,
		TriggerSmart: &TriggerSmartContract{OwnerAddress: []byte{1}, ContractAddress: []byte{2}, Data: []byte{0xde, 0xad}},
	}
	fields, err := ParseFields(c.Marshal())
	if err != nil {
		t.Fatalf("ParseFields: %v", err)
	}
	if f, ok := First(fields, 1); !ok || f.Varint != uint64(ContractTypeTriggerSmart) {
		t.Fatalf("contract type = %v, want %d", f.Varint, ContractTypeTriggerSmart)
	}
	anyField, ok := First(fields, 2)
	if !ok {
		t.Fatalf("contract parameter (Any) missing")
	}
	anyFields, err := ParseFields(anyField.Bytes)
	if err != nil {
		t.Fatalf("ParseFields(Any): %v", err)
	}
	url, ok := First(anyFields, 1)
	if !ok || string(url.Bytes) != "type.googleapis.com/protocol.TriggerSmartContract" {
		t.Fatalf("type_url = %q", url.Bytes)
	}
	value, ok := First(anyFields, 2)
	if !ok || !bytes.Equal(value.Bytes, c.TriggerSmart.Marshal()) {
		t.Fatalf("Any value does not match inner contract bytes")
	}
}

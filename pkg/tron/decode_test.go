// Copyright 2025 Certen Protocol

package tron

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeAccount(t *testing.T) {
	addr := bytes.Repeat([]byte{0x41}, 21)
	var raw []byte
	raw = appendBytesField(raw, 1, addr)
	raw = appendVarintField(raw, 2, 123_456_789)

	a, err := decodeAccount(raw)
	if err != nil {
		t.Fatalf("decodeAccount: %v", err)
	}
	if !bytes.Equal(a.Address, addr) {
		t.Fatalf("address = %x", a.Address)
	}
	if a.BalanceSun != 123_456_789 {
		t.Fatalf("balance = %d, want 123456789", a.BalanceSun)
	}
}

func TestDecodeTransactionInfoSuccess(t *testing.T) {
	txid := bytes.Repeat([]byte{0xab}, 32)

	var receipt []byte
	receipt = appendVarintField(receipt, 2, 420)    // energy_fee
	receipt = appendVarintField(receipt, 4, 65_000) // energy_usage_total
	receipt = appendVarintField(receipt, 5, 268)    // net_usage
	receipt = appendVarintField(receipt, 6, 0)      // net_fee

	var raw []byte
	raw = appendBytesField(raw, 1, txid)
	raw = appendVarintField(raw, 2, 1_100_000) // fee
	raw = appendVarintField(raw, 3, 65_000_000)
	raw = appendVarintField(raw, 4, 1_700_000_000_000)
	raw = appendBytesField(raw, 7, receipt)

	ti, err := decodeTransactionInfo(raw)
	if err != nil {
		t.Fatalf("decodeTransactionInfo: %v", err)
	}
	if !bytes.Equal(ti.ID, txid) {
		t.Fatalf("id = %x", ti.ID)
	}
	if ti.Fee != 1_100_000 || ti.BlockNumber != 65_000_000 {
		t.Fatalf("fee=%d block=%d", ti.Fee, ti.BlockNumber)
	}
	if ti.Result != 0 {
		t.Fatalf("result = %d, want 0 (SUCCESS)", ti.Result)
	}
	if ti.Receipt.EnergyUsage != 65_000 || ti.Receipt.EnergyFee != 420 || ti.Receipt.NetUsage != 268 {
		t.Fatalf("receipt = %+v", ti.Receipt)
	}
}

func TestDecodeTransactionInfoFailedResult(t *testing.T) {
	var raw []byte
	raw = appendBytesField(raw, 1, bytes.Repeat([]byte{0x01}, 32))
	raw = appendVarintField(raw, 9, 1) // result = FAILED
	raw = appendBytesField(raw, 10, []byte("REVERT opcode executed"))

	ti, err := decodeTransactionInfo(raw)
	if err != nil {
		t.Fatalf("decodeTransactionInfo: %v", err)
	}
	if ti.Result != 1 {
		t.Fatalf("result = %d, want 1 (FAILED)", ti.Result)
	}
	if string(ti.ResMessage) != "REVERT opcode executed" {
		t.Fatalf("resMessage = %q", ti.ResMessage)
	}
}

func TestDecodeChainParameters(t *testing.T) {
	entry := func(key string, val uint64) []byte {
		var e []byte
		e = appendBytesField(e, 1, []byte(key))
		e = appendVarintField(e, 2, val)
		return e
	}
	var raw []byte
	raw = appendBytesField(raw, 1, entry("getEnergyFee", 420))
	raw = appendBytesField(raw, 1, entry("getTransactionFee", 1_000))

	params, err := decodeChainParameters(raw)
	if err != nil {
		t.Fatalf("decodeChainParameters: %v", err)
	}
	if params["getEnergyFee"] != 420 || params["getTransactionFee"] != 1_000 {
		t.Fatalf("params = %v", params)
	}
}

func TestParseBroadcastResultSuccess(t *testing.T) {
	var raw []byte
	raw = appendVarintField(raw, 1, 1)
	if err := parseBroadcastResult(raw); err != nil {
		t.Fatalf("parseBroadcastResult: %v", err)
	}
}

func TestParseBroadcastResultServerBusyIsRetryable(t *testing.T) {
	var raw []byte
	raw = appendVarintField(raw, 1, 0)
	raw = appendBytesField(raw, 3, []byte("SERVER_BUSY"))
	err := parseBroadcastResult(raw)
	if err == nil {
		t.Fatalf("expected error for rejected broadcast")
	}
	if !errors.Is(err, ErrNodeBusy) {
		t.Fatalf("SERVER_BUSY not classified as node-busy: %v", err)
	}
}

func TestParseBroadcastResultContractFailure(t *testing.T) {
	var raw []byte
	raw = appendVarintField(raw, 1, 0)
	raw = appendBytesField(raw, 3, []byte("CONTRACT_VALIDATE_ERROR"))
	err := parseBroadcastResult(raw)
	if err == nil {
		t.Fatalf("expected error for rejected broadcast")
	}
	if errors.Is(err, ErrNodeBusy) {
		t.Fatalf("contract failure misclassified as node-busy: %v", err)
	}
}

// Copyright 2025 Certen Protocol

package aa

import (
	"bytes"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

func sampleOp() UserOperation {
	return UserOperation{
		Sender:               common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:                big.NewInt(7),
		CallData:             []byte{0xde, 0xad},
		CallGasLimit:         big.NewInt(5_000_000),
		VerificationGasLimit: big.NewInt(6_000_000),
		PreVerificationGas:   big.NewInt(200_000),
		MaxFeePerGas:         big.NewInt(30_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}
}

func TestUserOperationMarshalJSONHexFields(t *testing.T) {
	raw, err := json.Marshal(sampleOp())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["nonce"] != "0x7" {
		t.Fatalf("nonce = %q, want 0x7", got["nonce"])
	}
	if got["callData"] != "0xdead" {
		t.Fatalf("callData = %q, want 0xdead", got["callData"])
	}
	if got["initCode"] != "0x" {
		t.Fatalf("initCode = %q, want 0x for empty bytes", got["initCode"])
	}
	if got["signature"] != "0x" {
		t.Fatalf("signature = %q, want 0x before signing", got["signature"])
	}
}

func TestPackedAccountGasLimits(t *testing.T) {
	packed := packedAccountGasLimits(big.NewInt(0x0102), big.NewInt(0x0304))
	if packed[14] != 0x01 || packed[15] != 0x02 {
		t.Fatalf("verificationGasLimit not in high half: %x", packed)
	}
	if packed[30] != 0x03 || packed[31] != 0x04 {
		t.Fatalf("callGasLimit not in low half: %x", packed)
	}
}

func TestUserOpHashVariesByInputs(t *testing.T) {
	ep := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	chainID := big.NewInt(1)

	op := sampleOp()
	base := op.Hash(ep, chainID)

	bumped := sampleOp()
	bumped.Nonce = big.NewInt(8)
	if op.Hash(ep, chainID) != base {
		t.Fatalf("hash is not deterministic")
	}
	if bumped.Hash(ep, chainID) == base {
		t.Fatalf("hash did not change with nonce")
	}
	if op.Hash(ep, big.NewInt(2)) == base {
		t.Fatalf("hash did not change with chain id")
	}
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if op.Hash(other, chainID) == base {
		t.Fatalf("hash did not change with entrypoint")
	}
}

func TestUserOpHashIgnoresSignature(t *testing.T) {
	ep := common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	op := sampleOp()
	base := op.Hash(ep, big.NewInt(1))
	op.Signature = bytes.Repeat([]byte{0xaa}, 65)
	if op.Hash(ep, big.NewInt(1)) != base {
		t.Fatalf("hash must not cover the signature (it is signed over)")
	}
}

func TestExecuteUserOpWithErrorStringCallData(t *testing.T) {
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data := ExecuteUserOpWithErrorStringCallData(to, big.NewInt(0), []byte{0x01, 0x02})
	wantSel := crypto.Keccak256([]byte("executeUserOpWithErrorString(address,uint256,bytes,uint8)"))[:4]
	if !bytes.Equal(data[:4], wantSel) {
		t.Fatalf("selector = %x, want %x", data[:4], wantSel)
	}
	values, err := executeUserOpArgs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if values[0].(common.Address) != to {
		t.Fatalf("to = %s", values[0])
	}
	if values[3].(uint8) != 0 {
		t.Fatalf("operation = %d, want 0 (CALL)", values[3])
	}
}

func TestDecodeUserOperationEvent(t *testing.T) {
	userOpHash := common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
	sender := common.HexToAddress("0x4444444444444444444444444444444444444444")
	paymaster := common.Address{}

	data, err := userOperationEventArgs.Pack(big.NewInt(9), true, big.NewInt(12345), big.NewInt(67890))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	log := types.Log{
		Topics: []common.Hash{
			UserOperationEventSignature,
			userOpHash,
			common.BytesToHash(sender.Bytes()),
			common.BytesToHash(paymaster.Bytes()),
		},
		Data: data,
	}
	decoded, err := DecodeUserOperationEvent(log)
	if err != nil {
		t.Fatalf("DecodeUserOperationEvent: %v", err)
	}
	if decoded.UserOpHash != userOpHash {
		t.Fatalf("userOpHash = %s, want %s", decoded.UserOpHash, userOpHash)
	}
	if decoded.Sender != sender {
		t.Fatalf("sender = %s, want %s", decoded.Sender, sender)
	}
	if !decoded.Success || decoded.Nonce.Int64() != 9 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.ActualGasCost.Int64() != 12345 || decoded.ActualGasUsed.Int64() != 67890 {
		t.Fatalf("gas accounting = %s / %s", decoded.ActualGasCost, decoded.ActualGasUsed)
	}
}

func TestDecodeUserOperationEventRejectsShortTopics(t *testing.T) {
	if _, err := DecodeUserOperationEvent(types.Log{Topics: []common.Hash{{}}}); err == nil {
		t.Fatalf("expected error for missing indexed topics")
	}
}

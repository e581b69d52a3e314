// Copyright 2025 Certen Protocol

// Package aa builds and submits ERC-4337 v0.7 user operations against an
// external bundler, on behalf of component E's Safe4337 hub backend.
package aa

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is the unpacked v0.7 user operation shape used on the wire
// with bundlers (eth_sendUserOperation / eth_estimateUserOperationGas take
// individually-named hex fields, not the packed on-chain struct).
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// userOpJSON is the bundler wire encoding: every numeric/byte field as a hex
// string, matching the de-facto ERC-4337 JSON-RPC convention.
type userOpJSON struct {
	Sender               string `json:"sender"`
	Nonce                string `json:"nonce"`
	InitCode             string `json:"initCode"`
	CallData             string `json:"callData"`
	CallGasLimit         string `json:"callGasLimit"`
	VerificationGasLimit string `json:"verificationGasLimit"`
	PreVerificationGas   string `json:"preVerificationGas"`
	MaxFeePerGas         string `json:"maxFeePerGas"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	PaymasterAndData     string `json:"paymasterAndData"`
	Signature            string `json:"signature"`
}

func hexBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}

func hexBytes(b []byte) string {
	if len(b) == 0 {
		return "0x"
	}
	return fmt.Sprintf("0x%x", b)
}

// MarshalJSON renders the bundler wire format.
func (op UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(userOpJSON{
		Sender:               op.Sender.Hex(),
		Nonce:                hexBig(op.Nonce),
		InitCode:             hexBytes(op.InitCode),
		CallData:             hexBytes(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     hexBytes(op.PaymasterAndData),
		Signature:            hexBytes(op.Signature),
	})
}

// packedAccountGasLimits packs verificationGasLimit (hi 16 bytes) and
// callGasLimit (lo 16 bytes) into one word, per EIP-4337 v0.7.
func packedAccountGasLimits(verificationGasLimit, callGasLimit *big.Int) [32]byte {
	var out [32]byte
	verificationGasLimit.FillBytes(out[:16])
	callGasLimit.FillBytes(out[16:])
	return out
}

// packedGasFees packs maxPriorityFeePerGas (hi) and maxFeePerGas (lo).
func packedGasFees(maxPriorityFeePerGas, maxFeePerGas *big.Int) [32]byte {
	var out [32]byte
	maxPriorityFeePerGas.FillBytes(out[:16])
	maxFeePerGas.FillBytes(out[16:])
	return out
}

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("aa: bad abi type %q: %v", t, err))
		}
		args[i] = abi.Argument{Type: ty}
	}
	return args
}

var encodeArgs = mustArgs(
	"address", "uint256", "bytes32", "bytes32", "bytes32", "uint256", "bytes32", "bytes32",
)

// Hash computes the userOpHash an EntryPoint v0.7 would derive: keccak256 of
// the packed-struct encoding hashed together with the entry point address and
// chain id.
func (op UserOperation) Hash(entryPoint common.Address, chainID *big.Int) common.Hash {
	accountGasLimits := packedAccountGasLimits(op.VerificationGasLimit, op.CallGasLimit)
	gasFees := packedGasFees(op.MaxPriorityFeePerGas, op.MaxFeePerGas)

	initCodeHash := crypto.Keccak256Hash(op.InitCode)
	callDataHash := crypto.Keccak256Hash(op.CallData)
	paymasterHash := crypto.Keccak256Hash(op.PaymasterAndData)

	packed, err := encodeArgs.Pack(
		op.Sender,
		op.Nonce,
		initCodeHash,
		callDataHash,
		accountGasLimits,
		op.PreVerificationGas,
		gasFees,
		paymasterHash,
	)
	if err != nil {
		panic(fmt.Sprintf("aa: encode userop: %v", err))
	}
	innerHash := crypto.Keccak256Hash(packed)

	final, err := outerHashArgs.Pack(innerHash, entryPoint, chainID)
	if err != nil {
		panic(fmt.Sprintf("aa: encode outer userop hash: %v", err))
	}
	return crypto.Keccak256Hash(final)
}

var outerHashArgs = mustArgs("bytes32", "address", "uint256")

// Copyright 2025 Certen Protocol

package aa

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var getNonceArgs = mustArgs("address", "uint192")
var getNonceReturn = mustArgs("uint256")

// getNonceSelector is the 4-byte selector of getNonce(address,uint192).
var getNonceSelector = crypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]

// GetNonce reads EntryPoint.getNonce(sender, key) via eth_call. v0.7
// accounts use key=0 for the sequential nonce channel the solver relies on.
func GetNonce(ctx context.Context, client *ethclient.Client, entryPoint, sender common.Address, key *big.Int) (*big.Int, error) {
	packed, err := getNonceArgs.Pack(sender, key)
	if err != nil {
		return nil, fmt.Errorf("aa: pack getNonce args: %w", err)
	}
	data := append(append([]byte{}, getNonceSelector...), packed...)

	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("aa: eth_call getNonce: %w", err)
	}
	values, err := getNonceReturn.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("aa: unpack getNonce result: %w", err)
	}
	return values[0].(*big.Int), nil
}

// userOperationEventArgs decodes the non-indexed tail of
// UserOperationEvent(bytes32 indexed userOpHash, address indexed sender,
// address indexed paymaster, uint256 nonce, bool success, uint256
// actualGasCost, uint256 actualGasUsed).
var userOperationEventArgs = mustArgs("uint256", "bool", "uint256", "uint256")

// UserOperationEventSignature is keccak256 of the event's canonical signature.
var UserOperationEventSignature = crypto.Keccak256Hash([]byte(
	"UserOperationEvent(bytes32,address,address,uint256,bool,uint256,uint256)",
))

// DecodedUserOperationEvent is the fully-decoded log, used as the fallback
// path when a bundler no longer retains the userop receipt.
type DecodedUserOperationEvent struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
}

// DecodeUserOperationEvent unpacks one EntryPoint UserOperationEvent log.
func DecodeUserOperationEvent(log types.Log) (*DecodedUserOperationEvent, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("aa: UserOperationEvent log has %d topics, want 4", len(log.Topics))
	}
	values, err := userOperationEventArgs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("aa: unpack UserOperationEvent data: %w", err)
	}
	return &DecodedUserOperationEvent{
		UserOpHash:    log.Topics[1],
		Sender:        common.BytesToAddress(log.Topics[2].Bytes()),
		Paymaster:     common.BytesToAddress(log.Topics[3].Bytes()),
		Nonce:         values[0].(*big.Int),
		Success:       values[1].(bool),
		ActualGasCost: values[2].(*big.Int),
		ActualGasUsed: values[3].(*big.Int),
	}, nil
}

// ExecuteUserOpWithErrorStringCallData builds the Safe4337 module calldata a
// userop's CallData field carries: executeUserOpWithErrorString(to, value,
// data, operation) with operation=0 (CALL).
func ExecuteUserOpWithErrorStringCallData(to common.Address, value *big.Int, data []byte) []byte {
	selector := crypto.Keccak256([]byte("executeUserOpWithErrorString(address,uint256,bytes,uint8)"))[:4]
	packed, err := executeUserOpArgs.Pack(to, value, data, uint8(0))
	if err != nil {
		panic(fmt.Sprintf("aa: pack executeUserOpWithErrorString: %v", err))
	}
	return append(append([]byte{}, selector...), packed...)
}

var executeUserOpArgs = mustArgs("address", "uint256", "bytes", "uint8")

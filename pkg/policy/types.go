// Copyright 2025 Certen Protocol

// Package policy implements component G: the admission gate every open
// intent passes through before the job runner (component I) ever signs
// anything for it. It decodes the ABI-encoded per-type intent_specs,
// applies an ordered chain of basic and per-type static checks, runs
// optional emulation and circuit-breaker checks, and (for delegate_resource
// resell candidates) a profitability check — persisting a stable-reason-code
// row to solver.intent_skips for every rejection so operators can see why a
// given intent was never touched.
package policy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/tron/protocol"
)

// IntentType mirrors the on-chain enum carried in intent_versions.intent_type,
// matching config.intentTypesFromCSV's 0..3 mapping.
type IntentType int16

const (
	IntentTypeTriggerSmartContract IntentType = 0
	IntentTypeUSDTTransfer         IntentType = 1
	IntentTypeTRXTransfer          IntentType = 2
	IntentTypeDelegateResource     IntentType = 3
)

func (t IntentType) String() string {
	switch t {
	case IntentTypeTriggerSmartContract:
		return "trigger_smart_contract"
	case IntentTypeUSDTTransfer:
		return "usdt_transfer"
	case IntentTypeTRXTransfer:
		return "trx_transfer"
	case IntentTypeDelegateResource:
		return "delegate_resource"
	default:
		return "unknown"
	}
}

// Candidate is one open (valid_to_seq is null) intent_versions row, read off
// the indexer's read API, plus its id and escrow amount as already-parsed
// Go values.
type Candidate struct {
	IntentID          [32]byte
	Creator           common.Address
	IntentType        IntentType
	EscrowToken       common.Address
	EscrowAmount      *big.Int
	RefundBeneficiary common.Address
	Deadline          int64
	IntentSpecs       []byte

	Solver          common.Address // zero if unclaimed
	Solved          bool
	Funded          bool
	Settled         bool
	Closed          bool
}

// TriggerSpec decodes intent_specs for IntentTypeTriggerSmartContract:
// abi.encode(address contract, uint256 callValueSun, bytes calldata).
type TriggerSpec struct {
	Contract     common.Address
	CallValueSun *big.Int
	Calldata     []byte
}

// USDTTransferSpec decodes intent_specs for IntentTypeUSDTTransfer:
// abi.encode(address to, uint256 amount).
type USDTTransferSpec struct {
	To     common.Address
	Amount *big.Int
}

// TRXSpec decodes intent_specs for IntentTypeTRXTransfer:
// abi.encode(address to, uint256 amountSun).
type TRXSpec struct {
	To        common.Address
	AmountSun *big.Int
}

// DelegateResourceSpec decodes intent_specs for IntentTypeDelegateResource:
// abi.encode(address receiver, uint8 resource, uint256 balanceSun, uint256 lockPeriodSec, bool resell).
type DelegateResourceSpec struct {
	Receiver      common.Address
	Resource      protocol.ResourceCode
	BalanceSun    *big.Int
	LockPeriodSec *big.Int
	Resell        bool
}

var (
	addressAndUint256 = mustArgs("address", "uint256")
	triggerArgs       = mustArgs("address", "uint256", "bytes")
	delegateArgs      = mustArgs("address", "uint8", "uint256", "uint256", "bool")
)

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("policy: bad abi type %q: %v", t, err))
		}
		args[i] = abi.Argument{Type: ty}
	}
	return args
}

// DecodeUSDTTransfer decodes a usdt_transfer intent's specs.
func DecodeUSDTTransfer(specs []byte) (USDTTransferSpec, error) {
	vals, err := addressAndUint256.Unpack(specs)
	if err != nil {
		return USDTTransferSpec{}, fmt.Errorf("policy: decode usdt_transfer specs: %w", err)
	}
	return USDTTransferSpec{To: vals[0].(common.Address), Amount: vals[1].(*big.Int)}, nil
}

// DecodeTRXTransfer decodes a trx_transfer intent's specs.
func DecodeTRXTransfer(specs []byte) (TRXSpec, error) {
	vals, err := addressAndUint256.Unpack(specs)
	if err != nil {
		return TRXSpec{}, fmt.Errorf("policy: decode trx_transfer specs: %w", err)
	}
	return TRXSpec{To: vals[0].(common.Address), AmountSun: vals[1].(*big.Int)}, nil
}

// DecodeTrigger decodes a trigger_smart_contract intent's specs.
func DecodeTrigger(specs []byte) (TriggerSpec, error) {
	vals, err := triggerArgs.Unpack(specs)
	if err != nil {
		return TriggerSpec{}, fmt.Errorf("policy: decode trigger_smart_contract specs: %w", err)
	}
	return TriggerSpec{
		Contract:     vals[0].(common.Address),
		CallValueSun: vals[1].(*big.Int),
		Calldata:     vals[2].([]byte),
	}, nil
}

// DecodeDelegateResource decodes a delegate_resource intent's specs.
func DecodeDelegateResource(specs []byte) (DelegateResourceSpec, error) {
	vals, err := delegateArgs.Unpack(specs)
	if err != nil {
		return DelegateResourceSpec{}, fmt.Errorf("policy: decode delegate_resource specs: %w", err)
	}
	return DelegateResourceSpec{
		Receiver:      vals[0].(common.Address),
		Resource:      protocol.ResourceCode(vals[1].(uint8)),
		BalanceSun:    vals[2].(*big.Int),
		LockPeriodSec: vals[3].(*big.Int),
		Resell:        vals[4].(bool),
	}, nil
}

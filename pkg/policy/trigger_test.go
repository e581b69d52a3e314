// Copyright 2025 Certen Protocol

package policy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/config"
)

func encodeTriggerSpecs(t *testing.T, contract common.Address, callValue *big.Int, calldata []byte) []byte {
	t.Helper()
	b, err := triggerArgs.Pack(contract, callValue, calldata)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return b
}

func TestCheckTriggerSelectorDenied(t *testing.T) {
	e := New(config.PolicyConfig{
		EnabledIntentTypes:      []int16{0},
		TriggerSelectorDenylist: [][4]byte{{0xde, 0xad, 0xbe, 0xef}},
	}, false, nil, nil, nil)

	contract := common.HexToAddress("0x3333333333333333333333333333333333333333")
	c := Candidate{
		IntentType:  IntentTypeTriggerSmartContract,
		IntentSpecs: encodeTriggerSpecs(t, contract, big.NewInt(0), []byte{0xde, 0xad, 0xbe, 0xef, 0x01}),
	}
	v, err := e.checkTrigger(context.Background(), c)
	if err != nil {
		t.Fatalf("checkTrigger: %v", err)
	}
	if v.Admit || v.Reason != "trigger_selector_denied" {
		t.Fatalf("verdict = %+v, want trigger_selector_denied", v)
	}
}

func TestCheckTriggerContractDenylist(t *testing.T) {
	contract := common.HexToAddress("0x3333333333333333333333333333333333333333")
	e := New(config.PolicyConfig{
		EnabledIntentTypes:      []int16{0},
		TriggerContractDenylist: []string{contract.Hex()},
	}, false, nil, nil, nil)

	c := Candidate{
		IntentType:  IntentTypeTriggerSmartContract,
		IntentSpecs: encodeTriggerSpecs(t, contract, big.NewInt(0), []byte{0xaa, 0xaa, 0xaa, 0xaa}),
	}
	v, err := e.checkTrigger(context.Background(), c)
	if err != nil {
		t.Fatalf("checkTrigger: %v", err)
	}
	if v.Admit || v.Reason != "trigger_contract_denied" {
		t.Fatalf("verdict = %+v, want trigger_contract_denied", v)
	}
}

func TestCheckTriggerAllowlistExcludesOthers(t *testing.T) {
	allowed := common.HexToAddress("0x4444444444444444444444444444444444444444")
	other := common.HexToAddress("0x5555555555555555555555555555555555555555")
	e := New(config.PolicyConfig{
		EnabledIntentTypes:       []int16{0},
		TriggerContractAllowlist: []string{allowed.Hex()},
	}, false, nil, nil, nil)

	c := Candidate{
		IntentType:  IntentTypeTriggerSmartContract,
		IntentSpecs: encodeTriggerSpecs(t, other, big.NewInt(0), []byte{0xaa, 0xaa, 0xaa, 0xaa}),
	}
	v, err := e.checkTrigger(context.Background(), c)
	if err != nil {
		t.Fatalf("checkTrigger: %v", err)
	}
	if v.Admit || v.Reason != "trigger_contract_denied" {
		t.Fatalf("verdict = %+v, want trigger_contract_denied for non-allowlisted contract", v)
	}
}

func TestCheckTriggerFallbackCallsDisallowed(t *testing.T) {
	contract := common.HexToAddress("0x3333333333333333333333333333333333333333")
	e := New(config.PolicyConfig{EnabledIntentTypes: []int16{0}}, false, nil, nil, nil)

	c := Candidate{
		IntentType:  IntentTypeTriggerSmartContract,
		IntentSpecs: encodeTriggerSpecs(t, contract, big.NewInt(0), nil),
	}
	v, err := e.checkTrigger(context.Background(), c)
	if err != nil {
		t.Fatalf("checkTrigger: %v", err)
	}
	if v.Admit || v.Reason != "fallback_calls_disallowed" {
		t.Fatalf("verdict = %+v, want fallback_calls_disallowed", v)
	}
}

func TestCheckTriggerCalldataTooLong(t *testing.T) {
	contract := common.HexToAddress("0x3333333333333333333333333333333333333333")
	maxLen := uint64(8)
	e := New(config.PolicyConfig{
		EnabledIntentTypes:    []int16{0},
		MaxTriggerCalldataLen: &maxLen,
	}, false, nil, nil, nil)

	c := Candidate{
		IntentType:  IntentTypeTriggerSmartContract,
		IntentSpecs: encodeTriggerSpecs(t, contract, big.NewInt(0), make([]byte, 16)),
	}
	v, err := e.checkTrigger(context.Background(), c)
	if err != nil {
		t.Fatalf("checkTrigger: %v", err)
	}
	if v.Admit || v.Reason != "calldata_too_long" {
		t.Fatalf("verdict = %+v, want calldata_too_long", v)
	}
}

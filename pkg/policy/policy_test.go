// Copyright 2025 Certen Protocol

package policy

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/config"
)

func encodeTRXSpecs(t *testing.T, to common.Address, amount *big.Int) []byte {
	t.Helper()
	b, err := addressAndUint256.Pack(to, amount)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return b
}

func TestBasicGatesRejectClosed(t *testing.T) {
	e := New(config.PolicyConfig{EnabledIntentTypes: []int16{2}}, false, nil, nil, nil)
	c := Candidate{IntentType: IntentTypeTRXTransfer, Closed: true, Deadline: time.Now().Add(time.Hour).Unix()}
	v := e.basicGates(c, time.Now())
	if v.Admit {
		t.Fatalf("expected rejection for closed intent")
	}
	if v.Reason != "closed_or_solved" {
		t.Fatalf("reason = %q, want closed_or_solved", v.Reason)
	}
}

func TestBasicGatesRejectUnfunded(t *testing.T) {
	e := New(config.PolicyConfig{EnabledIntentTypes: []int16{2}}, false, nil, nil, nil)
	c := Candidate{IntentType: IntentTypeTRXTransfer, Deadline: time.Now().Add(time.Hour).Unix()}
	v := e.basicGates(c, time.Now())
	if v.Admit || v.Reason != "not_funded" {
		t.Fatalf("verdict = %+v, want not_funded rejection", v)
	}
}

func TestBasicGatesRejectAlreadyClaimed(t *testing.T) {
	e := New(config.PolicyConfig{EnabledIntentTypes: []int16{2}}, false, nil, nil, nil)
	c := Candidate{
		IntentType: IntentTypeTRXTransfer,
		Funded:     true,
		Solver:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Deadline:   time.Now().Add(time.Hour).Unix(),
	}
	v := e.basicGates(c, time.Now())
	if v.Admit || v.Reason != "already_claimed" {
		t.Fatalf("verdict = %+v, want already_claimed rejection", v)
	}
}

func TestBasicGatesDeadlineSlack(t *testing.T) {
	e := New(config.PolicyConfig{EnabledIntentTypes: []int16{2}, MinDeadlineSlackSecs: 120}, false, nil, nil, nil)
	c := Candidate{IntentType: IntentTypeTRXTransfer, Funded: true, Deadline: time.Now().Add(10 * time.Second).Unix()}
	v := e.basicGates(c, time.Now())
	if v.Admit || v.Reason != "deadline_slack" {
		t.Fatalf("verdict = %+v, want deadline_slack rejection", v)
	}
}

func TestCheckTRXTransferAmountCap(t *testing.T) {
	cap := uint64(1_000_000)
	e := New(config.PolicyConfig{EnabledIntentTypes: []int16{2}, MaxTRXTransferSun: &cap}, false, nil, nil, nil)
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	c := Candidate{IntentType: IntentTypeTRXTransfer, IntentSpecs: encodeTRXSpecs(t, to, big.NewInt(5_000_000))}
	v, err := e.checkTRXTransfer(c)
	if err != nil {
		t.Fatalf("checkTRXTransfer: %v", err)
	}
	if v.Admit || v.Reason != "amount_cap" {
		t.Fatalf("verdict = %+v, want amount_cap rejection", v)
	}
}

func TestCheckTRXTransferWithinCap(t *testing.T) {
	cap := uint64(10_000_000)
	e := New(config.PolicyConfig{EnabledIntentTypes: []int16{2}, MaxTRXTransferSun: &cap}, false, nil, nil, nil)
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	c := Candidate{IntentType: IntentTypeTRXTransfer, IntentSpecs: encodeTRXSpecs(t, to, big.NewInt(5_000_000))}
	v, err := e.checkTRXTransfer(c)
	if err != nil {
		t.Fatalf("checkTRXTransfer: %v", err)
	}
	if !v.Admit {
		t.Fatalf("verdict = %+v, want admit", v)
	}
}

func TestDecodeTriggerRoundTrip(t *testing.T) {
	contract := common.HexToAddress("0x3333333333333333333333333333333333333333")
	calldata := []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	encoded, err := triggerArgs.Pack(contract, big.NewInt(42), calldata)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	spec, err := DecodeTrigger(encoded)
	if err != nil {
		t.Fatalf("DecodeTrigger: %v", err)
	}
	if spec.Contract != contract || spec.CallValueSun.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("spec = %+v", spec)
	}
}

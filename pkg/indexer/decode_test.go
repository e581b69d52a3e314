// Copyright 2025 Certen Protocol

package indexer

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/eventschema"
)

func TestDecodeSemanticEventIntentCreated(t *testing.T) {
	args := semanticEventABI[sigHash(eventschema.SigIntentCreated)].args
	var intentID [32]byte
	intentID[31] = 0x07
	packed, err := args.Pack(
		intentID,
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		uint8(3),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(1_000_000),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
		uint64(1_700_000_000),
		[]byte{0xde, 0xad, 0xbe, 0xef},
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	eventType, payload, err := decodeSemanticEvent(sigHash(eventschema.SigIntentCreated), packed)
	if err != nil {
		t.Fatalf("decodeSemanticEvent: %v", err)
	}
	if eventType != eventschema.EventTypeIntentCreated {
		t.Fatalf("event type = %d, want %d", eventType, eventschema.EventTypeIntentCreated)
	}

	var a eventschema.IntentCreatedArgs
	if err := json.Unmarshal(payload, &a); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if a.IntentType != 3 {
		t.Fatalf("intent_type = %d, want 3", a.IntentType)
	}
	if a.EscrowAmount != "1000000" {
		t.Fatalf("escrow_amount = %s, want 1000000", a.EscrowAmount)
	}
	if a.Deadline != 1_700_000_000 {
		t.Fatalf("deadline = %d, want 1700000000", a.Deadline)
	}
	if a.IntentSpecs != "0xdeadbeef" {
		t.Fatalf("intent_specs = %s, want 0xdeadbeef", a.IntentSpecs)
	}
}

func TestDecodeSemanticEventUnrecognizedSignatureFallsBackToRaw(t *testing.T) {
	var unknownSig [32]byte
	unknownSig[0] = 0xff
	eventType, payload, err := decodeSemanticEvent(unknownSig, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("decodeSemanticEvent: %v", err)
	}
	if eventType != eventschema.EventTypeUnknown {
		t.Fatalf("event type = %d, want EventTypeUnknown", eventType)
	}
	var raw struct {
		RawDataHex string `json:"raw_data_hex"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal raw payload: %v", err)
	}
	if raw.RawDataHex != "0x0102" {
		t.Fatalf("raw_data_hex = %s, want 0x0102", raw.RawDataHex)
	}
}

func TestDecodeSemanticEventBridgersUpdated(t *testing.T) {
	args := semanticEventABI[sigHash(eventschema.SigBridgersUpdated)].args
	usdt := common.HexToAddress("0x4444444444444444444444444444444444444444")
	usdc := common.HexToAddress("0x5555555555555555555555555555555555555555")
	packed, err := args.Pack(usdt, usdc)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	eventType, payload, err := decodeSemanticEvent(sigHash(eventschema.SigBridgersUpdated), packed)
	if err != nil {
		t.Fatalf("decodeSemanticEvent: %v", err)
	}
	if eventType != eventschema.EventTypeBridgersUpdated {
		t.Fatalf("event type = %d, want %d", eventType, eventschema.EventTypeBridgersUpdated)
	}
	var a eventschema.BridgersUpdatedArgs
	if err := json.Unmarshal(payload, &a); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if a.USDTBridger != usdt.Hex() || a.USDCBridger != usdc.Hex() {
		t.Fatalf("bridgers = (%s, %s), want (%s, %s)", a.USDTBridger, a.USDCBridger, usdt.Hex(), usdc.Hex())
	}
}

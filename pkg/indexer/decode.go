// Copyright 2025 Certen Protocol

package indexer

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/untron/intent-solver/pkg/chainstore"
	"github.com/untron/intent-solver/pkg/eventschema"
)

var eventAppendedArgs = abi.Arguments{
	{Name: "eventSeq", Type: mustType("uint64")},
	{Name: "prevTip", Type: mustType("bytes32")},
	{Name: "newTip", Type: mustType("bytes32")},
	{Name: "eventSignature", Type: mustType("bytes32")},
	{Name: "abiEncodedEventData", Type: mustType("bytes")},
}

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("indexer: bad abi type %q: %v", t, err))
	}
	return ty
}

// semanticEventABI is the ABI argument list used to unpack one concrete
// event body, keyed by its eventSignature hash. Each entry's tuple order
// mirrors the corresponding eventschema.Sig* signature string.
var semanticEventABI = map[common.Hash]struct {
	eventType eventschema.EventType
	args      abi.Arguments
}{
	sigHash(eventschema.SigIntentCreated): {eventschema.EventTypeIntentCreated, abi.Arguments{
		{Name: "intentId", Type: mustType("bytes32")},
		{Name: "creator", Type: mustType("address")},
		{Name: "intentType", Type: mustType("uint8")},
		{Name: "escrowToken", Type: mustType("address")},
		{Name: "escrowAmount", Type: mustType("uint256")},
		{Name: "refundBeneficiary", Type: mustType("address")},
		{Name: "deadline", Type: mustType("uint64")},
		{Name: "intentSpecs", Type: mustType("bytes")},
	}},
	sigHash(eventschema.SigIntentClaimed): {eventschema.EventTypeIntentClaimed, abi.Arguments{
		{Name: "intentId", Type: mustType("bytes32")},
		{Name: "solver", Type: mustType("address")},
		{Name: "claimedAt", Type: mustType("uint64")},
	}},
	sigHash(eventschema.SigIntentProved): {eventschema.EventTypeIntentProved, abi.Arguments{
		{Name: "intentId", Type: mustType("bytes32")},
		{Name: "tronTxId", Type: mustType("bytes32")},
		{Name: "tronBlockNumber", Type: mustType("uint64")},
	}},
	sigHash(eventschema.SigIntentFunded): {eventschema.EventTypeIntentFunded, abi.Arguments{
		{Name: "intentId", Type: mustType("bytes32")},
	}},
	sigHash(eventschema.SigIntentSettled): {eventschema.EventTypeIntentSettled, abi.Arguments{
		{Name: "intentId", Type: mustType("bytes32")},
	}},
	sigHash(eventschema.SigIntentClosed): {eventschema.EventTypeIntentClosed, abi.Arguments{
		{Name: "intentId", Type: mustType("bytes32")},
	}},
	sigHash(eventschema.SigBridgersUpdated): {eventschema.EventTypeBridgersUpdated, abi.Arguments{
		{Name: "usdtBridger", Type: mustType("address")},
		{Name: "usdcBridger", Type: mustType("address")},
	}},
}

func sigHash(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(signature))
}

// decodedEventAppended holds the EventAppended log's unpacked fields before
// they are translated into a chainstore row.
type decodedEventAppended struct {
	EventSeq            uint64
	PrevTip             [32]byte
	NewTip              [32]byte
	EventSignature      [32]byte
	ABIEncodedEventData []byte
}

// DecodeEventAppended unpacks the non-indexed EventAppended data payload.
// The event carries no indexed topics beyond topic0, so the whole payload
// lives in log.Data.
func DecodeEventAppended(log types.Log) (decodedEventAppended, error) {
	values, err := eventAppendedArgs.Unpack(log.Data)
	if err != nil {
		return decodedEventAppended{}, fmt.Errorf("indexer: unpack EventAppended: %w", err)
	}
	out := decodedEventAppended{}
	out.EventSeq = values[0].(uint64)
	out.PrevTip = values[1].([32]byte)
	out.NewTip = values[2].([32]byte)
	out.EventSignature = values[3].([32]byte)
	out.ABIEncodedEventData = values[4].([]byte)
	return out, nil
}

// decodeSemanticEvent unpacks abiEncodedEventData against the concrete
// event body identified by eventSignature, producing the event_type and
// args_json that the projector (component C) will later fold into the read
// models. An eventSignature this indexer doesn't recognize is not an
// error: new event kinds can be added to the pool/forwarder contracts
// without requiring an indexer upgrade in lockstep, they just sit unprojected
// until one ships.
func decodeSemanticEvent(eventSignature [32]byte, data []byte) (eventschema.EventType, []byte, error) {
	entry, ok := semanticEventABI[common.BytesToHash(eventSignature[:])]
	if !ok {
		return eventschema.EventTypeUnknown, rawArgsJSON(data), nil
	}

	values, err := entry.args.Unpack(data)
	if err != nil {
		return eventschema.EventTypeUnknown, nil, fmt.Errorf("indexer: unpack semantic event type=%d: %w", entry.eventType, err)
	}

	payload, err := buildSemanticPayload(entry.eventType, values)
	if err != nil {
		return eventschema.EventTypeUnknown, nil, err
	}
	return entry.eventType, payload, nil
}

func buildSemanticPayload(eventType eventschema.EventType, values []any) ([]byte, error) {
	var v any
	switch eventType {
	case eventschema.EventTypeIntentCreated:
		v = eventschema.IntentCreatedArgs{
			IntentID:          hexBytes32(values[0].([32]byte)),
			Creator:           hexAddress(values[1].(common.Address)),
			IntentType:        int16(values[2].(uint8)),
			EscrowToken:       hexAddress(values[3].(common.Address)),
			EscrowAmount:      values[4].(*big.Int).String(),
			RefundBeneficiary: hexAddress(values[5].(common.Address)),
			Deadline:          int64(values[6].(uint64)),
			IntentSpecs:       fmt.Sprintf("0x%x", values[7].([]byte)),
		}
	case eventschema.EventTypeIntentClaimed:
		v = eventschema.IntentClaimedArgs{
			IntentID:        hexBytes32(values[0].([32]byte)),
			Solver:          hexAddress(values[1].(common.Address)),
			SolverClaimedAt: int64(values[2].(uint64)),
		}
	case eventschema.EventTypeIntentProved:
		v = eventschema.IntentProvedArgs{
			IntentID:        hexBytes32(values[0].([32]byte)),
			TronTxID:        hexBytes32(values[1].([32]byte)),
			TronBlockNumber: int64(values[2].(uint64)),
		}
	case eventschema.EventTypeIntentFunded:
		v = eventschema.IntentFundedArgs{IntentID: hexBytes32(values[0].([32]byte))}
	case eventschema.EventTypeIntentSettled:
		v = eventschema.IntentSettledArgs{IntentID: hexBytes32(values[0].([32]byte))}
	case eventschema.EventTypeIntentClosed:
		v = eventschema.IntentClosedArgs{IntentID: hexBytes32(values[0].([32]byte))}
	case eventschema.EventTypeBridgersUpdated:
		v = eventschema.BridgersUpdatedArgs{
			USDTBridger: hexAddress(values[0].(common.Address)),
			USDCBridger: hexAddress(values[1].(common.Address)),
		}
	default:
		return nil, fmt.Errorf("indexer: no payload builder for event_type=%d", eventType)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("indexer: marshal semantic event type=%d: %w", eventType, err)
	}
	return b, nil
}

func hexBytes32(b [32]byte) string       { return fmt.Sprintf("0x%x", b[:]) }
func hexAddress(a common.Address) string { return a.Hex() }

func rawArgsJSON(data []byte) []byte {
	b, _ := json.Marshal(struct {
		RawDataHex string `json:"raw_data_hex"`
	}{RawDataHex: fmt.Sprintf("0x%x", data)})
	return b
}

// BuildEventAppendedRow assembles the chainstore row for one validated,
// decoded log, including the semantic event_type/args_json the projector
// consumes.
func BuildEventAppendedRow(stream string, chainID int64, contractAddress []byte, blockTimestamp int64, log types.Log) (chainstore.EventAppendedRow, error) {
	d, err := DecodeEventAppended(log)
	if err != nil {
		return chainstore.EventAppendedRow{}, err
	}

	eventType, argsJSON, err := decodeSemanticEvent(d.EventSignature, d.ABIEncodedEventData)
	if err != nil {
		return chainstore.EventAppendedRow{}, fmt.Errorf("indexer: decode semantic event at event_seq=%d: %w", d.EventSeq, err)
	}

	return chainstore.EventAppendedRow{
		Stream:          stream,
		ChainID:         chainID,
		ContractAddress: contractAddress,

		BlockNumber:    int64(log.BlockNumber),
		BlockTimestamp: blockTimestamp,
		BlockHash:      log.BlockHash[:],

		TxHash:   log.TxHash[:],
		LogIndex: int32(log.Index),

		EventSeq:            int64(d.EventSeq),
		PrevTip:             d.PrevTip[:],
		NewTip:              d.NewTip[:],
		EventSignature:      d.EventSignature[:],
		ABIEncodedEventData: d.ABIEncodedEventData,

		EventType: int16(eventType),
		ArgsJSON:  argsJSON,
	}, nil
}

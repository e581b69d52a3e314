// Copyright 2025 Certen Protocol

package tron

import "github.com/untron/intent-solver/pkg/tron/protocol"

// The request/response shapes below are the handful of api.* wallet-service
// messages this repo's NodeClient methods touch (GetBlockByNum2's
// NumberMessage, GetAccount/GetTransactionInfoById's BytesMessage,
// TriggerConstantContract/EstimateEnergy's TriggerSmartContract request and
// TransactionExtention response), encoded with the same hand-rolled
// varint/length-delimited writer as the core.* contract messages in
// pkg/tron/protocol rather than full generated stubs.

type numberMessage int64

func (n numberMessage) Marshal() []byte {
	var buf []byte
	return appendVarintField(buf, 1, uint64(n))
}

type bytesMessage []byte

func (b bytesMessage) Marshal() []byte {
	var buf []byte
	return appendBytesField(buf, 1, b)
}

// appendVarintField/appendBytesField are re-exported thin wrappers so this
// file can build request bytes without protocol exporting its wire helpers
// more broadly than contracts.go needs to.
func appendVarintField(buf []byte, fieldNum int, v uint64) []byte {
	return protocol.AppendVarintField(buf, fieldNum, v)
}

func appendBytesField(buf []byte, fieldNum int, v []byte) []byte {
	return protocol.AppendBytesField(buf, fieldNum, v)
}

// triggerContractRequest builds the api.TriggerSmartContract request message
// (owner/contract address, data, call_value) shared by TriggerConstantContract
// and EstimateEnergy.
func triggerContractRequest(owner, contract Address, data []byte, callValueSun int64) *protocol.TriggerSmartContract {
	return &protocol.TriggerSmartContract{
		OwnerAddress:    owner.PrefixedBytes(),
		ContractAddress: contract.PrefixedBytes(),
		Data:            data,
		CallValue:       callValueSun,
	}
}

// decodeTriggerResult reads an api.TransactionExtention: energy_used and the
// contract return's constant_result[0], the only two fields component F's
// emulation/estimation paths need.
func decodeTriggerResult(raw []byte) (int64, []byte, error) {
	fields, err := protocol.ParseFields(raw)
	if err != nil {
		return 0, nil, err
	}
	var energy int64
	if f, ok := protocol.First(fields, 10); ok {
		energy = int64(f.Varint)
	}
	var result []byte
	if rs := fields[14]; len(rs) > 0 {
		result = rs[0].Bytes
	}
	return energy, result, nil
}

// parseBroadcastResult reads an api.Return: the result bool plus the message
// bytes, surfacing a false result as a classified error built from the
// message (the response code field is not read).
func parseBroadcastResult(raw []byte) error {
	fields, err := protocol.ParseFields(raw)
	if err != nil {
		return err
	}
	ok := false
	if f, hasOK := protocol.First(fields, 1); hasOK {
		ok = f.Varint != 0
	}
	if ok {
		return nil
	}
	var msg string
	if f, hasMsg := protocol.First(fields, 3); hasMsg {
		msg = string(f.Bytes)
	}
	return classifyBroadcastError(&broadcastFailure{msg: msg})
}

type broadcastFailure struct{ msg string }

func (e *broadcastFailure) Error() string { return "tron: node rejected broadcast: " + e.msg }

// decodeBlockWithHeader parses a core.Block into the leaf tx ids this repo's
// merkle proof builder needs plus the packed header bytes NodeClient's
// caller treats opaquely (see pkg/tron/proof.go's doc comment on why the
// packed-header byte layout is not reconstructed field-by-field here).
func decodeBlockWithHeader(raw []byte) (Block, []byte, error) {
	fields, err := protocol.ParseFields(raw)
	if err != nil {
		return Block{}, nil, err
	}
	var block Block
	for _, txField := range fields[1] {
		txFields, err := protocol.ParseFields(txField.Bytes)
		if err != nil {
			continue
		}
		if rawTx, ok := protocol.First(txFields, 1); ok {
			rawTxFields, err := protocol.ParseFields(rawTx.Bytes)
			if err == nil {
				_ = rawTxFields
			}
			block.TxIDs = append(block.TxIDs, txIDOf(rawTx.Bytes))
		}
	}
	var headerBytes []byte
	if f, ok := protocol.First(fields, 2); ok {
		headerBytes = f.Bytes
		headerFields, err := protocol.ParseFields(f.Bytes)
		if err == nil {
			if raw2, ok := protocol.First(headerFields, 1); ok {
				rawHeaderFields, err := protocol.ParseFields(raw2.Bytes)
				if err == nil {
					get := func(n int) int64 {
						if hf, ok := protocol.First(rawHeaderFields, n); ok {
							return int64(hf.Varint)
						}
						return 0
					}
					getBytes := func(n int) []byte {
						if hf, ok := protocol.First(rawHeaderFields, n); ok {
							return hf.Bytes
						}
						return nil
					}
					block.Header = BlockHeaderRaw{
						Timestamp:      get(1),
						TxTrieRoot:     getBytes(2),
						ParentHash:     getBytes(3),
						Number:         get(7),
						WitnessAddress: getBytes(9),
					}
				}
			}
			if sig, ok := protocol.First(headerFields, 2); ok {
				block.WitnessSig = sig.Bytes
			}
		}
	}
	return block, headerBytes, nil
}

func txIDOf(rawTxBytes []byte) []byte {
	return shaSum256(rawTxBytes)
}

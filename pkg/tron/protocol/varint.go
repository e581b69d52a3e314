// Copyright 2025 Certen Protocol

// Package protocol models the handful of Tron wire messages the transaction
// builders in pkg/tron touch (Transaction, raw, Contract, TransferContract,
// TriggerSmartContract, DelegateResourceContract, FreezeBalanceV2Contract,
// CreateSmartContract/SmartContract) as plain Go structs with a minimal
// hand-rolled varint/length-delimited protobuf-shaped encoder.
//
// This is not a full protobuf implementation and does not vendor Tron's
// .proto set: it encodes only the wire fields the builders in this repo
// populate, field-number-for-field-number against core/Tron.proto, so that
// Marshal() produces byte-identical raw_data to a real protobuf encoder
// (the hub's reader contract and sha256(raw_data) txid derivation both
// require this to be exact).
package protocol

// wire types, per the protobuf encoding spec.
const (
	wireVarint = 0
	wireBytes  = 2
)

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func appendTag(buf []byte, fieldNum int, wireType int) []byte {
	return appendVarint(buf, uint64(fieldNum)<<3|uint64(wireType))
}

// appendVarintField writes a varint-typed field (int32/int64/bool/enum),
// skipping it entirely when v is zero: protobuf3 never encodes default
// values, and the original Rust encoder (prost) follows the same rule.
func appendVarintField(buf []byte, fieldNum int, v uint64) []byte {
	if v == 0 {
		return buf
	}
	buf = appendTag(buf, fieldNum, wireVarint)
	return appendVarint(buf, v)
}

func appendBoolField(buf []byte, fieldNum int, v bool) []byte {
	if !v {
		return buf
	}
	buf = appendTag(buf, fieldNum, wireVarint)
	return appendVarint(buf, 1)
}

// appendBytesField writes a length-delimited field, skipping it when empty.
func appendBytesField(buf []byte, fieldNum int, v []byte) []byte {
	if len(v) == 0 {
		return buf
	}
	buf = appendTag(buf, fieldNum, wireBytes)
	buf = appendVarint(buf, uint64(len(v)))
	return append(buf, v...)
}

func appendStringField(buf []byte, fieldNum int, v string) []byte {
	if v == "" {
		return buf
	}
	return appendBytesField(buf, fieldNum, []byte(v))
}

// appendMessageField writes an embedded message field, skipping it when nil
// (nil marshals to zero bytes, distinct from an empty-but-present message).
func appendMessageField(buf []byte, fieldNum int, marshaled []byte, present bool) []byte {
	if !present {
		return buf
	}
	buf = appendTag(buf, fieldNum, wireBytes)
	buf = appendVarint(buf, uint64(len(marshaled)))
	return append(buf, marshaled...)
}

// AppendVarintField and AppendBytesField are exported for pkg/tron's
// request builders (GetBlockByNum2's NumberMessage, GetAccount's
// BytesMessage), which need the same field-skipping rules as the contract
// messages above but live outside this package.
func AppendVarintField(buf []byte, fieldNum int, v uint64) []byte {
	return appendVarintField(buf, fieldNum, v)
}

func AppendBytesField(buf []byte, fieldNum int, v []byte) []byte {
	return appendBytesField(buf, fieldNum, v)
}

// Copyright 2025 Certen Protocol

package protocol

// ContractType is core.Transaction.Contract.ContractType; only the variants
// this repo's builders emit are named.
type ContractType int32

const (
	ContractTypeTransfer           ContractType = 1
	ContractTypeTriggerSmart       ContractType = 31
	ContractTypeFreezeBalanceV2    ContractType = 54
	ContractTypeDelegateResource   ContractType = 57
	ContractTypeCreateSmartContract ContractType = 30
)

// typeURL returns the google.protobuf.Any type_url Tron nodes expect for
// each contract variant, matching java-tron's "type.googleapis.com/protocol.X".
func typeURL(t ContractType) string {
	switch t {
	case ContractTypeTransfer:
		return "type.googleapis.com/protocol.TransferContract"
	case ContractTypeTriggerSmart:
		return "type.googleapis.com/protocol.TriggerSmartContract"
	case ContractTypeFreezeBalanceV2:
		return "type.googleapis.com/protocol.FreezeBalanceV2Contract"
	case ContractTypeDelegateResource:
		return "type.googleapis.com/protocol.DelegateResourceContract"
	case ContractTypeCreateSmartContract:
		return "type.googleapis.com/protocol.CreateSmartContract"
	default:
		return ""
	}
}

// anyMarshal marshals a google.protobuf.Any wrapping an already-encoded message.
func anyMarshal(t ContractType, value []byte) []byte {
	var buf []byte
	buf = appendStringField(buf, 1, typeURL(t))
	buf = appendBytesField(buf, 2, value)
	return buf
}

// Contract is one core.Transaction.raw.Contract entry: a tagged-union
// wrapper (ContractType + google.protobuf.Any parameter) around exactly one
// of the contract message types in contracts.go.
type Contract struct {
	Type ContractType

	Transfer           *TransferContract
	TriggerSmart       *TriggerSmartContract
	DelegateResource   *DelegateResourceContract
	FreezeBalanceV2    *FreezeBalanceV2Contract
	CreateSmartContract *CreateSmartContract
}

func (c *Contract) Marshal() []byte {
	var inner []byte
	switch c.Type {
	case ContractTypeTransfer:
		inner = c.Transfer.Marshal()
	case ContractTypeTriggerSmart:
		inner = c.TriggerSmart.Marshal()
	case ContractTypeDelegateResource:
		inner = c.DelegateResource.Marshal()
	case ContractTypeFreezeBalanceV2:
		inner = c.FreezeBalanceV2.Marshal()
	case ContractTypeCreateSmartContract:
		inner = c.CreateSmartContract.Marshal()
	}

	var buf []byte
	buf = appendVarintField(buf, 1, uint64(c.Type))
	buf = appendMessageField(buf, 2, anyMarshal(c.Type, inner), true)
	return buf
}

// RawTransaction is core.Transaction.raw: the signed payload. FeeLimit is
// mutated in place by the fee_limit convergence loop in pkg/tron, which is
// exactly why it lives on this struct rather than being folded into a
// one-shot constructor.
type RawTransaction struct {
	RefBlockBytes []byte
	RefBlockHash  []byte
	RefBlockNum   int64
	Expiration    int64
	Timestamp     int64
	Contracts     []*Contract
	FeeLimit      int64
}

func (r *RawTransaction) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, 1, r.RefBlockBytes)
	buf = appendVarintField(buf, 3, uint64(r.RefBlockNum))
	buf = appendBytesField(buf, 4, r.RefBlockHash)
	buf = appendVarintField(buf, 8, uint64(r.Expiration))
	for _, c := range r.Contracts {
		buf = appendMessageField(buf, 11, c.Marshal(), true)
	}
	buf = appendVarintField(buf, 14, uint64(r.Timestamp))
	buf = appendVarintField(buf, 18, uint64(r.FeeLimit))
	return buf
}

// Transaction is core.Transaction: raw_data plus the recoverable ECDSA
// signature(s) over sha256(raw_data.Marshal()).
type Transaction struct {
	RawData   *RawTransaction
	Signature [][]byte
}

func (t *Transaction) Marshal() []byte {
	var buf []byte
	if t.RawData != nil {
		buf = appendMessageField(buf, 1, t.RawData.Marshal(), true)
	}
	for _, sig := range t.Signature {
		buf = appendBytesField(buf, 2, sig)
	}
	return buf
}

// Copyright 2025 Certen Protocol

package protocol

// ResourceCode is Tron's resource enum (core/Tron.proto ResourceCode),
// shared by DelegateResourceContract, FreezeBalanceV2Contract, and the
// inventory/reservation logic in pkg/tron.
type ResourceCode int32

const (
	ResourceBandwidth ResourceCode = 0
	ResourceEnergy    ResourceCode = 1
	ResourceTronPower ResourceCode = 2
)

// TransferContract moves TRX between two addresses (core.TransferContract).
type TransferContract struct {
	OwnerAddress []byte
	ToAddress    []byte
	Amount       int64
}

func (c *TransferContract) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, 1, c.OwnerAddress)
	buf = appendBytesField(buf, 2, c.ToAddress)
	buf = appendVarintField(buf, 3, uint64(c.Amount))
	return buf
}

// TriggerSmartContract calls an arbitrary contract (core.TriggerSmartContract),
// used both for USDT/TRC20 transfers (data = transfer(address,uint256)) and
// arbitrary trigger_smart_contract intents.
type TriggerSmartContract struct {
	OwnerAddress    []byte
	ContractAddress []byte
	CallValue       int64
	Data            []byte
	CallTokenValue  int64
	TokenID         int64
}

func (c *TriggerSmartContract) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, 1, c.OwnerAddress)
	buf = appendBytesField(buf, 2, c.ContractAddress)
	buf = appendVarintField(buf, 3, uint64(c.CallValue))
	buf = appendBytesField(buf, 4, c.Data)
	buf = appendVarintField(buf, 5, uint64(c.CallTokenValue))
	buf = appendVarintField(buf, 6, uint64(c.TokenID))
	return buf
}

// DelegateResourceContract delegates bandwidth/energy/tron-power to a
// receiver (core.DelegateResourceContract).
type DelegateResourceContract struct {
	OwnerAddress    []byte
	ReceiverAddress []byte
	Resource        ResourceCode
	Balance         int64
	Lock            bool
	LockPeriod      int64
}

func (c *DelegateResourceContract) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, 1, c.OwnerAddress)
	buf = appendBytesField(buf, 2, c.ReceiverAddress)
	buf = appendVarintField(buf, 3, uint64(c.Resource))
	buf = appendVarintField(buf, 4, uint64(c.Balance))
	buf = appendBoolField(buf, 5, c.Lock)
	buf = appendVarintField(buf, 6, uint64(c.LockPeriod))
	return buf
}

// FreezeBalanceV2Contract stakes TRX for bandwidth/energy/tron-power
// (core.FreezeBalanceV2Contract).
type FreezeBalanceV2Contract struct {
	OwnerAddress   []byte
	FrozenBalance  int64
	Resource       ResourceCode
}

func (c *FreezeBalanceV2Contract) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, 1, c.OwnerAddress)
	buf = appendVarintField(buf, 2, uint64(c.FrozenBalance))
	buf = appendVarintField(buf, 10, uint64(c.Resource))
	return buf
}

// SmartContract is the embedded contract definition inside
// CreateSmartContract (core.SmartContract). ABI is omitted: this repo only
// ever deploys the mock reader contract used by TRON_MODE=mock, which needs
// no ABI entries at the wire level for the constructor call itself.
type SmartContract struct {
	OriginAddress   []byte
	Bytecode        []byte
	CallValue       int64
	Name            string
	OriginEnergyLimit int64
	ConsumeUserResourcePercent int64
}

func (c *SmartContract) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, 1, c.OriginAddress)
	buf = appendBytesField(buf, 4, c.Bytecode)
	buf = appendVarintField(buf, 5, uint64(c.CallValue))
	buf = appendVarintField(buf, 6, uint64(c.ConsumeUserResourcePercent))
	buf = appendStringField(buf, 7, c.Name)
	buf = appendVarintField(buf, 8, uint64(c.OriginEnergyLimit))
	return buf
}

// CreateSmartContract deploys a contract (core.CreateSmartContract).
type CreateSmartContract struct {
	OwnerAddress []byte
	NewContract  *SmartContract
	CallTokenValue int64
	TokenID        int64
}

func (c *CreateSmartContract) Marshal() []byte {
	var buf []byte
	buf = appendBytesField(buf, 1, c.OwnerAddress)
	if c.NewContract != nil {
		buf = appendMessageField(buf, 2, c.NewContract.Marshal(), true)
	}
	buf = appendVarintField(buf, 3, uint64(c.CallTokenValue))
	buf = appendVarintField(buf, 4, uint64(c.TokenID))
	return buf
}

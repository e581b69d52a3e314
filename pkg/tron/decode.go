// Copyright 2025 Certen Protocol

package tron

import "github.com/untron/intent-solver/pkg/tron/protocol"

// Account is the subset of core.Account this repo reads (GetAccount),
// keyed by the field numbers documented against core/Tron.proto.
type Account struct {
	Address    []byte
	BalanceSun int64
}

func decodeAccount(raw []byte) (Account, error) {
	fields, err := protocol.ParseFields(raw)
	if err != nil {
		return Account{}, err
	}
	var a Account
	if f, ok := protocol.First(fields, 1); ok {
		a.Address = f.Bytes
	}
	if f, ok := protocol.First(fields, 2); ok {
		a.BalanceSun = int64(f.Varint)
	}
	return a, nil
}

// AccountResource is the subset of api.AccountResourceMessage read by
// GetAccountResource: staked and already-delegated energy/bandwidth, used to
// compute a key's available-to-delegate capacity (§4.6).
type AccountResource struct {
	FreeNetUsed            int64
	FreeNetLimit           int64
	NetUsed                int64
	NetLimit               int64
	EnergyUsed             int64
	EnergyLimit            int64
	TotalNetLimit          int64
	TotalNetWeight         int64
	TotalEnergyLimit       int64
	TotalEnergyWeight      int64
	DelegatedFrozenV2BalanceForBandwidth int64
	DelegatedFrozenV2BalanceForEnergy    int64
}

func decodeAccountResource(raw []byte) (AccountResource, error) {
	fields, err := protocol.ParseFields(raw)
	if err != nil {
		return AccountResource{}, err
	}
	get := func(n int) int64 {
		if f, ok := protocol.First(fields, n); ok {
			return int64(f.Varint)
		}
		return 0
	}
	return AccountResource{
		FreeNetUsed:       get(1),
		FreeNetLimit:      get(2),
		TotalNetLimit:     get(3),
		TotalNetWeight:    get(4),
		EnergyUsed:        get(13),
		EnergyLimit:       get(14),
		TotalEnergyLimit:  get(15),
		TotalEnergyWeight: get(16),
		NetUsed:           get(10),
		NetLimit:          get(11),
	}, nil
}

// TransactionInfo is the subset of core.TransactionInfo read after broadcast
// to confirm inclusion and read actual energy/fee consumed (GetTransactionInfoById).
type TransactionInfo struct {
	ID              []byte
	Fee             int64
	BlockNumber     int64
	BlockTimeStamp  int64
	Receipt         TransactionReceipt
	Result          int32 // 0 = SUCCESS, 1 = FAILED
	ResMessage      []byte
}

type TransactionReceipt struct {
	EnergyUsage      int64
	EnergyFee        int64
	NetUsage         int64
	NetFee           int64
	Result           int32
}

func decodeTransactionInfo(raw []byte) (TransactionInfo, error) {
	fields, err := protocol.ParseFields(raw)
	if err != nil {
		return TransactionInfo{}, err
	}
	var ti TransactionInfo
	if f, ok := protocol.First(fields, 1); ok {
		ti.ID = f.Bytes
	}
	if f, ok := protocol.First(fields, 2); ok {
		ti.Fee = int64(f.Varint)
	}
	if f, ok := protocol.First(fields, 3); ok {
		ti.BlockNumber = int64(f.Varint)
	}
	if f, ok := protocol.First(fields, 4); ok {
		ti.BlockTimeStamp = int64(f.Varint)
	}
	if f, ok := protocol.First(fields, 7); ok {
		recFields, err := protocol.ParseFields(f.Bytes)
		if err == nil {
			rget := func(n int) int64 {
				if rf, ok := protocol.First(recFields, n); ok {
					return int64(rf.Varint)
				}
				return 0
			}
			ti.Receipt = TransactionReceipt{
				EnergyUsage: rget(4), // energy_usage_total
				EnergyFee:   rget(2),
				NetUsage:    rget(5),
				NetFee:      rget(6),
				Result:      int32(rget(7)),
			}
		}
	}
	if f, ok := protocol.First(fields, 9); ok {
		ti.Result = int32(f.Varint)
	}
	if f, ok := protocol.First(fields, 10); ok {
		ti.ResMessage = f.Bytes
	}
	return ti, nil
}

// BlockHeaderRaw is core.BlockHeader.raw: the signed fields of a block,
// whose encoding is the digest the block producer signs over (§4.7's
// 20-block inclusion proof).
type BlockHeaderRaw struct {
	Number         int64
	TxTrieRoot     []byte
	ParentHash     []byte
	Timestamp      int64
	WitnessAddress []byte
}

// Block is the subset of core.Block this repo reads to build inclusion
// proofs: the ordered transaction ids (leaves of the tx trie) and the
// packed header bytes GetBlockByNum2 returns alongside it.
type Block struct {
	Header     BlockHeaderRaw
	WitnessSig []byte
	TxIDs      [][]byte
}

func decodeChainParameters(raw []byte) (map[string]int64, error) {
	fields, err := protocol.ParseFields(raw)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64)
	for _, f := range fields[1] {
		nested, err := protocol.ParseFields(f.Bytes)
		if err != nil {
			continue
		}
		var key string
		var val int64
		if kf, ok := protocol.First(nested, 1); ok {
			key = string(kf.Bytes)
		}
		if vf, ok := protocol.First(nested, 2); ok {
			val = int64(vf.Varint)
		}
		if key != "" {
			out[key] = val
		}
	}
	return out, nil
}

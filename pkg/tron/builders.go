// Copyright 2025 Certen Protocol

package tron

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/untron/intent-solver/pkg/tron/protocol"
)

// refBlock is the "expiration window" reference a node's latest block
// supplies to every new transaction, mirroring java-tron's ref_block_bytes/
// ref_block_hash anti-replay scheme.
type refBlock struct {
	Bytes  []byte
	Hash   []byte
	Num    int64
	Expiry time.Duration
}

func newRaw(ref refBlock, now time.Time) *protocol.RawTransaction {
	return &protocol.RawTransaction{
		RefBlockBytes: ref.Bytes,
		RefBlockHash:  ref.Hash,
		RefBlockNum:   ref.Num,
		Timestamp:     now.UnixMilli(),
		Expiration:    now.Add(ref.Expiry).UnixMilli(),
	}
}

// BuildTransfer builds and signs a plain TRX transfer.
func (c *Client) BuildTransfer(ctx context.Context, key *ecdsa.PrivateKey, to Address, amountSun int64) (*SignedTronTx, error) {
	ref, err := c.refBlockNow(ctx)
	if err != nil {
		return nil, err
	}
	owner := FromPublicKey(&key.PublicKey)
	raw := newRaw(ref, time.Now())
	raw.Contracts = []*protocol.Contract{{
		Type: protocol.ContractTypeTransfer,
		Transfer: &protocol.TransferContract{
			OwnerAddress: owner.PrefixedBytes(),
			ToAddress:    to.PrefixedBytes(),
			Amount:       amountSun,
		},
	}}
	// Plain transfers consume bandwidth only; fee_limit is irrelevant to
	// them but harmless to leave at 0.
	return signRawWithFeeLimit(raw, key, 0)
}

// BuildTriggerSmartContract builds and signs a contract call, converging
// fee_limit over at most 3 signs per the documented bound: sign once at
// fee_limit=0 to measure size, estimate energy via EstimateEnergy, compute
// the fee-policy limit, and re-sign; a third sign only happens if the
// second sign's encoded size changed enough to move the computed limit.
func (c *Client) BuildTriggerSmartContract(ctx context.Context, key *ecdsa.PrivateKey, contractAddr Address, data []byte, callValueSun int64, policy FeePolicy) (*SignedTronTx, error) {
	ref, err := c.refBlockNow(ctx)
	if err != nil {
		return nil, err
	}
	owner := FromPublicKey(&key.PublicKey)
	trigger := &protocol.TriggerSmartContract{
		OwnerAddress:    owner.PrefixedBytes(),
		ContractAddress: contractAddr.PrefixedBytes(),
		CallValue:       callValueSun,
		Data:            data,
	}
	raw := newRaw(ref, time.Now())
	raw.Contracts = []*protocol.Contract{{Type: protocol.ContractTypeTriggerSmart, TriggerSmart: trigger}}

	var signed *SignedTronTx
	feeLimit := int64(0)
	for pass := 0; pass < 3; pass++ {
		signed, err = signRawWithFeeLimit(raw, key, feeLimit)
		if err != nil {
			return nil, fmt.Errorf("tron: build trigger smart contract pass %d: %w", pass, err)
		}

		energy, err := c.EstimateEnergy(ctx, owner, contractAddr, data, callValueSun)
		if err != nil {
			return nil, fmt.Errorf("tron: estimate energy: %w", err)
		}
		energy = clampEnergy(energy)
		signed.EnergyRequired = energy

		base := c.baseFeeSun(energy, signed.TxSizeBytes)
		next := policy.Apply(base)
		if next == feeLimit {
			break
		}
		feeLimit = next
	}
	return signed, nil
}

// BuildUSDTTransfer is a thin wrapper over BuildTriggerSmartContract encoding
// the TRC20 transfer(address,uint256) selector: a USDT transfer is just a
// TriggerSmartContract against the fixed USDT contract address, not a
// distinct wire shape.
func (c *Client) BuildUSDTTransfer(ctx context.Context, key *ecdsa.PrivateKey, usdtContract, to Address, amount int64, policy FeePolicy) (*SignedTronTx, error) {
	data := encodeTRC20Transfer(to, amount)
	return c.BuildTriggerSmartContract(ctx, key, usdtContract, data, 0, policy)
}

// encodeTRC20Transfer ABI-encodes transfer(address,uint256): selector
// 0xa9059cbb, the receiver left-padded to 32 bytes, then the amount.
func encodeTRC20Transfer(to Address, amount int64) []byte {
	data := make([]byte, 4+32+32)
	copy(data[0:4], []byte{0xa9, 0x05, 0x9c, 0xbb})
	copy(data[4+12:4+32], to.EVM())
	putUint256(data[4+32:4+64], amount)
	return data
}

func putUint256(dst []byte, v int64) {
	for i := 0; i < 8; i++ {
		dst[31-i] = byte(v >> (8 * i))
	}
}

// BuildDelegateResource builds and signs a resource delegation.
func (c *Client) BuildDelegateResource(ctx context.Context, key *ecdsa.PrivateKey, receiver Address, resource protocol.ResourceCode, balanceSun int64, lock bool, lockPeriod int64) (*SignedTronTx, error) {
	ref, err := c.refBlockNow(ctx)
	if err != nil {
		return nil, err
	}
	owner := FromPublicKey(&key.PublicKey)
	raw := newRaw(ref, time.Now())
	raw.Contracts = []*protocol.Contract{{
		Type: protocol.ContractTypeDelegateResource,
		DelegateResource: &protocol.DelegateResourceContract{
			OwnerAddress:    owner.PrefixedBytes(),
			ReceiverAddress: receiver.PrefixedBytes(),
			Resource:        resource,
			Balance:         balanceSun,
			Lock:            lock,
			LockPeriod:      lockPeriod,
		},
	}}
	return signRawWithFeeLimit(raw, key, 0)
}

// BuildFreezeBalanceV2 builds and signs a stake (freeze) transaction that
// turns TRX into delegatable resource. Nothing in this repository calls it;
// consolidation moves TRX with plain transfers.
func (c *Client) BuildFreezeBalanceV2(ctx context.Context, key *ecdsa.PrivateKey, frozenBalanceSun int64, resource protocol.ResourceCode) (*SignedTronTx, error) {
	ref, err := c.refBlockNow(ctx)
	if err != nil {
		return nil, err
	}
	owner := FromPublicKey(&key.PublicKey)
	raw := newRaw(ref, time.Now())
	raw.Contracts = []*protocol.Contract{{
		Type: protocol.ContractTypeFreezeBalanceV2,
		FreezeBalanceV2: &protocol.FreezeBalanceV2Contract{
			OwnerAddress:  owner.PrefixedBytes(),
			FrozenBalance: frozenBalanceSun,
			Resource:      resource,
		},
	}}
	return signRawWithFeeLimit(raw, key, 0)
}

// BuildDeployMockReader builds and signs the mock reader contract deployment
// (component F's deploy path). Nothing in this repository calls it, including
// the TRON_MODE=mock runner path.
func (c *Client) BuildDeployMockReader(ctx context.Context, key *ecdsa.PrivateKey, bytecode []byte, name string) (*SignedTronTx, error) {
	ref, err := c.refBlockNow(ctx)
	if err != nil {
		return nil, err
	}
	owner := FromPublicKey(&key.PublicKey)
	raw := newRaw(ref, time.Now())
	raw.Contracts = []*protocol.Contract{{
		Type: protocol.ContractTypeCreateSmartContract,
		CreateSmartContract: &protocol.CreateSmartContract{
			OwnerAddress: owner.PrefixedBytes(),
			NewContract: &protocol.SmartContract{
				OriginAddress:              owner.PrefixedBytes(),
				Bytecode:                   bytecode,
				Name:                       name,
				OriginEnergyLimit:          10_000_000,
				ConsumeUserResourcePercent: 100,
			},
		},
	}}
	return signRawWithFeeLimit(raw, key, 0)
}

// baseFeeSun computes base = energy_required*energy_fee + tx_size*bandwidth_fee
// from the node's cached chain parameters (§4.5).
func (c *Client) baseFeeSun(energy int64, txSize int) int64 {
	return energy*c.energyFeeSun + int64(txSize)*c.bandwidthFeeSun
}

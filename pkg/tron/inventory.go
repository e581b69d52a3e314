// Copyright 2025 Certen Protocol

package tron

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/solverdb"
	"github.com/untron/intent-solver/pkg/tron/protocol"
)

// reserveSun is the fixed balance every owned key keeps untouched for its
// own bandwidth/fee costs.
const reserveSun = 2_000_000

// KeySet holds the solver's Tron signing keys and their derived addresses.
type KeySet struct {
	keys    []*ecdsa.PrivateKey
	byOwner map[string]*ecdsa.PrivateKey
}

// NewKeySet parses TRON_PRIVATE_KEY(S)_HEX into a key set.
func NewKeySet(cfg config.TronConfig) (*KeySet, error) {
	ks := &KeySet{byOwner: make(map[string]*ecdsa.PrivateKey)}
	for i, hexKey := range cfg.PrivateKeysHex {
		key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
		if err != nil {
			return nil, fmt.Errorf("tron: parse private key #%d: %w", i, err)
		}
		addr := FromPublicKey(&key.PublicKey)
		ks.keys = append(ks.keys, key)
		ks.byOwner[addr.Base58Check()] = key
	}
	if len(ks.keys) == 0 {
		return nil, fmt.Errorf("tron: no private keys configured")
	}
	return ks, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Addresses returns every owned key's Tron address.
func (ks *KeySet) Addresses() []Address {
	out := make([]Address, len(ks.keys))
	for i, k := range ks.keys {
		out[i] = FromPublicKey(&k.PublicKey)
	}
	return out
}

// KeyFor returns the private key owning addr, or nil.
func (ks *KeySet) KeyFor(addr Address) *ecdsa.PrivateKey {
	return ks.byOwner[addr.Base58Check()]
}

// KeyBalance is one owned key's spendable inventory for a fill attempt.
type KeyBalance struct {
	Address    Address
	TRXSun     int64 // balance - reserveSun, floored at 0
	USDTAmount int64
}

// Inventory reads every owned key's TRX and USDT balance, grounded on
// tron_backend/inventory.rs's per-key balance scan that feeds can_fill_preclaim.
func (c *Client) Inventory(ctx context.Context, ks *KeySet, usdtContract Address) ([]KeyBalance, error) {
	out := make([]KeyBalance, 0, len(ks.keys))
	for _, addr := range ks.Addresses() {
		acct, err := c.Node.GetAccount(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("tron: inventory: get account %s: %w", addr.Base58Check(), err)
		}
		trx := acct.BalanceSun - reserveSun
		if trx < 0 {
			trx = 0
		}
		usdt, err := c.usdtBalance(ctx, addr, usdtContract)
		if err != nil {
			return nil, fmt.Errorf("tron: inventory: usdt balance %s: %w", addr.Base58Check(), err)
		}
		out = append(out, KeyBalance{Address: addr, TRXSun: trx, USDTAmount: usdt})
	}
	return out, nil
}

// usdtBalance reads balanceOf(address) via TriggerConstantContract.
func (c *Client) usdtBalance(ctx context.Context, owner, usdtContract Address) (int64, error) {
	data := make([]byte, 4+32)
	copy(data[0:4], []byte{0x70, 0xa0, 0x82, 0x31}) // balanceOf(address)
	copy(data[4+12:4+32], owner.EVM())
	_, result, err := c.Node.TriggerConstantContract(ctx, owner, usdtContract, data, 0)
	if err != nil {
		return 0, err
	}
	if len(result) < 32 {
		return 0, nil
	}
	var v int64
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(result[len(result)-8+i])
	}
	return v, nil
}

// CanFillPreclaim reports whether any single owned key holds enough of the
// required resource (plus reserveSun TRX headroom) to service the fill
// without consolidation, matching tron_backend/inventory.rs's
// can_fill_preclaim for the simple (non-consolidating) case.
func CanFillPreclaim(balances []KeyBalance, needTRXSun, needUSDT int64) (Address, bool) {
	for _, b := range balances {
		if b.TRXSun >= needTRXSun && b.USDTAmount >= needUSDT {
			return b.Address, true
		}
	}
	return Address{}, false
}

// ConsolidationPlan describes the pre:NNNN pull transactions and the final
// spending transaction needed when no single key has sufficient balance,
// bounded by the ConsolidationMax* config caps (§4.6).
type ConsolidationPlan struct {
	PreTxs     []ConsolidationPull
	FinalOwner Address
}

// ConsolidationPull is one "pre:NNNN" sub-transaction pulling TRX from a
// donor key into the key that will send the final transaction.
type ConsolidationPull struct {
	From      Address
	To        Address
	AmountSun int64
}

// PlanConsolidation greedily pulls from the richest donor keys into the
// richest-single key until needSun is covered or the configured bounds are
// hit, mirroring the Rust consolidation planner's greedy-by-balance order.
func PlanConsolidation(balances []KeyBalance, needSun int64, cfg config.TronConfig) (*ConsolidationPlan, error) {
	if !cfg.ConsolidationEnabled {
		return nil, fmt.Errorf("tron: consolidation disabled but no single key covers %d sun", needSun)
	}
	if len(balances) == 0 {
		return nil, fmt.Errorf("tron: consolidation: no keys")
	}

	sorted := append([]KeyBalance(nil), balances...)
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].TRXSun > sorted[i].TRXSun {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	recipient := sorted[0].Address
	have := sorted[0].TRXSun

	plan := &ConsolidationPlan{FinalOwner: recipient}
	var totalPulled uint64
	for _, donor := range sorted[1:] {
		if have >= needSun {
			break
		}
		if len(plan.PreTxs) >= cfg.ConsolidationMaxPreTxs {
			break
		}
		pull := needSun - have
		if pull > int64(cfg.ConsolidationMaxPerTxPull) {
			pull = int64(cfg.ConsolidationMaxPerTxPull)
		}
		if pull > donor.TRXSun {
			pull = donor.TRXSun
		}
		if pull <= 0 {
			continue
		}
		if totalPulled+uint64(pull) > cfg.ConsolidationMaxTotalPull {
			pull = int64(cfg.ConsolidationMaxTotalPull - totalPulled)
			if pull <= 0 {
				break
			}
		}
		plan.PreTxs = append(plan.PreTxs, ConsolidationPull{From: donor.Address, To: recipient, AmountSun: pull})
		have += pull
		totalPulled += uint64(pull)
	}

	if have < needSun {
		return nil, fmt.Errorf("tron: consolidation: only %d of %d sun reachable within bounds", have, needSun)
	}
	return plan, nil
}

// DelegateCapacity is one owned key's remaining delegatable balance for a
// resource: staked (frozen v2) minus already-delegated minus in-flight
// solverdb reservations, mirroring delegate_available_sun_by_key.
type DelegateCapacity struct {
	Owner         Address
	AvailableSun  int64
}

// SelectDelegateExecutor greedily picks the first owned key with enough
// spare delegatable capacity for a delegate_resource job, matching
// candidate.rs's select_delegate_executor_index ordering (first owned key
// in configured order that fits, not the one with the most headroom).
func (c *Client) SelectDelegateExecutor(ctx context.Context, db *solverdb.Db, ks *KeySet, resource protocol.ResourceCode, needSun int64, excludeJobID int64) (*DelegateCapacity, error) {
	resourceName := resourceName(resource)
	for _, addr := range ks.Addresses() {
		ar, err := c.Node.GetAccountResource(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("tron: delegate capacity: account resource %s: %w", addr.Base58Check(), err)
		}
		staked := stakedForResource(ar, resource)
		reserved, err := db.ReservedByOwner(ctx, addr.Base58Check(), resourceName, excludeJobID)
		if err != nil {
			return nil, fmt.Errorf("tron: delegate capacity: reserved sum %s: %w", addr.Base58Check(), err)
		}
		available := staked - reserved
		if available >= needSun {
			return &DelegateCapacity{Owner: addr, AvailableSun: available}, nil
		}
	}
	return nil, fmt.Errorf("tron: delegate capacity: no owned key has %d sun of spare %s", needSun, resourceName)
}

func resourceName(r protocol.ResourceCode) string {
	switch r {
	case protocol.ResourceEnergy:
		return "energy"
	case protocol.ResourceTronPower:
		return "tron_power"
	default:
		return "bandwidth"
	}
}

func stakedForResource(ar AccountResource, r protocol.ResourceCode) int64 {
	if r == protocol.ResourceEnergy {
		return ar.TotalEnergyLimit - ar.DelegatedFrozenV2BalanceForEnergy
	}
	return ar.TotalNetLimit - ar.DelegatedFrozenV2BalanceForBandwidth
}

// Copyright 2025 Certen Protocol

package runner

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/untron/intent-solver/pkg/policy"
	"github.com/untron/intent-solver/pkg/rental"
	"github.com/untron/intent-solver/pkg/tron"
)

// usdtDecimals is the fixed decimal precision of the hub's USDT escrow
// token, used to turn an escrow_amount into an approximate USD revenue
// figure. There is no price-feed integration for TRX or other escrow
// tokens, so non-USDT revenue/cost legs fall back to assumedTRXUSDPrice,
// a fixed estimate rather than a live oracle quote.
const usdtDecimals = 1_000_000.0
const assumedTRXUSDPrice = 0.12
const assumedFixedTronFeeSun = 5_000_000 // ~5 TRX, a conservative trigger-call ceiling

// triageCandidate runs the full admission pipeline for one open intent:
// static/breaker/emulation/own-capacity gates, then (for resell
// delegate_resource candidates) a rental quote, then the profitability
// gate, finally upserting a ready job row when everything admits.
func (r *Runner) triageCandidate(ctx context.Context, c policy.Candidate) error {
	now := time.Now()
	v, err := r.policy.Evaluate(ctx, c, now)
	if err != nil {
		return fmt.Errorf("runner: triage %x: policy evaluate: %w", c.IntentID, err)
	}
	if !v.Admit {
		return nil
	}

	revenueUSD := r.revenueUSD(c)
	costUSD := float64(assumedFixedTronFeeSun) / 1_000_000.0 * assumedTRXUSDPrice
	costUSD += r.capitalLockUSD(c, revenueUSD, now)

	if c.IntentType == policy.IntentTypeDelegateResource {
		spec, err := policy.DecodeDelegateResource(c.IntentSpecs)
		if err != nil {
			return fmt.Errorf("runner: triage %x: decode delegate_resource: %w", c.IntentID, err)
		}
		if spec.Resell {
			quote, err := r.bestRentalQuote(ctx, spec)
			if err != nil {
				if skipErr := r.policy.Skip(ctx, c, "rental_quote_failed", err.Error()); skipErr != nil {
					return fmt.Errorf("runner: triage %x: record rental_quote_failed: %w", c.IntentID, skipErr)
				}
				return nil
			}
			costUSD += float64(quote.CostSun) / 1_000_000.0 * assumedTRXUSDPrice
		}
	}

	pv, err := r.policy.EvaluateProfitability(ctx, c, revenueUSD, costUSD)
	if err != nil {
		return fmt.Errorf("runner: triage %x: profitability: %w", c.IntentID, err)
	}
	if !pv.Admit {
		return nil
	}

	if !r.preclaimInventoryOK(ctx, c) {
		if skipErr := r.policy.Skip(ctx, c, "inventory_insufficient", ""); skipErr != nil {
			return fmt.Errorf("runner: triage %x: record inventory_insufficient: %w", c.IntentID, skipErr)
		}
		return nil
	}

	if _, err := r.db.UpsertReadyJob(ctx, c.IntentID[:], int16(c.IntentType), c.IntentSpecs, c.Deadline); err != nil {
		return fmt.Errorf("runner: triage %x: upsert ready job: %w", c.IntentID, err)
	}
	return nil
}

func (r *Runner) revenueUSD(c policy.Candidate) float64 {
	if c.EscrowAmount == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(c.EscrowAmount).Float64()
	if c.EscrowToken == r.usdtHub {
		return f / usdtDecimals
	}
	return f / 1e18 * assumedTRXUSDPrice // non-USDT escrow: priced as if TRX-denominated, a placeholder
}

// capitalLockUSD approximates the opportunity cost of capital locked from now
// until the intent's deadline, per PolicyConfig.CapitalLockPPMPerDay.
func (r *Runner) capitalLockUSD(c policy.Candidate, revenueUSD float64, now time.Time) float64 {
	if r.policyCfg.CapitalLockPPMPerDay == 0 {
		return 0
	}
	lockDays := float64(c.Deadline-now.Unix()) / 86400.0
	if lockDays < 0 {
		lockDays = 0
	}
	return revenueUSD * (float64(r.policyCfg.CapitalLockPPMPerDay) / 1_000_000.0) * lockDays
}

func (r *Runner) bestRentalQuote(ctx context.Context, spec policy.DelegateResourceSpec) (rental.Quote, error) {
	resourceKind := "bandwidth"
	if spec.Resource == 1 {
		resourceKind = "energy"
	}
	ph := rental.Placeholders{
		ResourceKind:  resourceKind,
		BalanceSun:    spec.BalanceSun.Int64(),
		LockPeriod:    spec.LockPeriodSec.Int64(),
		DurationHours: spec.LockPeriodSec.Int64() / 3600,
	}
	quotes, err := r.rental.QuoteAll(ctx, r.tronCfg.EnergyRentalProviders, ph)
	if err != nil {
		return rental.Quote{}, err
	}
	if len(quotes) == 0 {
		return rental.Quote{}, fmt.Errorf("no rental quotes available")
	}
	return quotes[0], nil
}

// preclaimInventoryOK checks at least one owned Tron key can service this
// candidate without consolidation, or that consolidation is enabled (then
// it admits the candidate without a fit), for the intent types that spend directly
// from solver-owned inventory (delegate_resource resell and rental-funded
// paths are exempt, since they spend a rental provider's resource instead).
func (r *Runner) preclaimInventoryOK(ctx context.Context, c policy.Candidate) bool {
	if r.tronClient == nil || r.keys == nil {
		return true
	}
	switch c.IntentType {
	case policy.IntentTypeTRXTransfer:
		spec, err := policy.DecodeTRXTransfer(c.IntentSpecs)
		if err != nil {
			return false
		}
		balances, err := r.tronClient.Inventory(ctx, r.keys, r.usdtTron)
		if err != nil {
			logger.Printf("⚠️ inventory check failed for %x: %v", c.IntentID, err)
			return false
		}
		_, ok := tron.CanFillPreclaim(balances, spec.AmountSun.Int64(), 0)
		return ok || r.tronCfg.ConsolidationEnabled
	case policy.IntentTypeUSDTTransfer:
		spec, err := policy.DecodeUSDTTransfer(c.IntentSpecs)
		if err != nil {
			return false
		}
		balances, err := r.tronClient.Inventory(ctx, r.keys, r.usdtTron)
		if err != nil {
			logger.Printf("⚠️ inventory check failed for %x: %v", c.IntentID, err)
			return false
		}
		_, ok := tron.CanFillPreclaim(balances, 0, spec.Amount.Int64())
		return ok || r.tronCfg.ConsolidationEnabled
	default:
		return true
	}
}

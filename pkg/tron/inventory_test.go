// Copyright 2025 Certen Protocol

package tron

import (
	"testing"

	"github.com/untron/intent-solver/pkg/config"
)

func addrN(n byte) Address {
	evm := make([]byte, 20)
	evm[19] = n
	return FromEVM(evm)
}

func TestCanFillPreclaimPicksSufficientKey(t *testing.T) {
	balances := []KeyBalance{
		{Address: addrN(1), TRXSun: 100},
		{Address: addrN(2), TRXSun: 5_000, USDTAmount: 10},
		{Address: addrN(3), TRXSun: 50},
	}
	owner, ok := CanFillPreclaim(balances, 4_000, 0)
	if !ok {
		t.Fatalf("expected a key to cover 4000 sun")
	}
	if owner.Base58Check() != addrN(2).Base58Check() {
		t.Fatalf("owner = %s, want key 2", owner.Base58Check())
	}

	if _, ok := CanFillPreclaim(balances, 6_000, 0); ok {
		t.Fatalf("no single key covers 6000 sun, expected !ok")
	}
	if _, ok := CanFillPreclaim(balances, 1_000, 20); ok {
		t.Fatalf("no key has 20 usdt, expected !ok")
	}
}

func consolidationCfg(maxPre int, maxTotal, maxPer uint64) config.TronConfig {
	return config.TronConfig{
		ConsolidationEnabled:      true,
		ConsolidationMaxPreTxs:    maxPre,
		ConsolidationMaxTotalPull: maxTotal,
		ConsolidationMaxPerTxPull: maxPer,
	}
}

func TestPlanConsolidationPullsIntoRichestKey(t *testing.T) {
	balances := []KeyBalance{
		{Address: addrN(1), TRXSun: 1_000},
		{Address: addrN(2), TRXSun: 3_000},
		{Address: addrN(3), TRXSun: 2_000},
	}
	plan, err := PlanConsolidation(balances, 5_000, consolidationCfg(4, 1_000_000, 1_000_000))
	if err != nil {
		t.Fatalf("PlanConsolidation: %v", err)
	}
	if plan.FinalOwner.Base58Check() != addrN(2).Base58Check() {
		t.Fatalf("final owner = %s, want richest key 2", plan.FinalOwner.Base58Check())
	}
	if len(plan.PreTxs) != 1 {
		t.Fatalf("pre-tx count = %d, want 1 (richest donor covers the gap)", len(plan.PreTxs))
	}
	p := plan.PreTxs[0]
	if p.From.Base58Check() != addrN(3).Base58Check() || p.AmountSun != 2_000 {
		t.Fatalf("pre-tx = from %s amount %d, want from key 3 amount 2000", p.From.Base58Check(), p.AmountSun)
	}
	if p.To.Base58Check() != plan.FinalOwner.Base58Check() {
		t.Fatalf("pre-tx recipient = %s, want final owner", p.To.Base58Check())
	}
}

func TestPlanConsolidationRespectsMaxPreTxs(t *testing.T) {
	balances := []KeyBalance{
		{Address: addrN(1), TRXSun: 1_000},
		{Address: addrN(2), TRXSun: 1_000},
		{Address: addrN(3), TRXSun: 1_000},
		{Address: addrN(4), TRXSun: 1_000},
	}
	if _, err := PlanConsolidation(balances, 3_500, consolidationCfg(1, 1_000_000, 1_000_000)); err == nil {
		t.Fatalf("expected failure: one pre-tx cannot bridge a 2500 sun gap")
	}
	plan, err := PlanConsolidation(balances, 3_500, consolidationCfg(3, 1_000_000, 1_000_000))
	if err != nil {
		t.Fatalf("PlanConsolidation: %v", err)
	}
	if len(plan.PreTxs) != 3 {
		t.Fatalf("pre-tx count = %d, want 3", len(plan.PreTxs))
	}
}

func TestPlanConsolidationRespectsPerTxCap(t *testing.T) {
	balances := []KeyBalance{
		{Address: addrN(1), TRXSun: 1_500},
		{Address: addrN(2), TRXSun: 1_400},
		{Address: addrN(3), TRXSun: 1_300},
	}
	plan, err := PlanConsolidation(balances, 2_500, consolidationCfg(4, 1_000_000, 600))
	if err != nil {
		t.Fatalf("PlanConsolidation: %v", err)
	}
	var have int64 = 1_500
	for _, p := range plan.PreTxs {
		if p.AmountSun > 600 {
			t.Fatalf("pre-tx pulls %d sun, cap is 600", p.AmountSun)
		}
		have += p.AmountSun
	}
	if have < 2_500 {
		t.Fatalf("plan only reaches %d sun, need 2500", have)
	}

	if _, err := PlanConsolidation(balances, 2_500, consolidationCfg(2, 1_000_000, 300)); err == nil {
		t.Fatalf("expected failure: two 300-sun pulls cannot bridge a 1000 sun gap")
	}
}

func TestPlanConsolidationRespectsTotalCap(t *testing.T) {
	balances := []KeyBalance{
		{Address: addrN(1), TRXSun: 5_000},
		{Address: addrN(2), TRXSun: 5_000},
		{Address: addrN(3), TRXSun: 5_000},
	}
	if _, err := PlanConsolidation(balances, 12_000, consolidationCfg(4, 4_000, 1_000_000)); err == nil {
		t.Fatalf("expected failure: total pull cap 4000 cannot bridge a 7000 sun gap")
	}
	plan, err := PlanConsolidation(balances, 8_000, consolidationCfg(4, 4_000, 1_000_000))
	if err != nil {
		t.Fatalf("PlanConsolidation: %v", err)
	}
	var total int64
	for _, p := range plan.PreTxs {
		total += p.AmountSun
	}
	if total > 4_000 {
		t.Fatalf("total pulled = %d, cap is 4000", total)
	}
}

func TestPlanConsolidationDisabled(t *testing.T) {
	balances := []KeyBalance{{Address: addrN(1), TRXSun: 1}}
	cfg := consolidationCfg(4, 1_000_000, 1_000_000)
	cfg.ConsolidationEnabled = false
	if _, err := PlanConsolidation(balances, 1_000, cfg); err == nil {
		t.Fatalf("expected error when consolidation is disabled")
	}
}

// Copyright 2025 Certen Protocol

package policy

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/solverdb"
	"github.com/untron/intent-solver/pkg/telemetry"
	"github.com/untron/intent-solver/pkg/tron"
)

var logger = log.New(os.Stdout, "[policy] ", log.LstdFlags)

// Verdict is the outcome of one admission pass. A rejected candidate has
// already had its solver.intent_skips row written by the time Evaluate
// returns, so callers only need to branch on Admit.
type Verdict struct {
	Admit  bool
	Reason string
	Detail string
}

func reject(reason, detail string) Verdict { return Verdict{Admit: false, Reason: reason, Detail: detail} }

var admitted = Verdict{Admit: true}

// Engine applies the admission gates in a fixed order: basic eligibility,
// per-type static checks, circuit breaker, emulation, capacity, then
// profitability.
type Engine struct {
	cfg              config.PolicyConfig
	db               *solverdb.Db
	tron             *tron.Client
	keys             *tron.KeySet
	emulationEnabled bool

	// Telemetry is optional; set by cmd/solver after construction so
	// policy_test.go's direct New(...) calls don't need a telemetry arg.
	Telemetry *telemetry.Telemetry

	allowlist     map[string]bool
	denylist      map[string]bool
	selectorDeny  map[[4]byte]bool
	escrowAllowed map[string]bool
}

// New builds the admission engine. tronClient/keys may be nil when
// emulationEnabled and delegate-resource admission are both unused, since
// only those paths need live Tron reads.
func New(cfg config.PolicyConfig, emulationEnabled bool, db *solverdb.Db, tronClient *tron.Client, keys *tron.KeySet) *Engine {
	e := &Engine{
		cfg: cfg, db: db, tron: tronClient, keys: keys, emulationEnabled: emulationEnabled,
		allowlist:     toLowerSet(cfg.TriggerContractAllowlist),
		denylist:      toLowerSet(cfg.TriggerContractDenylist),
		selectorDeny:  make(map[[4]byte]bool, len(cfg.TriggerSelectorDenylist)),
		escrowAllowed: toLowerSet(cfg.AllowedEscrowTokens),
	}
	for _, sel := range cfg.TriggerSelectorDenylist {
		e.selectorDeny[sel] = true
	}
	return e
}

func toLowerSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, s := range items {
		out[strings.ToLower(s)] = true
	}
	return out
}

// Evaluate runs the basic gates and per-type static checks against c,
// persisting an intent_skips row on any rejection. Emulation and the
// circuit breaker are included; profitability (which needs a cost estimate
// computed after this pass admits) is a separate call, EvaluateProfitability.
func (e *Engine) Evaluate(ctx context.Context, c Candidate, now time.Time) (Verdict, error) {
	if v := e.basicGates(c, now); !v.Admit {
		return e.skip(ctx, c, v)
	}
	if !e.intentTypeEnabled(c.IntentType) {
		return e.skip(ctx, c, reject("intent_type_disabled", c.IntentType.String()))
	}

	var v Verdict
	var err error
	switch c.IntentType {
	case IntentTypeTRXTransfer:
		v, err = e.checkTRXTransfer(c)
	case IntentTypeUSDTTransfer:
		v, err = e.checkUSDTTransfer(c)
	case IntentTypeDelegateResource:
		v, err = e.checkDelegateResource(ctx, c)
	case IntentTypeTriggerSmartContract:
		v, err = e.checkTrigger(ctx, c)
	default:
		v = reject("intent_type_disabled", "unrecognized intent_type")
	}
	if err != nil {
		return Verdict{}, err
	}
	if !v.Admit {
		return e.skip(ctx, c, v)
	}
	return admitted, nil
}

func (e *Engine) skip(ctx context.Context, c Candidate, v Verdict) (Verdict, error) {
	if err := e.db.InsertIntentSkip(ctx, c.IntentID[:], int16(c.IntentType), v.Reason, v.Detail); err != nil {
		return Verdict{}, fmt.Errorf("policy: record skip: %w", err)
	}
	if e.Telemetry != nil {
		e.Telemetry.IntentSkipTotal.WithLabelValues(v.Reason).Inc()
	}
	logger.Printf("🚫 intent %x skipped: %s (%s)", c.IntentID, v.Reason, v.Detail)
	return v, nil
}

func (e *Engine) intentTypeEnabled(t IntentType) bool {
	for _, v := range e.cfg.EnabledIntentTypes {
		if v == int16(t) {
			return true
		}
	}
	return false
}

// basicGates runs the checks shared by every intent type, first-match-wins:
// closed/already-solved, funding, already-claimed, deadline slack.
func (e *Engine) basicGates(c Candidate, now time.Time) Verdict {
	if c.Closed || c.Solved {
		return reject("closed_or_solved", "")
	}
	if !c.Funded {
		return reject("not_funded", "")
	}
	if c.Solver != (common.Address{}) {
		return reject("already_claimed", c.Solver.Hex())
	}
	slack := c.Deadline - now.Unix()
	if slack < e.cfg.MinDeadlineSlackSecs {
		return reject("deadline_slack", fmt.Sprintf("slack=%ds min=%ds", slack, e.cfg.MinDeadlineSlackSecs))
	}
	// Only a profitability-gated run needs the escrow token to be in the
	// allowed-priced set: revenue can't be valued for an unpriced token.
	if e.cfg.MinProfitUSD > 0 || e.cfg.RequirePricedEscrow {
		if len(e.escrowAllowed) > 0 && !e.escrowAllowed[strings.ToLower(c.EscrowToken.Hex())] {
			return reject("escrow_token_disallowed", c.EscrowToken.Hex())
		}
	}
	return admitted
}

func (e *Engine) checkTRXTransfer(c Candidate) (Verdict, error) {
	spec, err := DecodeTRXTransfer(c.IntentSpecs)
	if err != nil {
		return reject("intent_specs_undecodable", err.Error()), nil
	}
	if e.cfg.MaxTRXTransferSun != nil && spec.AmountSun.Cmp(new(big.Int).SetUint64(*e.cfg.MaxTRXTransferSun)) > 0 {
		return reject("amount_cap", fmt.Sprintf("amount=%s cap=%d", spec.AmountSun, *e.cfg.MaxTRXTransferSun)), nil
	}
	return admitted, nil
}

func (e *Engine) checkUSDTTransfer(c Candidate) (Verdict, error) {
	spec, err := DecodeUSDTTransfer(c.IntentSpecs)
	if err != nil {
		return reject("intent_specs_undecodable", err.Error()), nil
	}
	if e.cfg.MaxUSDTTransferAmount != nil && spec.Amount.Cmp(new(big.Int).SetUint64(*e.cfg.MaxUSDTTransferAmount)) > 0 {
		return reject("amount_cap", fmt.Sprintf("amount=%s cap=%d", spec.Amount, *e.cfg.MaxUSDTTransferAmount)), nil
	}
	return admitted, nil
}

func (e *Engine) checkDelegateResource(ctx context.Context, c Candidate) (Verdict, error) {
	spec, err := DecodeDelegateResource(c.IntentSpecs)
	if err != nil {
		return reject("intent_specs_undecodable", err.Error()), nil
	}
	if spec.Resell && !e.cfg.DelegateResourceResellEnabled {
		return reject("resell_disabled", ""), nil
	}
	if e.cfg.MaxDelegateBalanceSun != nil && spec.BalanceSun.Cmp(new(big.Int).SetUint64(*e.cfg.MaxDelegateBalanceSun)) > 0 {
		return reject("amount_cap", fmt.Sprintf("balance=%s cap=%d", spec.BalanceSun, *e.cfg.MaxDelegateBalanceSun)), nil
	}
	if e.cfg.MaxDelegateLockPeriodSec != nil && spec.LockPeriodSec.Cmp(new(big.Int).SetUint64(*e.cfg.MaxDelegateLockPeriodSec)) > 0 {
		return reject("lock_period_cap", fmt.Sprintf("lock=%s cap=%d", spec.LockPeriodSec, *e.cfg.MaxDelegateLockPeriodSec)), nil
	}
	if !spec.Resell {
		if e.tron == nil || e.keys == nil || e.db == nil {
			return reject("delegate_capacity_unavailable", "tron client not configured"), nil
		}
		if _, err := e.tron.SelectDelegateExecutor(ctx, e.db, e.keys, spec.Resource, spec.BalanceSun.Int64(), 0); err != nil {
			return reject("delegate_capacity_insufficient", err.Error()), nil
		}
	}
	return admitted, nil
}

func (e *Engine) checkTrigger(ctx context.Context, c Candidate) (Verdict, error) {
	spec, err := DecodeTrigger(c.IntentSpecs)
	if err != nil {
		return reject("intent_specs_undecodable", err.Error()), nil
	}
	contractHex := strings.ToLower(spec.Contract.Hex())
	if len(e.allowlist) > 0 && !e.allowlist[contractHex] {
		return reject("trigger_contract_denied", spec.Contract.Hex()), nil
	}
	if e.denylist[contractHex] {
		return reject("trigger_contract_denied", spec.Contract.Hex()), nil
	}
	var selector [4]byte
	hasSelector := len(spec.Calldata) >= 4
	if hasSelector {
		copy(selector[:], spec.Calldata[:4])
		if e.selectorDeny[selector] {
			return reject("trigger_selector_denied", fmt.Sprintf("%x", selector)), nil
		}
	} else if !e.cfg.TriggerAllowFallbackCalls {
		return reject("fallback_calls_disallowed", ""), nil
	}
	if e.cfg.MaxTriggerCallValueSun != nil && spec.CallValueSun.Cmp(new(big.Int).SetUint64(*e.cfg.MaxTriggerCallValueSun)) > 0 {
		return reject("amount_cap", fmt.Sprintf("call_value=%s cap=%d", spec.CallValueSun, *e.cfg.MaxTriggerCallValueSun)), nil
	}
	if e.cfg.MaxTriggerCalldataLen != nil && uint64(len(spec.Calldata)) > *e.cfg.MaxTriggerCalldataLen {
		return reject("calldata_too_long", fmt.Sprintf("len=%d cap=%d", len(spec.Calldata), *e.cfg.MaxTriggerCalldataLen)), nil
	}

	open, err := e.db.BreakerOpen(ctx, spec.Contract.Bytes(), selectorOrNil(hasSelector, selector))
	if err != nil {
		return Verdict{}, fmt.Errorf("policy: breaker check: %w", err)
	}
	if open {
		return reject("breaker_active", spec.Contract.Hex()), nil
	}

	if e.emulationEnabled && e.tron != nil && e.keys != nil {
		ok, reason := e.emulate(ctx, spec)
		if err := e.db.InsertIntentEmulation(ctx, c.IntentID[:], ok, reason, spec.Contract.Bytes(), selectorOrNil(hasSelector, selector)); err != nil {
			return Verdict{}, fmt.Errorf("policy: record emulation: %w", err)
		}
		if !ok {
			return reject("emulation_failed", reason), nil
		}
	}
	return admitted, nil
}

func selectorOrNil(has bool, sel [4]byte) []byte {
	if !has {
		return nil
	}
	return sel[:]
}

// emulate dry-runs the trigger call against a live Tron node via
// TriggerConstantContract, using the first owned key as the simulated
// caller. A constant-call revert means the real signed call would revert
// too, since java-tron's constant path executes the same bytecode.
func (e *Engine) emulate(ctx context.Context, spec TriggerSpec) (bool, string) {
	addrs := e.keys.Addresses()
	if len(addrs) == 0 {
		return false, "no owned key to emulate from"
	}
	owner := addrs[0]
	contract := tron.FromEVM(spec.Contract.Bytes())
	_, _, err := e.tron.Node.TriggerConstantContract(ctx, owner, contract, spec.Calldata, spec.CallValueSun.Int64())
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Skip records an admission rejection decided outside the engine's own
// checks (e.g. the runner's rental-quote step failing for every provider),
// keeping all intent_skips writes on one code path.
func (e *Engine) Skip(ctx context.Context, c Candidate, reason, detail string) error {
	_, err := e.skip(ctx, c, reject(reason, detail))
	return err
}

// EvaluateProfitability is the last gate (§4.7): a candidate only reaches it
// after every static check admits it and, for resell delegate_resource
// candidates, a rental quote has been obtained. costUSD bundles every
// projected outlay (hub gas, Tron fee, rental cost); revenueUSD is the
// escrow value net of whatever haircut the caller applies for unpriced
// tokens.
func (e *Engine) EvaluateProfitability(ctx context.Context, c Candidate, revenueUSD, costUSD float64) (Verdict, error) {
	profitUSD := revenueUSD - costUSD
	if profitUSD < e.cfg.MinProfitUSD {
		return e.skip(ctx, c, reject("unprofitable", fmt.Sprintf("profit=%.4f min=%.4f", profitUSD, e.cfg.MinProfitUSD)))
	}
	return admitted, nil
}

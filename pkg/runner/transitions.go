// Copyright 2025 Certen Protocol

package runner

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/hub"
	"github.com/untron/intent-solver/pkg/policy"
	"github.com/untron/intent-solver/pkg/rental"
	"github.com/untron/intent-solver/pkg/solverdb"
	"github.com/untron/intent-solver/pkg/tron"
	"github.com/untron/intent-solver/pkg/tron/protocol"
)

// claimAllowanceFloor is the USDT allowance the solver keeps standing against
// the pool before claiming. Rather than approve the exact amount a claim
// will draw and have to re-approve on every job, the solver tops allowance
// up once to a large fixed floor and leaves it there.
var claimAllowanceFloor = new(big.Int).Lsh(big.NewInt(1), 128)

// tronInclusionWait bounds how long one broadcast step waits for inclusion
// before giving up and surfacing a retryable error.
const tronInclusionWait = 60 * time.Second

// advance moves a job to newState under lease and counts the transition in
// telemetry by resulting state.
func (r *Runner) advance(ctx context.Context, jobID int64, newState solverdb.JobState) error {
	if err := r.db.AdvanceState(ctx, jobID, r.leaseOwner, newState); err != nil {
		return err
	}
	if r.tel != nil {
		r.tel.JobStateTotal.WithLabelValues(string(newState)).Inc()
	}
	return nil
}

// processJob dispatches a leased job to the transition for its current
// state, then routes the result through handleStepOutcome. Exactly one state
// transition runs per call: acquire lease -> read state -> pick transition
// -> perform I/O -> persist -> release.
func (r *Runner) processJob(ctx context.Context, job solverdb.Job) {
	sem := r.semaphoreFor(job.IntentType)
	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			return
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Printf("🛑 job=%d panic in transition: %v", job.JobID, rec)
			if err := r.db.ReleaseLease(ctx, job.JobID, r.leaseOwner); err != nil {
				logger.Printf("❌ job=%d release lease after panic: %v", job.JobID, err)
			}
		}
	}()

	var err error
	switch job.State {
	case solverdb.JobReady:
		err = r.transitionClaim(ctx, job)
	case solverdb.JobClaimed:
		err = r.transitionPrepareTron(ctx, job)
	case solverdb.JobTronPrepared:
		err = r.transitionBroadcastTron(ctx, job)
	case solverdb.JobTronSent:
		err = r.transitionBuildProof(ctx, job)
	case solverdb.JobProofBuilt:
		err = r.transitionProve(ctx, job)
	case solverdb.JobProved, solverdb.JobProvedWaitingFunding, solverdb.JobProvedWaitingSettle:
		err = r.transitionFinalize(ctx, job)
	default:
		logger.Printf("⚠️ job=%d in unrecognized state %q, releasing lease", job.JobID, job.State)
		if relErr := r.db.ReleaseLease(ctx, job.JobID, r.leaseOwner); relErr != nil {
			logger.Printf("❌ job=%d release lease: %v", job.JobID, relErr)
		}
		return
	}
	r.handleStepOutcome(ctx, job, err)
}

// handleStepOutcome classifies a transition's error per §7's taxonomy and
// writes the corresponding terminal/retry bookkeeping. A nil error means the
// transition already persisted its own state advance and needs nothing
// further here.
func (r *Runner) handleStepOutcome(ctx context.Context, job solverdb.Job, err error) {
	if err == nil {
		return
	}

	var leaseLost *solverdb.ErrLeaseLost
	if errors.As(err, &leaseLost) {
		logger.Printf("⚠️ job=%d lost its lease mid-step, abandoning without further writes", job.JobID)
		return
	}

	if isFatal(err) {
		logger.Printf("🛑 job=%d fatal: %v", job.JobID, err)
		if ferr := r.db.FailFatal(ctx, job.JobID, r.leaseOwner, err.Error()); ferr != nil {
			logger.Printf("❌ job=%d persist failed_fatal: %v", job.JobID, ferr)
		}
		if r.tel != nil {
			r.tel.JobStateTotal.WithLabelValues(string(solverdb.JobFailedFatal)).Inc()
		}
		if rerr := r.db.ReleaseReservation(ctx, job.JobID); rerr != nil {
			logger.Printf("❌ job=%d release reservation on fatal: %v", job.JobID, rerr)
		}
		r.tripBreakerOnTronFailure(ctx, job, err)
		paused, perr := r.db.RecordFatalForPause(ctx, "claims", r.jobsCfg.GlobalPauseWindow, r.jobsCfg.GlobalPauseDuration, r.jobsCfg.GlobalPauseFailThreshold, err.Error())
		if perr != nil {
			logger.Printf("❌ job=%d record fatal for global pause: %v", job.JobID, perr)
		} else if paused {
			logger.Printf("🛑 fatal-failure rate crossed threshold, claims paused for %s", r.jobsCfg.GlobalPauseDuration)
			if r.tel != nil {
				r.tel.GlobalPausedTotal.Inc()
			}
		}
		return
	}

	delay := backoffDelay(job.Attempts, r.jobsCfg.BackoffBase, r.jobsCfg.BackoffCap)
	logger.Printf("⚠️ job=%d transient error, retrying in %s: %v", job.JobID, delay, err)
	if rerr := r.db.RetryLater(ctx, job.JobID, r.leaseOwner, time.Now().Add(delay), err.Error()); rerr != nil {
		logger.Printf("❌ job=%d persist retry-later: %v", job.JobID, rerr)
	}
}

// tripBreakerOnTronFailure counts an on-chain Tron contract failure against
// the (contract, selector) circuit breaker. Only trigger and USDT-transfer
// jobs touch a contract; the failure counts harder when a pre-claim
// emulation had said the call would succeed, since that discrepancy means
// the contract behaves differently under real execution.
func (r *Runner) tripBreakerOnTronFailure(ctx context.Context, job solverdb.Job, failure error) {
	if !strings.Contains(failure.Error(), "tron_tx_failed") {
		return
	}

	var contract []byte
	var selector []byte
	switch policy.IntentType(job.IntentType) {
	case policy.IntentTypeTriggerSmartContract:
		spec, err := policy.DecodeTrigger(job.IntentSpecs)
		if err != nil {
			return
		}
		contract = spec.Contract.Bytes()
		if len(spec.Calldata) >= 4 {
			selector = spec.Calldata[:4]
		}
	case policy.IntentTypeUSDTTransfer:
		contract = r.usdtTron.EVM()
		selector = []byte{0xa9, 0x05, 0x9c, 0xbb}
	default:
		return
	}

	weight := 1
	if emu, err := r.db.GetIntentEmulation(ctx, job.IntentID); err == nil && emu != nil && emu.OK {
		weight = r.policyCfg.BreakerDiscrepancyWeight
		if weight < 1 {
			weight = 1
		}
	}
	if err := r.db.TripBreaker(ctx, contract, selector, weight, r.policyCfg.BreakerFailThreshold, r.policyCfg.BreakerCooldown, failure.Error()); err != nil {
		logger.Printf("❌ job=%d trip breaker: %v", job.JobID, err)
	}
}

// transitionClaim implements ready -> claimed.
func (r *Runner) transitionClaim(ctx context.Context, job solverdb.Job) error {
	paused, reason, err := r.db.GlobalPaused(ctx, "claims")
	if err != nil {
		return fmt.Errorf("runner: job=%d check global pause: %w", job.JobID, err)
	}
	if paused {
		return fmt.Errorf("runner: job=%d claims are globally paused: %s", job.JobID, reason)
	}
	if !r.allowClaim() {
		return fmt.Errorf("runner: job=%d claim rate limit exceeded", job.JobID)
	}

	if policy.IntentType(job.IntentType) == policy.IntentTypeDelegateResource {
		if err := r.reserveDelegateIfOwnCapacity(ctx, job); err != nil {
			return err
		}
	}

	if err := r.hub.EnsureERC20Allowance(ctx, r.hub.PoolUSDT(), r.poolAddr, claimAllowanceFloor); err != nil {
		return fmt.Errorf("runner: job=%d ensure usdt allowance: %w", job.JobID, err)
	}

	var intentID [32]byte
	copy(intentID[:], job.IntentID)

	outcome, err := r.hub.ClaimIntent(ctx, job.JobID, intentID)
	if err != nil {
		return fmt.Errorf("runner: job=%d claim_intent: %w", job.JobID, err)
	}
	if outcome.Fatal || !outcome.Success {
		reason := outcome.FatalReason
		if reason == "" {
			reason = "claimIntent reverted onchain"
		}
		return fatal(fmt.Errorf("job=%d claim_intent fatal: %s", job.JobID, reason))
	}
	if err := r.db.SetClaimTxHash(ctx, job.JobID, r.leaseOwner, outcome.TxHash); err != nil {
		return err
	}
	return r.advance(ctx, job.JobID, solverdb.JobClaimed)
}

// reserveDelegateIfOwnCapacity reserves delegatable capacity on one owned
// Tron key for a non-resell delegate_resource job, before the job ever signs
// anything for it, so two concurrently-claiming replicas can't both plan
// against the same headroom.
func (r *Runner) reserveDelegateIfOwnCapacity(ctx context.Context, job solverdb.Job) error {
	spec, err := policy.DecodeDelegateResource(job.IntentSpecs)
	if err != nil {
		return fatal(fmt.Errorf("job=%d decode delegate_resource specs: %w", job.JobID, err))
	}
	if spec.Resell {
		return nil
	}
	needSun := spec.BalanceSun.Int64()
	capacity, err := r.tronClient.SelectDelegateExecutor(ctx, r.db, r.keys, spec.Resource, needSun, job.JobID)
	if err != nil {
		return fmt.Errorf("runner: job=%d select delegate executor: %w", job.JobID, err)
	}
	until := time.Now().Add(time.Duration(spec.LockPeriodSec.Int64())*time.Second + leaseDuration*2)
	if err := r.db.ReserveDelegateCapacity(ctx, solverdb.DelegateReservation{
		JobID:         job.JobID,
		OwnerAddress:  capacity.Owner.Base58Check(),
		Resource:      delegateResourceKindName(spec.Resource),
		AmountSun:     needSun,
		ReservedUntil: until,
	}); err != nil {
		return fmt.Errorf("runner: job=%d reserve delegate capacity: %w", job.JobID, err)
	}
	return nil
}

// transitionPrepareTron implements claimed -> tron_prepared, dispatching the
// Tron plan build on intent type, then (TRON_MODE=mock only) short-circuiting
// straight to proof_built.
func (r *Runner) transitionPrepareTron(ctx context.Context, job solverdb.Job) error {
	var err error
	switch policy.IntentType(job.IntentType) {
	case policy.IntentTypeTRXTransfer:
		err = r.prepareTRXTransfer(ctx, job)
	case policy.IntentTypeUSDTTransfer:
		err = r.prepareUSDTTransfer(ctx, job)
	case policy.IntentTypeDelegateResource:
		err = r.prepareDelegateResource(ctx, job)
	case policy.IntentTypeTriggerSmartContract:
		err = r.prepareTrigger(ctx, job)
	default:
		return fatal(fmt.Errorf("job=%d unknown intent_type %d", job.JobID, job.IntentType))
	}
	if err != nil {
		return err
	}

	if r.tronCfg.Mode == config.TronModeMock {
		return r.shortCircuitMockProof(ctx, job)
	}
	return r.advance(ctx, job.JobID, solverdb.JobTronPrepared)
}

func (r *Runner) prepareTRXTransfer(ctx context.Context, job solverdb.Job) error {
	spec, err := policy.DecodeTRXTransfer(job.IntentSpecs)
	if err != nil {
		return fatal(fmt.Errorf("job=%d decode trx_transfer specs: %w", job.JobID, err))
	}
	to := tron.FromEVM(spec.To.Bytes())
	amountSun := spec.AmountSun.Int64()

	owner, err := r.ensureFinalOwner(ctx, job, amountSun, 0)
	if err != nil {
		return err
	}
	key := r.keys.KeyFor(owner)
	if key == nil {
		return fatal(fmt.Errorf("job=%d no owned key for %s", job.JobID, owner.Base58Check()))
	}
	signed, err := r.tronClient.BuildTransfer(ctx, key, to, amountSun)
	if err != nil {
		return fmt.Errorf("runner: job=%d build trx transfer: %w", job.JobID, err)
	}
	return r.persistFinal(ctx, job, signed)
}

func (r *Runner) prepareUSDTTransfer(ctx context.Context, job solverdb.Job) error {
	spec, err := policy.DecodeUSDTTransfer(job.IntentSpecs)
	if err != nil {
		return fatal(fmt.Errorf("job=%d decode usdt_transfer specs: %w", job.JobID, err))
	}
	to := tron.FromEVM(spec.To.Bytes())
	amount := spec.Amount.Int64()

	owner, err := r.ensureFinalOwner(ctx, job, 0, amount)
	if err != nil {
		return err
	}
	key := r.keys.KeyFor(owner)
	if key == nil {
		return fatal(fmt.Errorf("job=%d no owned key for %s", job.JobID, owner.Base58Check()))
	}
	feePolicy := tron.FeePolicy{CapSun: r.tronCfg.FeeLimitCapSun, HeadroomPPM: r.tronCfg.FeeLimitHeadroomPPM}
	signed, err := r.tronClient.BuildUSDTTransfer(ctx, key, r.usdtTron, to, amount, feePolicy)
	if err != nil {
		return fmt.Errorf("runner: job=%d build usdt transfer: %w", job.JobID, err)
	}
	return r.persistFinal(ctx, job, signed)
}

func (r *Runner) prepareTrigger(ctx context.Context, job solverdb.Job) error {
	spec, err := policy.DecodeTrigger(job.IntentSpecs)
	if err != nil {
		return fatal(fmt.Errorf("job=%d decode trigger_smart_contract specs: %w", job.JobID, err))
	}
	addrs := r.keys.Addresses()
	if len(addrs) == 0 {
		return fatal(fmt.Errorf("job=%d no tron keys configured", job.JobID))
	}
	owner := addrs[0]
	key := r.keys.KeyFor(owner)
	contractAddr := tron.FromEVM(spec.Contract.Bytes())
	feePolicy := tron.FeePolicy{CapSun: r.tronCfg.FeeLimitCapSun, HeadroomPPM: r.tronCfg.FeeLimitHeadroomPPM}
	signed, err := r.tronClient.BuildTriggerSmartContract(ctx, key, contractAddr, spec.Calldata, spec.CallValueSun.Int64(), feePolicy)
	if err != nil {
		return fmt.Errorf("runner: job=%d build trigger call: %w", job.JobID, err)
	}
	return r.persistFinal(ctx, job, signed)
}

func (r *Runner) prepareDelegateResource(ctx context.Context, job solverdb.Job) error {
	spec, err := policy.DecodeDelegateResource(job.IntentSpecs)
	if err != nil {
		return fatal(fmt.Errorf("job=%d decode delegate_resource specs: %w", job.JobID, err))
	}
	if spec.Resell {
		return r.prepareDelegateResell(ctx, job, spec)
	}

	reservation, err := r.db.GetReservation(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("runner: job=%d get reservation: %w", job.JobID, err)
	}
	if reservation == nil {
		return fatal(fmt.Errorf("job=%d delegate_resource has no reservation at tron_prepared", job.JobID))
	}
	owner, err := tron.FromBase58Check(reservation.OwnerAddress)
	if err != nil {
		return fatal(fmt.Errorf("job=%d malformed reservation owner %q: %w", job.JobID, reservation.OwnerAddress, err))
	}
	key := r.keys.KeyFor(owner)
	if key == nil {
		return fatal(fmt.Errorf("job=%d no owned key for reserved owner %s", job.JobID, reservation.OwnerAddress))
	}

	lockPeriod := spec.LockPeriodSec.Int64()
	signed, err := r.tronClient.BuildDelegateResource(ctx, key, tron.FromEVM(spec.Receiver.Bytes()), spec.Resource, spec.BalanceSun.Int64(), lockPeriod > 0, lockPeriod)
	if err != nil {
		return fmt.Errorf("runner: job=%d build delegate resource: %w", job.JobID, err)
	}
	return r.persistFinal(ctx, job, signed)
}

// prepareDelegateResell quotes and orders a third-party rental provider to
// broadcast the DelegateResourceContract on the solver's behalf, rather than
// signing it with an owned key — the provider owns the capacity being resold.
func (r *Runner) prepareDelegateResell(ctx context.Context, job solverdb.Job, spec policy.DelegateResourceSpec) error {
	receiverTron := tron.FromEVM(spec.Receiver.Bytes())
	ph := rental.Placeholders{
		ResourceKind:       delegateResourceKindName(spec.Resource),
		BalanceSun:         spec.BalanceSun.Int64(),
		LockPeriod:         spec.LockPeriodSec.Int64(),
		DurationHours:      spec.LockPeriodSec.Int64() / 3600,
		AddressBase58Check: receiverTron.Base58Check(),
		AddressHex41:       hex.EncodeToString(receiverTron.PrefixedBytes()),
		AddressEVMHex:      spec.Receiver.Hex(),
	}

	quotes, err := r.rental.QuoteAll(ctx, r.tronCfg.EnergyRentalProviders, ph)
	if err != nil {
		return fmt.Errorf("runner: job=%d rental quote: %w", job.JobID, err)
	}
	if len(quotes) == 0 {
		return fmt.Errorf("runner: job=%d no rental quotes available", job.JobID)
	}

	result, err := r.rental.Order(ctx, r.tronCfg.EnergyRentalProviders, quotes[0].Provider, ph)
	if err != nil {
		return fmt.Errorf("runner: job=%d rental order: %w", job.JobID, err)
	}
	txidBytes, err := decodeHex(result.Txid)
	if err != nil {
		return fatal(fmt.Errorf("job=%d rental provider %s returned malformed txid %q: %w", job.JobID, result.Provider, result.Txid, err))
	}

	if err := r.db.UpsertRental(ctx, solverdb.TronRental{
		JobID:       job.JobID,
		Provider:    result.Provider,
		Resource:    delegateResourceKindName(spec.Resource),
		ReceiverEVM: spec.Receiver.Bytes(),
		BalanceSun:  spec.BalanceSun.Int64(),
		LockPeriod:  spec.LockPeriodSec.Int64(),
		OrderID:     sql.NullString{String: result.OrderID, Valid: result.OrderID != ""},
		Txid:        txidBytes,
	}); err != nil {
		return fmt.Errorf("runner: job=%d persist rental: %w", job.JobID, err)
	}
	return r.db.SetTronTxid(ctx, job.JobID, r.leaseOwner, txidBytes)
}

func delegateResourceKindName(r protocol.ResourceCode) string {
	if r == protocol.ResourceEnergy {
		return "energy"
	}
	return "bandwidth"
}

// ensureFinalOwner returns an owned key with enough spendable inventory for
// a TRX/USDT transfer, planning and persisting a consolidation pre-tx chain
// first if no single key already has enough. USDT deficits are not
// consolidatable: PlanConsolidation only moves TRX between keys, so a USDT
// shortfall across owned keys surfaces directly rather than silently
// falling back to a TRX-only plan.
func (r *Runner) ensureFinalOwner(ctx context.Context, job solverdb.Job, needTRXSun, needUSDT int64) (tron.Address, error) {
	balances, err := r.tronClient.Inventory(ctx, r.keys, r.usdtTron)
	if err != nil {
		return tron.Address{}, fmt.Errorf("runner: job=%d inventory: %w", job.JobID, err)
	}
	if owner, ok := tron.CanFillPreclaim(balances, needTRXSun, needUSDT); ok {
		return owner, nil
	}
	if needUSDT > 0 {
		return tron.Address{}, fmt.Errorf("runner: job=%d insufficient usdt across owned keys", job.JobID)
	}

	plan, err := tron.PlanConsolidation(balances, needTRXSun, r.tronCfg)
	if err != nil {
		return tron.Address{}, fmt.Errorf("runner: job=%d plan consolidation: %w", job.JobID, err)
	}
	for i, pull := range plan.PreTxs {
		fromKey := r.keys.KeyFor(pull.From)
		if fromKey == nil {
			return tron.Address{}, fatal(fmt.Errorf("job=%d no owned key for consolidation donor %s", job.JobID, pull.From.Base58Check()))
		}
		signed, err := r.tronClient.BuildTransfer(ctx, fromKey, pull.To, pull.AmountSun)
		if err != nil {
			return tron.Address{}, fmt.Errorf("runner: job=%d build consolidation pre-tx %d: %w", job.JobID, i, err)
		}
		if err := r.db.InsertSignedTx(ctx, solverdb.TronSignedTx{
			Txid:        signed.Txid[:],
			JobID:       job.JobID,
			Step:        fmt.Sprintf("pre:%04d", i),
			TxBytes:     signed.Tx.Marshal(),
			TxSizeBytes: sql.NullInt64{Int64: int64(signed.TxSizeBytes), Valid: true},
		}); err != nil {
			return tron.Address{}, fmt.Errorf("runner: job=%d persist consolidation pre-tx %d: %w", job.JobID, i, err)
		}
	}
	return plan.FinalOwner, nil
}

// persistFinal stores the user-facing "final" tron_signed_txs row and
// records its txid on the job, so every downstream transition (broadcast,
// proof, prove) can find it by job.TronTxid alone regardless of intent type.
func (r *Runner) persistFinal(ctx context.Context, job solverdb.Job, signed *tron.SignedTronTx) error {
	if err := r.db.InsertSignedTx(ctx, solverdb.TronSignedTx{
		Txid:           signed.Txid[:],
		JobID:          job.JobID,
		Step:           "final",
		TxBytes:        signed.Tx.Marshal(),
		FeeLimitSun:    sql.NullInt64{Int64: signed.FeeLimitSun, Valid: true},
		EnergyRequired: sql.NullInt64{Int64: signed.EnergyRequired, Valid: true},
		TxSizeBytes:    sql.NullInt64{Int64: int64(signed.TxSizeBytes), Valid: true},
	}); err != nil {
		return fmt.Errorf("runner: job=%d persist final tron tx: %w", job.JobID, err)
	}
	return r.db.SetTronTxid(ctx, job.JobID, r.leaseOwner, signed.Txid[:])
}

// shortCircuitMockProof implements TRON_MODE=mock's "also builds the proof
// immediately" rule: broadcast whatever was just built straight through (a
// mock node confirms synchronously, so the normal bounded-wait broadcast
// loop would just burn its timeout), then build and persist the inclusion
// proof in the same step, advancing straight to proof_built.
func (r *Runner) shortCircuitMockProof(ctx context.Context, job solverdb.Job) error {
	steps, err := r.db.ListSignedTxSteps(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("runner: job=%d list signed tx steps: %w", job.JobID, err)
	}
	for _, step := range steps {
		if err := r.tronClient.BroadcastRaw(ctx, step.TxBytes); err != nil {
			return fmt.Errorf("runner: job=%d mock broadcast %s: %w", job.JobID, step.Step, err)
		}
	}

	info, err := r.waitTronInclusionInfo(ctx, job.TronTxid)
	if err != nil {
		return err
	}
	if info.Result == 1 {
		return fatal(fmt.Errorf("tron_tx_failed: job=%d mock: %s", job.JobID, string(info.ResMessage)))
	}

	encodedTx, err := r.finalEncodedTx(ctx, job)
	if err != nil {
		return err
	}
	incl, err := r.tronClient.BuildInclusionProof(ctx, info.BlockNumber, job.TronTxid, encodedTx)
	if err != nil {
		return fmt.Errorf("runner: job=%d mock build inclusion proof: %w", job.JobID, err)
	}
	if err := r.db.InsertProof(ctx, solverdb.TronProof{
		Txid:      job.TronTxid,
		Blocks:    incl.Blocks[:],
		EncodedTx: incl.EncodedTx,
		Proof:     proofSiblingsToBytes(incl.Proof),
		IndexDec:  strconv.FormatInt(incl.Index, 10),
	}); err != nil {
		return fmt.Errorf("runner: job=%d mock persist proof: %w", job.JobID, err)
	}
	return r.advance(ctx, job.JobID, solverdb.JobProofBuilt)
}

// transitionBroadcastTron implements tron_prepared -> tron_sent: broadcast
// every persisted plan step in order (skipping any already onchain), or, for
// the delegate_resource resell path where nothing was signed locally, simply
// wait for the rental provider's own broadcast to land.
func (r *Runner) transitionBroadcastTron(ctx context.Context, job solverdb.Job) error {
	if len(job.TronTxid) == 0 {
		return fatal(fmt.Errorf("job=%d reached tron_prepared with no tron_txid", job.JobID))
	}

	steps, err := r.db.ListSignedTxSteps(ctx, job.JobID)
	if err != nil {
		return fmt.Errorf("runner: job=%d list signed tx steps: %w", job.JobID, err)
	}
	if len(steps) == 0 {
		if err := r.waitTronInclusion(ctx, job.TronTxid); err != nil {
			return err
		}
	} else {
		for _, step := range steps {
			if err := r.broadcastAndWaitStep(ctx, job, step); err != nil {
				return err
			}
			if err := r.db.ExtendLease(ctx, job.JobID, r.leaseOwner, leaseDuration); err != nil {
				return err
			}
		}
	}

	if err := r.recordTronCost(ctx, job); err != nil {
		logger.Printf("⚠️ job=%d record tron cost: %v", job.JobID, err)
	}
	if policy.IntentType(job.IntentType) == policy.IntentTypeTriggerSmartContract {
		if spec, derr := policy.DecodeTrigger(job.IntentSpecs); derr == nil {
			var sel []byte
			if len(spec.Calldata) >= 4 {
				sel = spec.Calldata[:4]
			}
			if rerr := r.db.ResetBreaker(ctx, spec.Contract.Bytes(), sel); rerr != nil {
				logger.Printf("⚠️ job=%d reset breaker after success: %v", job.JobID, rerr)
			}
		}
	}
	if err := r.db.ReleaseReservation(ctx, job.JobID); err != nil {
		logger.Printf("⚠️ job=%d release reservation after broadcast: %v", job.JobID, err)
	}
	return r.advance(ctx, job.JobID, solverdb.JobTronSent)
}

// broadcastAndWaitStep submits one plan step (unless it's already onchain,
// the restart-safe case covered by S6) and waits for its inclusion before
// the caller moves on to the next step.
func (r *Runner) broadcastAndWaitStep(ctx context.Context, job solverdb.Job, step solverdb.TronSignedTx) error {
	info, err := r.tronClient.Node.GetTransactionInfoById(ctx, step.Txid)
	alreadyIncluded := err == nil && len(info.ID) > 0

	if !alreadyIncluded {
		select {
		case r.tronBroadcastSem <- struct{}{}:
			defer func() { <-r.tronBroadcastSem }()
		case <-ctx.Done():
			return ctx.Err()
		}
		berr := r.tronClient.BroadcastRaw(ctx, step.TxBytes)
		if r.tel != nil {
			r.tel.TronBroadcastTotal.WithLabelValues(step.Step, strconv.FormatBool(berr == nil)).Inc()
		}
		if berr != nil {
			return fmt.Errorf("runner: job=%d broadcast step %s: %w", job.JobID, step.Step, berr)
		}
		info, err = r.waitTronInclusionInfo(ctx, step.Txid)
		if err != nil {
			return err
		}
	}

	if info.Result == 1 {
		return fatal(fmt.Errorf("tron_tx_failed: job=%d step=%s: %s", job.JobID, step.Step, string(info.ResMessage)))
	}
	return nil
}

// waitTronInclusion waits for a single txid (the rental-resell path, where
// the solver has no signed_tx rows of its own) and classifies a failed
// result as fatal.
func (r *Runner) waitTronInclusion(ctx context.Context, txid []byte) error {
	info, err := r.waitTronInclusionInfo(ctx, txid)
	if err != nil {
		return err
	}
	if info.Result == 1 {
		return fatal(fmt.Errorf("tron_tx_failed: txid=%x: %s", txid, string(info.ResMessage)))
	}
	return nil
}

// waitTronInclusionInfo polls GetTransactionInfoById until txid is included
// or tronInclusionWait elapses.
func (r *Runner) waitTronInclusionInfo(ctx context.Context, txid []byte) (tron.TransactionInfo, error) {
	deadline := time.Now().Add(tronInclusionWait)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		info, err := r.tronClient.Node.GetTransactionInfoById(ctx, txid)
		if err == nil && len(info.ID) > 0 {
			return info, nil
		}
		if time.Now().After(deadline) {
			return tron.TransactionInfo{}, fmt.Errorf("runner: tron inclusion wait timed out for %x", txid)
		}
		select {
		case <-ctx.Done():
			return tron.TransactionInfo{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// recordTronCost persists the settlement-time accounting row once the final
// tx's receipt is available, independent of whether the solver or a rental
// provider broadcast it.
func (r *Runner) recordTronCost(ctx context.Context, job solverdb.Job) error {
	info, err := r.tronClient.Node.GetTransactionInfoById(ctx, job.TronTxid)
	if err != nil {
		return fmt.Errorf("runner: job=%d get transaction info for cost: %w", job.JobID, err)
	}
	return r.db.InsertTxCost(ctx, solverdb.TronTxCost{
		Txid:             job.TronTxid,
		JobID:            sql.NullInt64{Int64: job.JobID, Valid: true},
		IntentType:       sql.NullInt16{Int16: job.IntentType, Valid: true},
		FeeSun:           sql.NullInt64{Int64: info.Fee, Valid: true},
		EnergyUsageTotal: sql.NullInt64{Int64: info.Receipt.EnergyUsage, Valid: true},
		NetUsage:         sql.NullInt64{Int64: info.Receipt.NetUsage, Valid: true},
		EnergyFeeSun:     sql.NullInt64{Int64: info.Receipt.EnergyFee, Valid: true},
		NetFeeSun:        sql.NullInt64{Int64: info.Receipt.NetFee, Valid: true},
		BlockNumber:      sql.NullInt64{Int64: info.BlockNumber, Valid: true},
		BlockTimestamp:   sql.NullInt64{Int64: info.BlockTimeStamp, Valid: true},
		ResultCode:       sql.NullString{String: strconv.FormatInt(int64(info.Result), 10), Valid: true},
		ResultMessage:    sql.NullString{String: string(info.ResMessage), Valid: len(info.ResMessage) > 0},
	})
}

// transitionBuildProof implements tron_sent -> proof_built.
func (r *Runner) transitionBuildProof(ctx context.Context, job solverdb.Job) error {
	info, err := r.tronClient.Node.GetTransactionInfoById(ctx, job.TronTxid)
	if err != nil {
		return fmt.Errorf("runner: job=%d get transaction info: %w", job.JobID, err)
	}
	if info.Result == 1 {
		return fatal(fmt.Errorf("tron_tx_failed: job=%d: %s", job.JobID, string(info.ResMessage)))
	}

	encodedTx, err := r.finalEncodedTx(ctx, job)
	if err != nil {
		return err
	}
	incl, err := r.tronClient.BuildInclusionProof(ctx, info.BlockNumber, job.TronTxid, encodedTx)
	if err != nil {
		return fmt.Errorf("runner: job=%d build inclusion proof: %w", job.JobID, err)
	}
	if err := r.db.InsertProof(ctx, solverdb.TronProof{
		Txid:      job.TronTxid,
		Blocks:    incl.Blocks[:],
		EncodedTx: incl.EncodedTx,
		Proof:     proofSiblingsToBytes(incl.Proof),
		IndexDec:  strconv.FormatInt(incl.Index, 10),
	}); err != nil {
		return fmt.Errorf("runner: job=%d persist proof: %w", job.JobID, err)
	}
	return r.advance(ctx, job.JobID, solverdb.JobProofBuilt)
}

// finalEncodedTx recovers the final tx's raw_data bytes, whether the solver
// signed it itself (read the persisted tx_bytes) or a rental provider
// broadcast it on the solver's behalf (fetch it from the node by txid).
func (r *Runner) finalEncodedTx(ctx context.Context, job solverdb.Job) ([]byte, error) {
	steps, err := r.db.ListSignedTxSteps(ctx, job.JobID)
	if err != nil {
		return nil, fmt.Errorf("runner: job=%d list signed tx steps: %w", job.JobID, err)
	}
	for _, s := range steps {
		if s.Step == "final" {
			raw, err := tron.RawDataBytes(s.TxBytes)
			if err != nil {
				return nil, fmt.Errorf("runner: job=%d raw_data from signed tx: %w", job.JobID, err)
			}
			return raw, nil
		}
	}
	raw, err := r.tronClient.Node.GetTransactionByID(ctx, job.TronTxid)
	if err != nil {
		return nil, fmt.Errorf("runner: job=%d fetch final tx from node: %w", job.JobID, err)
	}
	return raw, nil
}

func proofSiblingsToBytes(proof [][32]byte) [][]byte {
	out := make([][]byte, len(proof))
	for i, p := range proof {
		b := make([]byte, 32)
		copy(b, p[:])
		out[i] = b
	}
	return out
}

// transitionProve implements proof_built -> proved.
func (r *Runner) transitionProve(ctx context.Context, job solverdb.Job) error {
	persisted, err := r.db.GetProof(ctx, job.TronTxid)
	if err != nil {
		return fmt.Errorf("runner: job=%d get proof: %w", job.JobID, err)
	}
	if persisted == nil {
		return fatal(fmt.Errorf("job=%d reached proof_built with no persisted proof", job.JobID))
	}
	proof, err := toHubProof(*persisted)
	if err != nil {
		return fatal(fmt.Errorf("job=%d malformed persisted proof: %w", job.JobID, err))
	}

	var intentID [32]byte
	copy(intentID[:], job.IntentID)

	outcome, err := r.hub.ProveIntentFill(ctx, job.JobID, intentID, proof)
	if err != nil {
		return fmt.Errorf("runner: job=%d prove_intent_fill: %w", job.JobID, err)
	}
	if outcome.Fatal || !outcome.Success {
		reason := outcome.FatalReason
		if reason == "" {
			reason = "proveIntentFill reverted onchain"
		}
		return fatal(fmt.Errorf("job=%d prove_intent_fill fatal: %s", job.JobID, reason))
	}
	if err := r.db.SetProveTxHash(ctx, job.JobID, r.leaseOwner, outcome.TxHash); err != nil {
		return err
	}
	return r.advance(ctx, job.JobID, solverdb.JobProved)
}

// toHubProof converts the persisted solverdb.TronProof row (bytea[] columns)
// into hub.TronProof's fixed-array wire shape, the third of three parallel
// proof representations in this repo (tron.InclusionProof20 at the builder,
// solverdb.TronProof at rest, hub.TronProof at the ABI boundary).
func toHubProof(p solverdb.TronProof) (hub.TronProof, error) {
	var out hub.TronProof
	if len(p.Blocks) != 20 {
		return out, fmt.Errorf("want 20 blocks, got %d", len(p.Blocks))
	}
	copy(out.Blocks[:], p.Blocks)
	out.EncodedTx = p.EncodedTx
	out.Proof = make([][32]byte, len(p.Proof))
	for i, b := range p.Proof {
		if len(b) != 32 {
			return out, fmt.Errorf("proof sibling %d is %d bytes, want 32", i, len(b))
		}
		copy(out.Proof[i][:], b)
	}
	idx, ok := new(big.Int).SetString(p.IndexDec, 10)
	if !ok {
		return out, fmt.Errorf("bad index_dec %q", p.IndexDec)
	}
	out.Index = idx
	return out, nil
}

// transitionFinalize implements proved/proved_waiting_* -> done|waiting,
// reading back the pool projection the hub's own events drove after
// ProveIntentFill landed.
func (r *Runner) transitionFinalize(ctx context.Context, job solverdb.Job) error {
	var intentID [32]byte
	copy(intentID[:], job.IntentID)

	cand, err := r.indexer.GetIntent(ctx, intentID)
	if err != nil {
		return fmt.Errorf("runner: job=%d finalize readback: %w", job.JobID, err)
	}

	var next solverdb.JobState
	switch {
	case cand.Closed || (cand.Solved && cand.Funded && cand.Settled):
		next = solverdb.JobDone
	case cand.Solved && !cand.Funded:
		next = solverdb.JobProvedWaitingFunding
	case cand.Solved && cand.Funded && !cand.Settled:
		next = solverdb.JobProvedWaitingSettle
	default:
		return fmt.Errorf("runner: job=%d finalize: unexpected projection state solved=%v funded=%v settled=%v closed=%v",
			job.JobID, cand.Solved, cand.Funded, cand.Settled, cand.Closed)
	}
	return r.advance(ctx, job.JobID, next)
}

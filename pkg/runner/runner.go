// Copyright 2025 Certen Protocol

// Package runner implements component I: the durable, restart-safe job
// state machine that drives each claimed intent from discovery through
// onchain settlement. Ownership of an in-flight job is entirely lease-based
// (solverdb.LeaseJobs/AdvanceState's "FOR UPDATE SKIP LOCKED" plus a
// lease-guarded WHERE clause on every write), so running two solver
// replicas against the same database is safe by construction rather than
// by external coordination.
package runner

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/hub"
	"github.com/untron/intent-solver/pkg/policy"
	"github.com/untron/intent-solver/pkg/rental"
	"github.com/untron/intent-solver/pkg/solverdb"
	"github.com/untron/intent-solver/pkg/telemetry"
	"github.com/untron/intent-solver/pkg/tron"
)

var logger = log.New(os.Stdout, "[runner] ", log.LstdFlags)

// leaseDuration bounds how long one replica holds a job before another may
// repossess it on a crash; extended mid-step by long-running broadcast
// loops via solverdb.ExtendLease.
const leaseDuration = 5 * time.Minute

// Runner owns one solver replica's view of the job table: candidate
// discovery/triage, leasing, and per-state transitions.
type Runner struct {
	db      *solverdb.Db
	indexer *IndexerClient
	policy  *policy.Engine
	hub     hub.Backend
	rental  *rental.Engine

	tronClient *tron.Client
	keys       *tron.KeySet

	tronCfg   config.TronConfig
	policyCfg config.PolicyConfig
	jobsCfg   config.JobsConfig

	usdtHub  common.Address
	usdtTron tron.Address
	poolAddr common.Address

	tel        *telemetry.Telemetry
	leaseOwner string

	sem struct {
		mu    sync.Mutex
		byTyp map[int16]chan struct{}
	}
	tronBroadcastSem chan struct{}

	claimWindow struct {
		mu     sync.Mutex
		start  time.Time
		count  int
	}
}

// NewRunner wires a Runner from the already-constructed backends cmd/solver
// builds at startup. usdtHub/usdtTron are the escrow token's addresses on
// each chain, used by triage's revenue pricing and inventory checks.
func NewRunner(
	cfg *config.SolverConfig,
	db *solverdb.Db,
	idx *IndexerClient,
	policyEngine *policy.Engine,
	hubBackend hub.Backend,
	tronClient *tron.Client,
	keys *tron.KeySet,
	rentalEngine *rental.Engine,
	tel *telemetry.Telemetry,
	usdtHub common.Address,
	usdtTron tron.Address,
) *Runner {
	r := &Runner{
		db:         db,
		indexer:    idx,
		policy:     policyEngine,
		hub:        hubBackend,
		rental:     rentalEngine,
		tronClient: tronClient,
		keys:       keys,
		tronCfg:    cfg.Tron,
		policyCfg:  cfg.Policy,
		jobsCfg:    cfg.Jobs,
		usdtHub:    usdtHub,
		usdtTron:   usdtTron,
		poolAddr:   common.HexToAddress(cfg.Hub.PoolAddress),
		tel:        tel,
		leaseOwner: cfg.Jobs.InstanceID,
	}
	r.sem.byTyp = map[int16]chan struct{}{
		int16(policy.IntentTypeTriggerSmartContract): make(chan struct{}, maxInt(cfg.Jobs.ConcurrencyTriggerContract, 1)),
		int16(policy.IntentTypeUSDTTransfer):         make(chan struct{}, maxInt(cfg.Jobs.ConcurrencyUSDTTransfer, 1)),
		int16(policy.IntentTypeTRXTransfer):          make(chan struct{}, maxInt(cfg.Jobs.ConcurrencyTRXTransfer, 1)),
		int16(policy.IntentTypeDelegateResource):     make(chan struct{}, maxInt(cfg.Jobs.ConcurrencyDelegateResource, 1)),
	}
	r.tronBroadcastSem = make(chan struct{}, maxInt(cfg.Jobs.ConcurrencyTronBroadcast, 1))
	return r
}

func maxInt(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}

// semaphoreFor returns the per-intent-type concurrency gate, bounding how
// many jobs of one type this replica services Tron/hub calls for at once
// (§4.8's per-type concurrency caps).
func (r *Runner) semaphoreFor(intentType int16) chan struct{} {
	r.sem.mu.Lock()
	defer r.sem.mu.Unlock()
	return r.sem.byTyp[intentType]
}

// allowClaim enforces SOLVER_RATE_LIMIT_CLAIMS_PER_MINUTE with a simple
// fixed 60s window (reset once a minute has passed since it opened), process-local like the rest of this repo's
// concurrency bookkeeping (no cross-replica claim budget is shared — each
// replica claims independently, the hub contract is the real arbiter of a
// double-claim race).
func (r *Runner) allowClaim() bool {
	limit := r.jobsCfg.ClaimRateLimitPerMinute
	if limit <= 0 {
		return true
	}
	r.claimWindow.mu.Lock()
	defer r.claimWindow.mu.Unlock()
	now := time.Now()
	if r.claimWindow.start.IsZero() || now.Sub(r.claimWindow.start) >= time.Minute {
		r.claimWindow.start = now
		r.claimWindow.count = 0
	}
	if r.claimWindow.count >= limit {
		return false
	}
	r.claimWindow.count++
	return true
}

// Tick runs one discovery+triage pass over open intents followed by one
// lease-and-advance pass over schedulable jobs. Called on JobsConfig.TickInterval
// by cmd/solver's main loop.
func (r *Runner) Tick(ctx context.Context) {
	if paused, reason, err := r.db.GlobalPaused(ctx, "claims"); err != nil {
		logger.Printf("⚠️ check global pause: %v", err)
		return
	} else if paused {
		logger.Printf("🛑 globally paused, skipping tick: %s", reason)
		return
	}

	if err := r.discover(ctx); err != nil {
		logger.Printf("⚠️ discovery pass failed: %v", err)
	}

	jobs, err := r.db.LeaseJobs(ctx, r.jobsCfg.MaxInFlightJobs, r.leaseOwner, leaseDuration)
	if err != nil {
		logger.Printf("⚠️ lease jobs failed: %v", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.processJob(ctx, job)
		}()
	}
	wg.Wait()
}

// discover fetches currently-open intents from the indexer and runs each
// through triage, turning admitted candidates into ready job rows.
func (r *Runner) discover(ctx context.Context) error {
	if err := r.indexer.Healthy(ctx); err != nil {
		return err
	}
	candidates, err := r.indexer.OpenIntents(ctx, r.jobsCfg.FillMaxClaims)
	if err != nil {
		return err
	}
	for _, c := range candidates {
		if err := r.triageCandidate(ctx, c); err != nil {
			logger.Printf("⚠️ triage %x failed: %v", c.IntentID, err)
		}
	}
	return nil
}

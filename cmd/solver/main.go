// Copyright 2025 Certen Protocol

// Command solver runs component I: it leases open intents admitted by the
// policy engine (component G), drives each through claim → Tron execution
// (component F, optionally through the rental layer H) → proof → prove on
// the hub (component E), and persists every step in the solver database
// (component D) so a crash or a second replica never double-sends.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/hub"
	"github.com/untron/intent-solver/pkg/policy"
	"github.com/untron/intent-solver/pkg/rental"
	"github.com/untron/intent-solver/pkg/runner"
	"github.com/untron/intent-solver/pkg/solverdb"
	"github.com/untron/intent-solver/pkg/telemetry"
	"github.com/untron/intent-solver/pkg/tron"
)

var logger = log.New(os.Stdout, "[cmd/solver] ", log.LstdFlags)

func main() {
	cfg, err := config.LoadSolver()
	if err != nil {
		logger.Fatalf("❌ load config: %v", err)
	}

	db, err := solverdb.Connect(cfg.SolverDBURL, 20)
	if err != nil {
		logger.Fatalf("❌ open solverdb: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := db.Migrate(ctx); err != nil {
		logger.Fatalf("❌ migrate solverdb: %v", err)
	}

	tel := telemetry.New("untron_solver")
	tel.Serve(cfg.MetricsAddr)
	logger.Printf("📈 metrics listening on %s", cfg.MetricsAddr)

	hubBackend, err := hub.NewBackend(cfg.Hub, db)
	if err != nil {
		logger.Fatalf("❌ build hub backend: %v", err)
	}

	tronNode, err := tron.NewGRPCNodeClient(cfg.Tron)
	if err != nil {
		logger.Fatalf("❌ build tron node client: %v", err)
	}
	tronClient := tron.NewClient(tronNode)

	keys, err := tron.NewKeySet(cfg.Tron)
	if err != nil {
		logger.Fatalf("❌ load tron keys: %v", err)
	}

	policyEngine := policy.New(cfg.Policy, cfg.Tron.EmulationEnabled, db, tronClient, keys)
	policyEngine.Telemetry = tel
	rentalEngine := rental.New(cfg.Tron, db, tel)
	indexerClient := runner.NewIndexerClient(cfg.IndexerAPIBaseURL)

	usdtHub := common.Address{}
	if cfg.Hub.USDTAddress != "" {
		usdtHub = common.HexToAddress(cfg.Hub.USDTAddress)
	}
	usdtTron := tron.Address{}
	if cfg.Tron.USDTContractAddress != "" {
		usdtTron, err = tron.FromBase58Check(cfg.Tron.USDTContractAddress)
		if err != nil {
			logger.Fatalf("❌ parse TRON_USDT_CONTRACT_ADDRESS: %v", err)
		}
	}

	r := runner.NewRunner(cfg, db, indexerClient, policyEngine, hubBackend, tronClient, keys, rentalEngine, tel, usdtHub, usdtTron)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("🛑 received %s, shutting down", sig)
		cancel()
	}()

	logger.Printf("🚀 solver instance %s starting, tick interval %s", cfg.Jobs.InstanceID, cfg.Jobs.TickInterval)
	ticker := time.NewTicker(cfg.Jobs.TickInterval)
	defer ticker.Stop()

	r.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Printf("👋 solver stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

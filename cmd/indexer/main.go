// Copyright 2025 Certen Protocol

// Command indexer runs component B: it tails the pool contract's
// EventAppended stream on the hub chain and, optionally, one or more
// forwarder contracts' streams on their own chains, persisting the
// verified hash-chain into Postgres and folding it into the intent_versions
// / bridgers_versions read models as it goes.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/chainstore"
	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/indexer"
	"github.com/untron/intent-solver/pkg/telemetry"
)

var logger = log.New(os.Stdout, "[cmd/indexer] ", log.LstdFlags)

func main() {
	cfg, err := config.LoadIndexer()
	if err != nil {
		logger.Fatalf("❌ load config: %v", err)
	}

	store, err := chainstore.NewClient(cfg.DatabaseURL, 10)
	if err != nil {
		logger.Fatalf("❌ open chainstore: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		logger.Fatalf("❌ migrate chainstore: %v", err)
	}

	tel := telemetry.New("untron_indexer")
	tel.Serve(cfg.MetricsAddr)
	logger.Printf("📈 metrics listening on %s", cfg.MetricsAddr)

	instances, err := buildInstances(cfg)
	if err != nil {
		logger.Fatalf("❌ build instances: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("🛑 received %s, shutting down", sig)
		cancel()
	}()

	logger.Printf("🚀 starting %d indexer instance(s)", len(instances))
	if err := indexer.Run(ctx, store, instances, cfg, tel); err != nil {
		logger.Fatalf("❌ indexer run: %v", err)
	}
	logger.Printf("👋 indexer stopped")
}

func buildInstances(cfg *config.IndexerConfig) ([]indexer.Instance, error) {
	var instances []indexer.Instance

	if cfg.Stream == "pool" || cfg.Stream == "all" {
		addr, err := parseAddress(cfg.PoolContractAddress)
		if err != nil {
			return nil, err
		}
		instances = append(instances, indexer.Instance{
			Stream:          "pool",
			IndexName:       "pool",
			ChainID:         cfg.PoolChainID,
			RPCURLs:         cfg.PoolRPCURLs,
			ContractAddress: addr,
			DeploymentBlock: cfg.PoolDeploymentBlock,
		})
	}

	if cfg.Stream == "forwarder" || cfg.Stream == "all" {
		for _, fc := range cfg.ForwardersChains {
			addr, err := parseAddress(fc.ContractAddress)
			if err != nil {
				return nil, err
			}
			instances = append(instances, indexer.Instance{
				Stream:          "forwarder",
				IndexName:       indexName("forwarder", fc.ChainID),
				ChainID:         fc.ChainID,
				RPCURLs:         fc.RPCURLs,
				ContractAddress: addr,
				DeploymentBlock: fc.DeploymentBlock,
			})
		}
	}

	if len(instances) == 0 {
		return nil, fmt.Errorf("no indexer instances configured; check INDEXER_STREAM, POOL_*, and FORWARDERS_CHAINS")
	}
	return instances, nil
}

func parseAddress(s string) (common.Address, error) {
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed) != 40 {
		return common.Address{}, fmt.Errorf("bad contract address %q: want 20 bytes hex", s)
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return common.Address{}, fmt.Errorf("bad contract address %q: %w", s, err)
	}
	return common.HexToAddress(s), nil
}

func indexName(stream string, chainID int64) string {
	return stream + ":" + strconv.FormatInt(chainID, 10)
}

// Copyright 2025 Certen Protocol
//
// Package config loads process configuration from environment variables.
// Indexer and solver processes each read a disjoint slice of the variables
// named in this file; LoadIndexer()/LoadSolver() fail fast on missing required
// values rather than guessing defaults for anything that touches funds.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newInstanceID mints a process-local identifier used as a default
// SOLVER_INSTANCE_ID / lease owner token when the operator hasn't pinned one.
func newInstanceID() string {
	return "solver-" + uuid.New().String()
}

// IndexerConfig configures the indexer process (component B).
type IndexerConfig struct {
	DatabaseURL          string
	PoolRPCURLs          []string
	PoolChainID          int64
	PoolContractAddress  string
	PoolDeploymentBlock  uint64
	ForwardersChains     []ForwarderChainConfig
	Stream               string // "pool" | "forwarder" | "all"
	ChunkBlocks          uint64
	ReorgScanDepth       uint64
	TickInterval         time.Duration
	RPCTimeout           time.Duration
	MetricsAddr          string
}

// ForwarderChainConfig describes one forwarder (chain, contract) pair the
// indexer also tails, parsed out of the FORWARDERS_CHAINS JSON array.
type ForwarderChainConfig struct {
	ChainID           int64    `json:"chain_id"`
	RPCURLs           []string `json:"rpc_urls"`
	ContractAddress   string   `json:"contract_address"`
	DeploymentBlock   uint64   `json:"deployment_block"`
}

// LoadIndexer reads IndexerConfig from the environment.
func LoadIndexer() (*IndexerConfig, error) {
	cfg := &IndexerConfig{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		PoolRPCURLs:         getEnvCSV("POOL_RPC_URLS", nil),
		PoolChainID:         getEnvInt64("POOL_CHAIN_ID", 0),
		PoolContractAddress: getEnv("POOL_CONTRACT_ADDRESS", ""),
		PoolDeploymentBlock: getEnvUint64("POOL_DEPLOYMENT_BLOCK", 0),
		Stream:              getEnv("INDEXER_STREAM", "all"),
		ChunkBlocks:         getEnvUint64("INDEXER_CHUNK_BLOCKS", 2_000),
		ReorgScanDepth:      getEnvUint64("INDEXER_REORG_SCAN_DEPTH", 256),
		TickInterval:        getEnvDuration("INDEXER_TICK_INTERVAL", 3*time.Second),
		RPCTimeout:          getEnvDuration("INDEXER_RPC_TIMEOUT", 15*time.Second),
		MetricsAddr:         getEnv("METRICS_ADDR", ":9100"),
	}

	if raw := getEnv("FORWARDERS_CHAINS", ""); raw != "" {
		var chains []ForwarderChainConfig
		if err := json.Unmarshal([]byte(raw), &chains); err != nil {
			return nil, fmt.Errorf("parse FORWARDERS_CHAINS: %w", err)
		}
		cfg.ForwardersChains = chains
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *IndexerConfig) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Stream == "pool" || c.Stream == "all" {
		if len(c.PoolRPCURLs) == 0 {
			missing = append(missing, "POOL_RPC_URLS")
		}
		if c.PoolContractAddress == "" {
			missing = append(missing, "POOL_CONTRACT_ADDRESS")
		}
		if c.PoolChainID == 0 {
			missing = append(missing, "POOL_CHAIN_ID")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required %s", strings.Join(missing, ", "))
	}
	return nil
}

// Helper functions for environment variable parsing, kept small and
// unexported so both config constructors can share them.

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts either a Go duration string ("90s", "5m") or, for
// the *_SECS variables, a bare integer interpreted as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultValue
}

// getEnvUint64Ptr distinguishes "unset" (nil, no cap) from an explicit value,
// for the optional SOLVER_MAX_* policy caps.
func getEnvUint64Ptr(key string) *uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

func getEnvCSV(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

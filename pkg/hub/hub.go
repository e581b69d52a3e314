// Copyright 2025 Certen Protocol

// Package hub implements component E: submission of the two hub-chain
// operations every job needs (claimIntent, proveIntentFill) plus ERC-20
// allowance bookkeeping, behind two interchangeable backends — a plain
// signer-owned EOA and an ERC-4337 v0.7 smart account via an external
// bundler.
package hub

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/solverdb"
)

var logger = log.New(os.Stdout, "[hub] ", log.LstdFlags)

// TxOutcome is the result of one hub operation, whichever backend produced
// it. Fatal distinguishes a deterministic onchain rejection (AlreadyClaimed,
// a userop receipt with success=false) from a transient send/wait failure,
// which callers surface as a retryable error instead.
type TxOutcome struct {
	TxHash      []byte
	BlockNumber uint64
	Success     bool
	Fatal       bool
	FatalReason string
}

// Backend abstracts hub transaction submission across the eoa and safe4337
// modes described in HubConfig.TxMode.
type Backend interface {
	SolverAddress() common.Address
	PoolUSDT() common.Address
	EnsureERC20Allowance(ctx context.Context, token, spender common.Address, min *big.Int) error
	ClaimIntent(ctx context.Context, jobID int64, intentID [32]byte) (*TxOutcome, error)
	ProveIntentFill(ctx context.Context, jobID int64, intentID [32]byte, proof TronProof) (*TxOutcome, error)
}

// NewBackend constructs the Backend selected by cfg.TxMode. db is only
// consulted by the safe4337 backend, which persists the userop state
// machine described in the spec's "Persisted userops" section; the eoa
// backend sends and waits directly and ignores it.
func NewBackend(cfg config.HubConfig, db *solverdb.Db) (Backend, error) {
	switch cfg.TxMode {
	case config.HubTxModeEOA:
		return newEOABackend(cfg)
	case config.HubTxModeSafe4337:
		if db == nil {
			return nil, fmt.Errorf("hub: safe4337 backend requires a solver db")
		}
		return newSafe4337Backend(cfg, db)
	default:
		return nil, fmt.Errorf("hub: unknown HUB_TX_MODE %q", cfg.TxMode)
	}
}

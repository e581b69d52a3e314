// Copyright 2025 Certen Protocol

package tron

import (
	"crypto/sha256"
	"errors"
)

// ErrNodeBusy marks a broadcast/call failure as a node-congestion condition
// (SERVER_BUSY, transport UNAVAILABLE): retryable by the job runner without
// counting against a contract's circuit breaker, per §7's error taxonomy.
var ErrNodeBusy = errors.New("tron: node busy")

// ErrContractReverted marks a TriggerSmartContract failure as a genuine
// on-chain revert/out-of-energy, which does count against the breaker.
var ErrContractReverted = errors.New("tron: contract reverted")

func shaSum256(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// Copyright 2025 Certen Protocol
//
// Package indexer tails EventAppended logs off the hub pool contract and any
// configured forwarder contracts, reorg-checks them against stored canonical
// block hashes, and writes them into the chain-store via chainstore.Client.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPCClient round-robins calls across a set of EVM RPC endpoints, advancing
// to the next URL whenever the current one errors. A single flaky endpoint
// in the list degrades throughput, not availability.
type RPCClient struct {
	clients []*ethclient.Client
	urls    []string
	next    uint64
}

// NewRPCClient dials every URL eagerly so a bad endpoint fails fast at
// startup rather than on the first tick.
func NewRPCClient(urls []string) (*RPCClient, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("indexer: at least one RPC URL is required")
	}
	rc := &RPCClient{urls: urls}
	for _, u := range urls {
		c, err := ethclient.Dial(u)
		if err != nil {
			return nil, fmt.Errorf("indexer: dial %s: %w", u, err)
		}
		rc.clients = append(rc.clients, c)
	}
	return rc, nil
}

func (r *RPCClient) pick() (*ethclient.Client, string) {
	i := atomic.AddUint64(&r.next, 1) % uint64(len(r.clients))
	return r.clients[i], r.urls[i]
}

// BlockNumber returns the current head block, trying each endpoint in turn.
func (r *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	var lastErr error
	for i := 0; i < len(r.clients); i++ {
		c, _ := r.pick()
		n, err := c.BlockNumber(ctx)
		if err == nil {
			return n, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("indexer: eth_blockNumber: %w", lastErr)
}

// HeaderByNumber fetches a block header, or (nil, nil) if the node doesn't
// have it (pruned or not-yet-seen).
func (r *RPCClient) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	var lastErr error
	for i := 0; i < len(r.clients); i++ {
		c, _ := r.pick()
		h, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err == nil {
			return h, nil
		}
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("indexer: eth_getBlockByNumber(%d): %w", number, lastErr)
}

// FilterLogs runs eth_getLogs, trying each endpoint in turn.
func (r *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	var lastErr error
	for i := 0; i < len(r.clients); i++ {
		c, _ := r.pick()
		logs, err := c.FilterLogs(ctx, q)
		if err == nil {
			return logs, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("indexer: eth_getLogs: %w", lastErr)
}

// LooksLikeTransient reports whether err is the kind of error worth a short
// retry on the same range: timeouts, connection resets, rate limiting.
func LooksLikeTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "timed out", "connection reset", "eof", "too many requests", "rate limit", "temporarily unavailable", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// LooksLikeRangeTooLarge reports whether err is the provider's way of
// rejecting an eth_getLogs window for being too wide.
func LooksLikeRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"query returned more than", "range too large", "block range", "too many results", "limit exceeded", "exceeds the range"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// LooksLikeTipMismatch reports whether err came from a hash-chain
// continuity violation during projection, which should be treated like a
// deep reorg rather than retried as-is.
func LooksLikeTipMismatch(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tip mismatch") ||
		(strings.Contains(msg, "prev_tip") && strings.Contains(msg, "expected")) ||
		strings.Contains(msg, "hash-chain")
}

var eventAppendedSignature = []byte("EventAppended(uint64,bytes32,bytes32,bytes32,bytes)")

// EventAppendedTopic0 is the keccak256 topic0 filtered on for a given
// contract's EventAppended log. Both the pool and forwarder contracts emit
// an event with this identical signature, so one constant covers both.
func EventAppendedTopic0() common.Hash {
	return crypto.Keccak256Hash(eventAppendedSignature)
}

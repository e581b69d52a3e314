// Copyright 2025 Certen Protocol

package indexer

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/chainstore"
)

// growChunk doubles the chunk size toward target after a clean range.
func growChunk(current, target uint64) uint64 {
	if current >= target {
		return current
	}
	grown := current * 2
	if grown > target {
		return target
	}
	return grown
}

// shrinkChunk halves the chunk size, floored at 1, after a provider range
// rejection.
func shrinkChunk(current uint64) uint64 {
	half := current / 2
	if half < 1 {
		return 1
	}
	return half
}

// detectReorgStart compares the stored latest canonical block hash against
// the live chain and, on mismatch, binary-searches stored canonical hashes
// to find the first divergent block. Returns nil if nothing diverged.
func detectReorgStart(ctx context.Context, store *chainstore.Client, rpc *RPCClient, stream string, chainID int64, contractAddress []byte, scanDepth uint64) (*uint64, error) {
	latest, err := store.LatestCanonicalBlockHash(ctx, stream, chainID, contractAddress)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	header, err := rpc.HeaderByNumber(ctx, latest.BlockNumber)
	if err != nil {
		return nil, err
	}
	if header == nil {
		return nil, nil
	}
	if header.Hash() == common.BytesToHash(latest.BlockHash) {
		return nil, nil
	}

	if scanDepth == 0 {
		scanDepth = 1
	}
	stored, err := store.RecentCanonicalBlockHashes(ctx, stream, chainID, contractAddress, int(scanDepth))
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return &latest.BlockNumber, nil
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].BlockNumber < stored[j].BlockNumber })

	if stored[len(stored)-1].BlockNumber != latest.BlockNumber {
		stored = append(stored, *latest)
		sort.Slice(stored, func(i, j int) bool { return stored[i].BlockNumber < stored[j].BlockNumber })
	}

	left, right := 0, len(stored)
	for left < right {
		mid := (left + right) / 2
		b := stored[mid]
		header, err := rpc.HeaderByNumber(ctx, b.BlockNumber)
		if err != nil {
			return nil, err
		}
		if header == nil {
			return nil, nil
		}
		if header.Hash() == common.BytesToHash(b.BlockHash) {
			left = mid + 1
		} else {
			right = mid
		}
	}

	if left >= len(stored) {
		return nil, nil
	}
	result := stored[left].BlockNumber
	return &result, nil
}


// Copyright 2025 Certen Protocol

package indexer

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/untron/intent-solver/pkg/chainstore"
	"github.com/untron/intent-solver/pkg/config"
	"github.com/untron/intent-solver/pkg/projection"
	"github.com/untron/intent-solver/pkg/telemetry"
)

var logger = log.New(os.Stdout, "[indexer] ", log.LstdFlags)

// Instance is one (stream, chain, contract) the indexer tails.
type Instance struct {
	Stream          string // "pool" | "forwarder"
	IndexName       string // stream name fed into genesis derivation, e.g. "forwarder:56"
	ChainID         int64
	RPCURLs         []string
	ContractAddress common.Address
	DeploymentBlock uint64
}

// Run launches one goroutine per instance and blocks until ctx is canceled.
// Each instance restarts with exponential backoff on error so one worker's
// crash never brings down the others.
func Run(ctx context.Context, store *chainstore.Client, instances []Instance, cfg *config.IndexerConfig, tel *telemetry.Telemetry) error {
	if len(instances) == 0 {
		return fmt.Errorf("indexer: no instances configured")
	}

	var wg sync.WaitGroup
	for _, inst := range instances {
		inst := inst
		wg.Add(1)
		go func() {
			defer wg.Done()
			backoff := 250 * time.Millisecond
			for {
				if ctx.Err() != nil {
					return
				}
				err := runInstance(ctx, store, inst, cfg, tel)
				if err == nil {
					logger.Printf("⚠️ instance %s/%d exited cleanly; restarting", inst.Stream, inst.ChainID)
				} else {
					logger.Printf("❌ instance %s/%d failed: %v; restarting in %s", inst.Stream, inst.ChainID, err, backoff)
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= 2
				if backoff > 5*time.Second {
					backoff = 5 * time.Second
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func runInstance(ctx context.Context, store *chainstore.Client, inst Instance, cfg *config.IndexerConfig, tel *telemetry.Telemetry) error {
	if err := store.EnsureInstanceConfig(ctx, inst.Stream, inst.IndexName, inst.ChainID, inst.ContractAddress[:]); err != nil {
		return fmt.Errorf("ensure instance config: %w", err)
	}

	rpc, err := NewRPCClient(inst.RPCURLs)
	if err != nil {
		return err
	}

	proj := projection.New(store, inst.Stream, inst.ChainID, inst.ContractAddress[:])

	fromBlock, err := store.ResumeFromBlock(ctx, inst.Stream, inst.ChainID, inst.ContractAddress[:], inst.DeploymentBlock)
	if err != nil {
		return fmt.Errorf("resume from block: %w", err)
	}

	topic0 := EventAppendedTopic0()
	chunkTarget := cfg.ChunkBlocks
	if chunkTarget == 0 {
		chunkTarget = 1
	}
	chunkCurrent := chunkTarget

	tickInterval := cfg.TickInterval
	if tickInterval < time.Second {
		tickInterval = time.Second
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	transientAttempts := 0
	transientBackoff := 250 * time.Millisecond

	tsCache := newTimestampCache(1024)
	progress := &progressTracker{}

	logger.Printf("🚀 instance starting stream=%s chain_id=%d contract=%s from_block=%d",
		inst.Stream, inst.ChainID, inst.ContractAddress.Hex(), fromBlock)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		head, err := rpc.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("eth_blockNumber: %w", err)
		}
		if tel != nil {
			tel.IndexerHeadBlock.WithLabelValues(inst.Stream).Set(float64(head))
			tel.IndexerLagBlocks.WithLabelValues(inst.Stream).Set(float64(head) - float64(fromBlock))
			tel.IndexerChunkBlocks.WithLabelValues(inst.Stream).Set(float64(chunkCurrent))
		}

		reorgStart, err := detectReorgStart(ctx, store, rpc, inst.Stream, inst.ChainID, inst.ContractAddress[:], cfg.ReorgScanDepth)
		if err != nil {
			return fmt.Errorf("detect reorg: %w", err)
		}
		if reorgStart != nil {
			logger.Printf("⚠️ reorg detected stream=%s chain_id=%d reorg_start=%d", inst.Stream, inst.ChainID, *reorgStart)
			rewindSeq, hasRewindSeq, err := store.MinCanonicalEventSeqFromBlock(ctx, inst.Stream, inst.ChainID, inst.ContractAddress[:], *reorgStart)
			if err != nil {
				return fmt.Errorf("find rewind seq: %w", err)
			}
			if err := store.InvalidateFromBlock(ctx, inst.Stream, inst.ChainID, inst.ContractAddress[:], *reorgStart); err != nil {
				return fmt.Errorf("invalidate from block: %w", err)
			}
			if hasRewindSeq {
				if err := proj.Rewind(ctx, rewindSeq); err != nil {
					return fmt.Errorf("rewind projection: %w", err)
				}
			}
			if *reorgStart < fromBlock {
				fromBlock = *reorgStart
			}
		}

		for fromBlock <= head {
			if ctx.Err() != nil {
				return nil
			}
			toBlock := head
			if fromBlock+chunkCurrent-1 < head {
				toBlock = fromBlock + chunkCurrent - 1
			}

			n, err := processRange(ctx, store, rpc, inst, topic0, fromBlock, toBlock, tsCache)
			if err == nil {
				fromBlock = toBlock + 1
				transientAttempts = 0
				transientBackoff = 250 * time.Millisecond
				chunkCurrent = growChunk(chunkCurrent, chunkTarget)
				progress.note(inst.Stream, inst.ChainID, head, fromBlock, n)
				if n > 0 {
					for {
						applied, applyErr := proj.Apply(ctx)
						if applyErr != nil {
							return fmt.Errorf("apply projection: %w", applyErr)
						}
						if applied == 0 {
							break
						}
					}
				}
				continue
			}

			if LooksLikeTransient(err) && transientAttempts < 3 {
				transientAttempts++
				logger.Printf("⚠️ transient error on range [%d,%d] (attempt %d): %v", fromBlock, toBlock, transientAttempts, err)
				time.Sleep(transientBackoff)
				transientBackoff *= 2
				if transientBackoff > 2*time.Second {
					transientBackoff = 2 * time.Second
				}
				continue
			}

			if LooksLikeTipMismatch(err) {
				fallbackFrom := uint64(0)
				if cfg.ReorgScanDepth < fromBlock {
					fallbackFrom = fromBlock - maxU64(cfg.ReorgScanDepth, 1)
				}
				logger.Printf("⚠️ tip mismatch on range [%d,%d]; forcing invalidation from %d: %v", fromBlock, toBlock, fallbackFrom, err)
				rewindSeq, hasRewindSeq, rewErr := store.MinCanonicalEventSeqFromBlock(ctx, inst.Stream, inst.ChainID, inst.ContractAddress[:], fallbackFrom)
				if rewErr != nil {
					return fmt.Errorf("find rewind seq: %w", rewErr)
				}
				if err := store.InvalidateFromBlock(ctx, inst.Stream, inst.ChainID, inst.ContractAddress[:], fallbackFrom); err != nil {
					return fmt.Errorf("invalidate from block: %w", err)
				}
				if hasRewindSeq {
					if err := proj.Rewind(ctx, rewindSeq); err != nil {
						return fmt.Errorf("rewind projection: %w", err)
					}
				}
				if fallbackFrom < fromBlock {
					fromBlock = fallbackFrom
				}
				chunkCurrent = 1
				transientAttempts = 0
				transientBackoff = 250 * time.Millisecond
				continue
			}

			if chunkCurrent > 1 && LooksLikeRangeTooLarge(err) {
				chunkCurrent = shrinkChunk(chunkCurrent)
				logger.Printf("⚠️ eth_getLogs failed, shrinking chunk to %d: %v", chunkCurrent, err)
				transientAttempts = 0
				transientBackoff = 250 * time.Millisecond
				continue
			}

			return err
		}
	}
}

func processRange(ctx context.Context, store *chainstore.Client, rpc *RPCClient, inst Instance, topic0 common.Hash, fromBlock, toBlock uint64, tsCache *timestampCache) (int, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{inst.ContractAddress},
		Topics:    [][]common.Hash{{topic0}},
	}
	logs, err := rpc.FilterLogs(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("eth_getLogs(EventAppended): %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}
	sortLogs(logs)

	timestamps := make(map[uint64]int64, len(logs))
	for _, l := range logs {
		if _, ok := timestamps[l.BlockNumber]; ok {
			continue
		}
		if ts, ok := tsCache.get(l.BlockNumber); ok {
			timestamps[l.BlockNumber] = ts
			continue
		}
		h, err := rpc.HeaderByNumber(ctx, l.BlockNumber)
		if err != nil {
			return 0, fmt.Errorf("eth_getBlockByNumber(%d): %w", l.BlockNumber, err)
		}
		if h == nil {
			return 0, fmt.Errorf("block %d disappeared mid-range", l.BlockNumber)
		}
		timestamps[l.BlockNumber] = int64(h.Time)
		tsCache.put(l.BlockNumber, int64(h.Time))
	}

	rows := make([]chainstore.EventAppendedRow, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		row, err := BuildEventAppendedRow(inst.Stream, inst.ChainID, inst.ContractAddress[:], timestamps[l.BlockNumber], l)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	if err := checkSeqOrdering(rows); err != nil {
		return 0, err
	}

	if err := store.InsertEventAppendedBatch(ctx, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// Copyright 2025 Certen Protocol

package indexer

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/untron/intent-solver/pkg/chainstore"
)

// tailLagBlocks is the backlog size below which an instance reports "tail"
// instead of "backfill": within this many blocks of head, the worker is
// keeping up with new blocks rather than replaying history.
const tailLagBlocks = 64

// progressInterval spaces the periodic progress records apart so a fast
// backfill doesn't flood the log with one line per chunk.
const progressInterval = 10 * time.Second

// progressTracker emits the periodic backfill/tail progress records for one
// instance.
type progressTracker struct {
	lastLog    time.Time
	eventsSeen int64
}

// phase classifies the instance's current position relative to head.
func (p *progressTracker) phase(head, from uint64) string {
	if head > from && head-from > tailLagBlocks {
		return "backfill"
	}
	return "tail"
}

// note accumulates processed events and logs a progress record once per
// progressInterval.
func (p *progressTracker) note(stream string, chainID int64, head, from uint64, events int) {
	p.eventsSeen += int64(events)
	if time.Since(p.lastLog) < progressInterval {
		return
	}
	p.lastLog = time.Now()
	logger.Printf("📊 progress stream=%s chain_id=%d phase=%s from_block=%d head=%d lag=%d events_total=%d",
		stream, chainID, p.phase(head, from), from, head, headLag(head, from), p.eventsSeen)
}

func headLag(head, from uint64) uint64 {
	if head <= from {
		return 0
	}
	return head - from
}

// sortLogs orders a raw eth_getLogs result by (block_number, log_index)
// ascending. Providers usually return logs in this order already, but the
// insert path depends on it (event_seq must arrive monotonically), so it is
// enforced here rather than assumed.
func sortLogs(logs []types.Log) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})
}

// checkSeqOrdering rejects a decoded batch whose event_seq values are not
// strictly increasing. The onchain index contract increments event_seq on
// every append, so a violation here means the provider returned logs from a
// mix of forks and the batch must not be inserted.
func checkSeqOrdering(rows []chainstore.EventAppendedRow) error {
	for i := 1; i < len(rows); i++ {
		if rows[i].EventSeq <= rows[i-1].EventSeq {
			return fmt.Errorf("indexer: out-of-order event_seq %d after %d at block %d",
				rows[i].EventSeq, rows[i-1].EventSeq, rows[i].BlockNumber)
		}
	}
	return nil
}

// timestampCache is the bounded LRU over (block_number -> block_timestamp)
// used to enrich logs without refetching a header for every log in a block.
type timestampCache struct {
	capacity int
	entries  map[uint64]int64
	order    []uint64
}

func newTimestampCache(capacity int) *timestampCache {
	if capacity < 1 {
		capacity = 1
	}
	return &timestampCache{capacity: capacity, entries: make(map[uint64]int64, capacity)}
}

func (c *timestampCache) get(block uint64) (int64, bool) {
	ts, ok := c.entries[block]
	if ok {
		c.touch(block)
	}
	return ts, ok
}

func (c *timestampCache) put(block uint64, ts int64) {
	if _, ok := c.entries[block]; ok {
		c.entries[block] = ts
		c.touch(block)
		return
	}
	if len(c.entries) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[block] = ts
	c.order = append(c.order, block)
}

func (c *timestampCache) touch(block uint64) {
	for i, b := range c.order {
		if b == block {
			c.order = append(append(c.order[:i:i], c.order[i+1:]...), block)
			return
		}
	}
}

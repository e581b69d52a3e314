// Copyright 2025 Certen Protocol

package indexer

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/untron/intent-solver/pkg/chainstore"
)

func TestProgressPhase(t *testing.T) {
	p := &progressTracker{}
	if got := p.phase(10_000, 1_000); got != "backfill" {
		t.Fatalf("phase(10000, 1000) = %q, want backfill", got)
	}
	if got := p.phase(10_000, 9_990); got != "tail" {
		t.Fatalf("phase(10000, 9990) = %q, want tail", got)
	}
	if got := p.phase(10_000, 10_000); got != "tail" {
		t.Fatalf("phase at head = %q, want tail", got)
	}
}

func TestSortLogsByBlockThenIndex(t *testing.T) {
	logs := []types.Log{
		{BlockNumber: 5, Index: 2},
		{BlockNumber: 3, Index: 7},
		{BlockNumber: 5, Index: 0},
		{BlockNumber: 4, Index: 1},
	}
	sortLogs(logs)
	want := []struct {
		block uint64
		index uint
	}{{3, 7}, {4, 1}, {5, 0}, {5, 2}}
	for i, w := range want {
		if logs[i].BlockNumber != w.block || logs[i].Index != w.index {
			t.Fatalf("position %d = (%d,%d), want (%d,%d)", i, logs[i].BlockNumber, logs[i].Index, w.block, w.index)
		}
	}
}

func TestCheckSeqOrdering(t *testing.T) {
	rows := []chainstore.EventAppendedRow{
		{EventSeq: 1}, {EventSeq: 2}, {EventSeq: 3},
	}
	if err := checkSeqOrdering(rows); err != nil {
		t.Fatalf("strictly increasing batch rejected: %v", err)
	}

	rows = []chainstore.EventAppendedRow{{EventSeq: 1}, {EventSeq: 3}, {EventSeq: 3}}
	if err := checkSeqOrdering(rows); err == nil {
		t.Fatalf("repeated event_seq not rejected")
	}

	rows = []chainstore.EventAppendedRow{{EventSeq: 5}, {EventSeq: 4}}
	if err := checkSeqOrdering(rows); err == nil {
		t.Fatalf("decreasing event_seq not rejected")
	}

	if err := checkSeqOrdering(nil); err != nil {
		t.Fatalf("empty batch rejected: %v", err)
	}
}

func TestTimestampCacheEvictsOldest(t *testing.T) {
	c := newTimestampCache(2)
	c.put(1, 100)
	c.put(2, 200)
	c.put(3, 300)

	if _, ok := c.get(1); ok {
		t.Fatalf("oldest entry not evicted")
	}
	if ts, ok := c.get(2); !ok || ts != 200 {
		t.Fatalf("entry 2 = (%d, %v)", ts, ok)
	}
	if ts, ok := c.get(3); !ok || ts != 300 {
		t.Fatalf("entry 3 = (%d, %v)", ts, ok)
	}
}

func TestTimestampCacheTouchOnGet(t *testing.T) {
	c := newTimestampCache(2)
	c.put(1, 100)
	c.put(2, 200)
	c.get(1) // refresh 1, so 2 becomes the eviction candidate
	c.put(3, 300)

	if _, ok := c.get(2); ok {
		t.Fatalf("least-recently-used entry not evicted")
	}
	if _, ok := c.get(1); !ok {
		t.Fatalf("recently-touched entry evicted")
	}
}

func TestTimestampCacheOverwrite(t *testing.T) {
	c := newTimestampCache(2)
	c.put(1, 100)
	c.put(1, 150)
	if ts, _ := c.get(1); ts != 150 {
		t.Fatalf("overwrite lost: ts = %d", ts)
	}
	if len(c.entries) != 1 || len(c.order) != 1 {
		t.Fatalf("duplicate bookkeeping: entries=%d order=%d", len(c.entries), len(c.order))
	}
}

// Copyright 2025 Certen Protocol

package indexer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestGrowChunkDoublesTowardTarget(t *testing.T) {
	cases := []struct{ current, target, want uint64 }{
		{1, 2000, 2},
		{512, 2000, 1024},
		{1024, 2000, 2000},
		{2000, 2000, 2000},
		{4000, 2000, 4000},
	}
	for _, c := range cases {
		if got := growChunk(c.current, c.target); got != c.want {
			t.Fatalf("growChunk(%d, %d) = %d, want %d", c.current, c.target, got, c.want)
		}
	}
}

func TestShrinkChunkHalvesFlooredAtOne(t *testing.T) {
	cases := []struct{ current, want uint64 }{
		{2000, 1000},
		{3, 1},
		{2, 1},
		{1, 1},
	}
	for _, c := range cases {
		if got := shrinkChunk(c.current); got != c.want {
			t.Fatalf("shrinkChunk(%d) = %d, want %d", c.current, got, c.want)
		}
	}
}

func TestLooksLikeRangeTooLarge(t *testing.T) {
	for _, msg := range []string{
		"query returned more than 10000 results",
		"eth_getLogs block range too large",
		"Log response size exceeded, limit exceeded",
	} {
		if !LooksLikeRangeTooLarge(errors.New(msg)) {
			t.Fatalf("expected range-too-large classification for %q", msg)
		}
	}
	if LooksLikeRangeTooLarge(errors.New("execution reverted")) {
		t.Fatalf("execution reverted must not classify as range-too-large")
	}
	if LooksLikeRangeTooLarge(nil) {
		t.Fatalf("nil must not classify")
	}
}

func TestLooksLikeTransient(t *testing.T) {
	for _, msg := range []string{
		"dial tcp: i/o timeout",
		"read: connection reset by peer",
		"429 Too Many Requests",
	} {
		if !LooksLikeTransient(errors.New(msg)) {
			t.Fatalf("expected transient classification for %q", msg)
		}
	}
	if LooksLikeTransient(errors.New("invalid argument")) {
		t.Fatalf("invalid argument must not classify as transient")
	}
}

func TestLooksLikeTipMismatch(t *testing.T) {
	err := fmt.Errorf("chainstore: tip mismatch at event_seq=42")
	if !LooksLikeTipMismatch(err) {
		t.Fatalf("expected tip-mismatch classification")
	}
	if !LooksLikeTipMismatch(errors.New(`prev_tip "abcd" expected "ef01"`)) {
		t.Fatalf("expected prev_tip/expected classification")
	}
	if LooksLikeTipMismatch(errors.New("timeout")) {
		t.Fatalf("timeout must not classify as tip mismatch")
	}
}

func TestEventAppendedTopic0Stable(t *testing.T) {
	a := EventAppendedTopic0()
	b := EventAppendedTopic0()
	if a != b {
		t.Fatalf("topic0 is not deterministic")
	}
	if a == (common.Hash{}) {
		t.Fatalf("topic0 is zero")
	}
}

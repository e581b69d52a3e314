// Copyright 2025 Certen Protocol
//
// Package projection is component C: it consumes chain.event_appended in
// strict event_seq order and folds it into the temporal read models
// api.intent_versions and api.bridgers_versions that the solver queries
// over HTTP. It never touches chain.event_appended itself — that table is
// component B's (pkg/indexer) to write — and it never talks to an RPC node;
// its only input is the canonical event log already persisted by the
// indexer, and its only output is opening/closing version rows.
package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/untron/intent-solver/pkg/chainstore"
	"github.com/untron/intent-solver/pkg/eventschema"
)

var logger = log.New(os.Stdout, "[projection] ", log.LstdFlags)

// batchSize caps how many events Apply folds in per call; the indexer's tick
// loop calls Apply repeatedly so a long backlog catches up over a few ticks
// rather than holding one transaction open indefinitely.
const batchSize = 500

// Projector applies canonical chain.event_appended rows to the api schema
// read models for one (stream, chain_id, contract_address) instance.
type Projector struct {
	chain           *chainstore.Client
	db              *sql.DB
	Stream          string
	ChainID         int64
	ContractAddress []byte
}

// New returns a projector bound to one instance. chain owns chain.event_appended
// and chain.stream_cursor; db is the same underlying *sql.DB, used directly
// for api.intent_versions/api.bridgers_versions writes.
func New(chain *chainstore.Client, stream string, chainID int64, contractAddress []byte) *Projector {
	return &Projector{chain: chain, db: chain.DB(), Stream: stream, ChainID: chainID, ContractAddress: contractAddress}
}

// Apply folds up to batchSize unapplied canonical events into the read
// models and advances the stream cursor. It returns the number of events
// applied, so callers can loop until it returns 0 (caught up).
func (p *Projector) Apply(ctx context.Context) (int, error) {
	cursor, err := p.chain.CursorPosition(ctx, p.Stream, p.ChainID, p.ContractAddress)
	if err != nil {
		return 0, err
	}

	events, err := p.chain.CanonicalEventsAfterSeq(ctx, p.Stream, p.ChainID, p.ContractAddress, cursor, batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("projection: begin tx: %w", err)
	}
	defer tx.Rollback()

	last := cursor
	for _, ev := range events {
		if err := p.applyOne(ctx, tx, ev); err != nil {
			return 0, fmt.Errorf("projection: apply event_seq=%d: %w", ev.EventSeq, err)
		}
		last = ev.EventSeq
	}

	if _, err := tx.ExecContext(ctx,
		`update chain.stream_cursor set applied_through_seq = $4
		 where stream = $1 and chain_id = $2 and contract_address = $3 and applied_through_seq < $4`,
		p.Stream, p.ChainID, p.ContractAddress, last,
	); err != nil {
		return 0, fmt.Errorf("projection: advance cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("projection: commit: %w", err)
	}
	return len(events), nil
}

func (p *Projector) applyOne(ctx context.Context, tx *sql.Tx, ev chainstore.ProjectableEvent) error {
	switch eventschema.EventType(ev.EventType) {
	case eventschema.EventTypeIntentCreated:
		var a eventschema.IntentCreatedArgs
		if err := json.Unmarshal(ev.ArgsJSON, &a); err != nil {
			return fmt.Errorf("unmarshal IntentCreated: %w", err)
		}
		return p.applyIntentCreated(ctx, tx, ev.EventSeq, a)

	case eventschema.EventTypeIntentClaimed:
		var a eventschema.IntentClaimedArgs
		if err := json.Unmarshal(ev.ArgsJSON, &a); err != nil {
			return fmt.Errorf("unmarshal IntentClaimed: %w", err)
		}
		return p.mutateIntent(ctx, tx, ev.EventSeq, a.IntentID, func(v *intentVersion) {
			v.Solver = hexToBytes(a.Solver)
			v.SolverClaimedAt = &a.SolverClaimedAt
			v.Solved = true
		})

	case eventschema.EventTypeIntentProved:
		var a eventschema.IntentProvedArgs
		if err := json.Unmarshal(ev.ArgsJSON, &a); err != nil {
			return fmt.Errorf("unmarshal IntentProved: %w", err)
		}
		return p.mutateIntent(ctx, tx, ev.EventSeq, a.IntentID, func(v *intentVersion) {
			v.TronTxID = hexToBytes(a.TronTxID)
			v.TronBlockNumber = &a.TronBlockNumber
		})

	case eventschema.EventTypeIntentFunded:
		var a eventschema.IntentFundedArgs
		if err := json.Unmarshal(ev.ArgsJSON, &a); err != nil {
			return fmt.Errorf("unmarshal IntentFunded: %w", err)
		}
		return p.mutateIntent(ctx, tx, ev.EventSeq, a.IntentID, func(v *intentVersion) { v.Funded = true })

	case eventschema.EventTypeIntentSettled:
		var a eventschema.IntentSettledArgs
		if err := json.Unmarshal(ev.ArgsJSON, &a); err != nil {
			return fmt.Errorf("unmarshal IntentSettled: %w", err)
		}
		return p.mutateIntent(ctx, tx, ev.EventSeq, a.IntentID, func(v *intentVersion) { v.Settled = true })

	case eventschema.EventTypeIntentClosed:
		var a eventschema.IntentClosedArgs
		if err := json.Unmarshal(ev.ArgsJSON, &a); err != nil {
			return fmt.Errorf("unmarshal IntentClosed: %w", err)
		}
		return p.mutateIntent(ctx, tx, ev.EventSeq, a.IntentID, func(v *intentVersion) { v.Closed = true })

	case eventschema.EventTypeBridgersUpdated:
		var a eventschema.BridgersUpdatedArgs
		if err := json.Unmarshal(ev.ArgsJSON, &a); err != nil {
			return fmt.Errorf("unmarshal BridgersUpdated: %w", err)
		}
		return p.applyBridgersUpdated(ctx, tx, ev.EventSeq, a)

	default:
		logger.Printf("skip unrecognized event_type=%d at event_seq=%d", ev.EventType, ev.EventSeq)
		return nil
	}
}

// Rewind rolls both read models back to a consistent point before
// fromBlock, the write side of reorg handling: it deletes any version
// opened at fromSeq or later and reopens whichever version each id/key was
// in immediately prior. The indexer calls this right after
// InvalidateFromBlock and before re-deriving the corrected event range,
// then resets the stream cursor so Apply replays from fromSeq again.
func (p *Projector) Rewind(ctx context.Context, fromSeq int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("projection: rewind begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from api.intent_versions where valid_from_seq >= $1`, fromSeq); err != nil {
		return fmt.Errorf("projection: rewind delete intent_versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`update api.intent_versions set valid_to_seq = null where valid_to_seq >= $1`, fromSeq,
	); err != nil {
		return fmt.Errorf("projection: rewind reopen intent_versions: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `delete from api.bridgers_versions where valid_from_seq >= $1`, fromSeq); err != nil {
		return fmt.Errorf("projection: rewind delete bridgers_versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`update api.bridgers_versions set valid_to_seq = null where valid_to_seq >= $1`, fromSeq,
	); err != nil {
		return fmt.Errorf("projection: rewind reopen bridgers_versions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`update chain.stream_cursor set applied_through_seq = $4
		 where stream = $1 and chain_id = $2 and contract_address = $3 and applied_through_seq >= $4`,
		p.Stream, p.ChainID, p.ContractAddress, fromSeq-1,
	); err != nil {
		return fmt.Errorf("projection: rewind cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("projection: rewind commit: %w", err)
	}
	return nil
}

func hexToBytes(s string) []byte {
	b, err := decodeHex(s)
	if err != nil {
		logger.Printf("warn: malformed hex %q in projected event: %v", s, err)
		return nil
	}
	return b
}

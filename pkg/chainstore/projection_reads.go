// Copyright 2025 Certen Protocol

package chainstore

import (
	"context"
	"database/sql"
	"fmt"
)

// ProjectableEvent is one canonical event_appended row as the projector
// needs it: just enough to replay event_type/args_json in event_seq order.
type ProjectableEvent struct {
	EventSeq  int64
	EventType int16
	ArgsJSON  []byte
}

// CanonicalEventsAfterSeq returns canonical rows for this stream instance
// with event_seq > afterSeq, oldest first, capped at limit. The projector
// calls this in a loop, advancing afterSeq to the last seq it applied, until
// a short page signals it has caught up.
func (c *Client) CanonicalEventsAfterSeq(ctx context.Context, stream string, chainID int64, contractAddress []byte, afterSeq int64, limit int) ([]ProjectableEvent, error) {
	rows, err := c.db.QueryContext(ctx,
		`select event_seq, event_type, args_json from chain.event_appended
		 where stream = $1 and chain_id = $2 and contract_address = $3
		   and canonical and event_seq > $4
		 order by event_seq asc
		 limit $5`,
		stream, chainID, contractAddress, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("chainstore: read canonical events after seq %d: %w", afterSeq, err)
	}
	defer rows.Close()

	var out []ProjectableEvent
	for rows.Next() {
		var e ProjectableEvent
		if err := rows.Scan(&e.EventSeq, &e.EventType, &e.ArgsJSON); err != nil {
			return nil, fmt.Errorf("chainstore: scan canonical event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MinCanonicalEventSeqFromBlock returns the lowest event_seq among canonical
// rows at or above fromBlock, or (0, false) if none remain canonical there.
// Called right before InvalidateFromBlock during reorg handling so the
// projector can roll api.intent_versions/api.bridgers_versions back to a
// consistent point before the indexer re-derives and re-inserts the
// corrected rows.
func (c *Client) MinCanonicalEventSeqFromBlock(ctx context.Context, stream string, chainID int64, contractAddress []byte, fromBlock uint64) (int64, bool, error) {
	var seq sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`select min(event_seq) from chain.event_appended
		 where stream = $1 and chain_id = $2 and contract_address = $3
		   and canonical and block_number >= $4`,
		stream, chainID, contractAddress, int64(fromBlock),
	).Scan(&seq)
	if err != nil {
		return 0, false, fmt.Errorf("chainstore: read min canonical event_seq from block %d: %w", fromBlock, err)
	}
	if !seq.Valid {
		return 0, false, nil
	}
	return seq.Int64, true, nil
}

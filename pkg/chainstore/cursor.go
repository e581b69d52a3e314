// Copyright 2025 Certen Protocol

package chainstore

import (
	"context"
	"fmt"
)

// AdvanceCursor records the highest event_seq applied to projections for
// this stream instance, so projection rebuilds can resume without rescanning
// chain.event_appended from the start.
func (c *Client) AdvanceCursor(ctx context.Context, stream string, chainID int64, contractAddress []byte, appliedThroughSeq int64) error {
	_, err := c.db.ExecContext(ctx,
		`update chain.stream_cursor set applied_through_seq = $4
		 where stream = $1 and chain_id = $2 and contract_address = $3 and applied_through_seq < $4`,
		stream, chainID, contractAddress, appliedThroughSeq,
	)
	if err != nil {
		return fmt.Errorf("chainstore: advance cursor: %w", err)
	}
	return nil
}

// CursorPosition returns the applied_through_seq recorded for this instance.
func (c *Client) CursorPosition(ctx context.Context, stream string, chainID int64, contractAddress []byte) (int64, error) {
	var seq int64
	err := c.db.QueryRowContext(ctx,
		`select applied_through_seq from chain.stream_cursor
		 where stream = $1 and chain_id = $2 and contract_address = $3`,
		stream, chainID, contractAddress,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("chainstore: read cursor position: %w", err)
	}
	return seq, nil
}

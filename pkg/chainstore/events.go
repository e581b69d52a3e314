// Copyright 2025 Certen Protocol

package chainstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EventAppendedRow is one row of chain.event_appended, already hash-chained
// and ABI-decoded by the caller (component B).
type EventAppendedRow struct {
	Stream          string
	ChainID         int64
	ContractAddress []byte

	BlockNumber    int64
	BlockTimestamp int64
	BlockHash      []byte

	TxHash   []byte
	LogIndex int32

	EventSeq            int64
	PrevTip             []byte
	NewTip              []byte
	EventSignature      []byte
	ABIEncodedEventData []byte

	EventType int16
	ArgsJSON  []byte // raw JSON document
}

// InsertEventAppendedBatch upserts rows into chain.event_appended. The
// ON CONFLICT clause is guarded column-by-column with IS DISTINCT FROM so a
// byte-identical re-send (the common case on indexer restart) performs no
// write at all.
func (c *Client) InsertEventAppendedBatch(ctx context.Context, rows []EventAppendedRow) error {
	if len(rows) == 0 {
		return nil
	}

	var b strings.Builder
	args := make([]any, 0, len(rows)*16)
	b.WriteString(`insert into chain.event_appended (
		stream, chain_id, contract_address,
		block_number, block_timestamp, block_hash,
		tx_hash, log_index, canonical,
		event_seq, prev_tip, new_tip, event_signature, abi_encoded_event_data,
		event_type, args_json
	) values `)

	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		base := len(args)
		fmt.Fprintf(&b, "(%s)", placeholders(base+1, 16))
		args = append(args,
			r.Stream, r.ChainID, r.ContractAddress,
			r.BlockNumber, r.BlockTimestamp, r.BlockHash,
			r.TxHash, r.LogIndex, true,
			r.EventSeq, r.PrevTip, r.NewTip, r.EventSignature, r.ABIEncodedEventData,
			r.EventType, r.ArgsJSON,
		)
	}

	b.WriteString(` on conflict (chain_id, tx_hash, log_index) do update set
		stream = excluded.stream,
		contract_address = excluded.contract_address,
		block_number = excluded.block_number,
		block_timestamp = excluded.block_timestamp,
		block_hash = excluded.block_hash,
		canonical = excluded.canonical,
		event_seq = excluded.event_seq,
		prev_tip = excluded.prev_tip,
		new_tip = excluded.new_tip,
		event_signature = excluded.event_signature,
		abi_encoded_event_data = excluded.abi_encoded_event_data,
		event_type = excluded.event_type,
		args_json = excluded.args_json
	where
		chain.event_appended.stream is distinct from excluded.stream
		or chain.event_appended.contract_address is distinct from excluded.contract_address
		or chain.event_appended.block_number is distinct from excluded.block_number
		or chain.event_appended.block_timestamp is distinct from excluded.block_timestamp
		or chain.event_appended.block_hash is distinct from excluded.block_hash
		or chain.event_appended.canonical is distinct from excluded.canonical
		or chain.event_appended.event_seq is distinct from excluded.event_seq
		or chain.event_appended.prev_tip is distinct from excluded.prev_tip
		or chain.event_appended.new_tip is distinct from excluded.new_tip
		or chain.event_appended.event_signature is distinct from excluded.event_signature
		or chain.event_appended.abi_encoded_event_data is distinct from excluded.abi_encoded_event_data
		or chain.event_appended.event_type is distinct from excluded.event_type
		or chain.event_appended.args_json is distinct from excluded.args_json`)

	if _, err := c.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("chainstore: insert chain.event_appended batch of %d: %w", len(rows), err)
	}
	return nil
}

func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}

// ResumeFromBlock returns the next block number to scan: one past the
// highest canonical block recorded for this stream, or deploymentBlock if
// nothing has been indexed yet.
func (c *Client) ResumeFromBlock(ctx context.Context, stream string, chainID int64, contractAddress []byte, deploymentBlock uint64) (uint64, error) {
	var maxBlock sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`select max(block_number) from chain.event_appended
		 where stream = $1 and chain_id = $2 and contract_address = $3 and canonical`,
		stream, chainID, contractAddress,
	).Scan(&maxBlock)
	if err != nil {
		return 0, fmt.Errorf("chainstore: read max block_number: %w", err)
	}
	if !maxBlock.Valid {
		return deploymentBlock, nil
	}
	next := uint64(maxBlock.Int64) + 1
	if next < deploymentBlock {
		return deploymentBlock, nil
	}
	return next, nil
}

// StoredBlockHash is one canonical (block_number, block_hash) pair.
type StoredBlockHash struct {
	BlockNumber uint64
	BlockHash   []byte
}

// LatestCanonicalBlockHash returns the highest canonical block recorded, if any.
func (c *Client) LatestCanonicalBlockHash(ctx context.Context, stream string, chainID int64, contractAddress []byte) (*StoredBlockHash, error) {
	var row StoredBlockHash
	var blockNumber int64
	err := c.db.QueryRowContext(ctx,
		`select block_number, block_hash from chain.event_appended
		 where stream = $1 and chain_id = $2 and contract_address = $3 and canonical
		 order by block_number desc, log_index desc limit 1`,
		stream, chainID, contractAddress,
	).Scan(&blockNumber, &row.BlockHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("chainstore: read latest canonical block hash: %w", err)
	}
	row.BlockNumber = uint64(blockNumber)
	return &row, nil
}

// RecentCanonicalBlockHashes returns up to limit canonical (block_number,
// block_hash) pairs, newest first, one row per distinct block_number. Used
// by the reorg-detection binary search to compare against the live chain.
func (c *Client) RecentCanonicalBlockHashes(ctx context.Context, stream string, chainID int64, contractAddress []byte, limit int) ([]StoredBlockHash, error) {
	rows, err := c.db.QueryContext(ctx,
		`select distinct on (block_number) block_number, block_hash
		 from chain.event_appended
		 where stream = $1 and chain_id = $2 and contract_address = $3 and canonical
		 order by block_number desc, log_index desc
		 limit $4`,
		stream, chainID, contractAddress, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("chainstore: read recent canonical block hashes: %w", err)
	}
	defer rows.Close()

	var out []StoredBlockHash
	for rows.Next() {
		var n int64
		var h []byte
		if err := rows.Scan(&n, &h); err != nil {
			return nil, fmt.Errorf("chainstore: scan canonical block hash: %w", err)
		}
		out = append(out, StoredBlockHash{BlockNumber: uint64(n), BlockHash: h})
	}
	return out, rows.Err()
}

// InvalidateFromBlock marks every canonical row at or above fromBlock as
// non-canonical, the write side of reorg handling: the indexer re-derives
// and re-inserts the correct rows afterward.
func (c *Client) InvalidateFromBlock(ctx context.Context, stream string, chainID int64, contractAddress []byte, fromBlock uint64) error {
	_, err := c.db.ExecContext(ctx,
		`update chain.event_appended set canonical = false
		 where stream = $1 and chain_id = $2 and contract_address = $3
		   and canonical and block_number >= $4`,
		stream, chainID, contractAddress, int64(fromBlock),
	)
	if err != nil {
		return fmt.Errorf("chainstore: invalidate from block %d: %w", fromBlock, err)
	}
	return nil
}

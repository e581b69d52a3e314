// Copyright 2025 Certen Protocol

package solverdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UserOpKind is the closed set of hub operations the solver signs.
type UserOpKind string

const (
	UserOpClaim UserOpKind = "claim"
	UserOpProve UserOpKind = "prove"
)

// UserOpState tracks a persisted userop from build through on-chain inclusion.
type UserOpState string

const (
	UserOpPrepared     UserOpState = "prepared"
	UserOpSubmitted    UserOpState = "submitted"
	UserOpIncluded     UserOpState = "included"
	UserOpFailedFatal  UserOpState = "failed_fatal"
)

// HubUserop mirrors one row of solver.hub_userops.
type HubUserop struct {
	UserOpID          int64
	JobID             int64
	Kind              UserOpKind
	State             UserOpState
	UserOp            []byte // JSON
	UserOpHash         sql.NullString
	TxHash            []byte
	BlockNumber       sql.NullInt64
	Success           sql.NullBool
	ActualGasCostWei  sql.NullString
	ActualGasUsed     sql.NullString
	Receipt           []byte // JSON
	Attempts          int
	LastError         sql.NullString
}

// InsertPrepared idempotently persists a built-but-unsubmitted userop for
// (job_id, kind). Re-running the builder after a restart with the same
// userop JSON is a no-op; a genuinely different rebuild (e.g. the nonce
// floor moved) overwrites it since only one prepared row may exist per kind.
func (d *Db) InsertPrepared(ctx context.Context, jobID int64, kind UserOpKind, userOpJSON []byte) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.hub_userops (job_id, kind, state, userop)
		values ($1, $2, 'prepared', $3)
		on conflict (job_id, kind) do update set userop = excluded.userop, updated_at = now()
		where solver.hub_userops.state = 'prepared'`,
		jobID, kind, userOpJSON)
	if err != nil {
		return fmt.Errorf("solverdb: insert prepared userop job=%d kind=%s: %w", jobID, kind, err)
	}
	return nil
}

// GetUserOp returns the persisted userop for (job_id, kind), or nil if none exists.
func (d *Db) GetUserOp(ctx context.Context, jobID int64, kind UserOpKind) (*HubUserop, error) {
	var u HubUserop
	var state string
	err := d.pool.QueryRowContext(ctx, `
		select userop_id, job_id, kind, state, userop, userop_hash, tx_hash, block_number,
		       success, actual_gas_cost_wei, actual_gas_used, receipt, attempts, last_error
		from solver.hub_userops where job_id = $1 and kind = $2`, jobID, kind,
	).Scan(&u.UserOpID, &u.JobID, &u.Kind, &state, &u.UserOp, &u.UserOpHash, &u.TxHash, &u.BlockNumber,
		&u.Success, &u.ActualGasCostWei, &u.ActualGasUsed, &u.Receipt, &u.Attempts, &u.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("solverdb: get userop job=%d kind=%s: %w", jobID, kind, err)
	}
	u.State = UserOpState(state)
	return &u, nil
}

// MarkSubmitted transitions a prepared userop to submitted once the bundler
// accepted eth_sendUserOperation.
func (d *Db) MarkSubmitted(ctx context.Context, jobID int64, kind UserOpKind, userOpHash string) error {
	_, err := d.pool.ExecContext(ctx, `
		update solver.hub_userops set state = 'submitted', userop_hash = $3, updated_at = now()
		where job_id = $1 and kind = $2`,
		jobID, kind, userOpHash)
	if err != nil {
		return fmt.Errorf("solverdb: mark submitted job=%d kind=%s: %w", jobID, kind, err)
	}
	return nil
}

// MarkIncluded records on-chain inclusion, success, and gas accounting.
func (d *Db) MarkIncluded(ctx context.Context, jobID int64, kind UserOpKind, txHash []byte, blockNumber uint64, success bool, actualGasCostWei, actualGasUsed string, receiptJSON []byte) error {
	_, err := d.pool.ExecContext(ctx, `
		update solver.hub_userops
		set state = 'included', tx_hash = $3, block_number = $4, success = $5,
		    actual_gas_cost_wei = $6, actual_gas_used = $7, receipt = $8, updated_at = now()
		where job_id = $1 and kind = $2`,
		jobID, kind, txHash, blockNumber, success, actualGasCostWei, actualGasUsed, receiptJSON)
	if err != nil {
		return fmt.Errorf("solverdb: mark included job=%d kind=%s: %w", jobID, kind, err)
	}
	return nil
}

// BumpUserOpAttempt increments the retry counter for a userop still being submitted/polled.
func (d *Db) BumpUserOpAttempt(ctx context.Context, jobID int64, kind UserOpKind, lastErr string) error {
	_, err := d.pool.ExecContext(ctx, `
		update solver.hub_userops set attempts = attempts + 1, last_error = $3, updated_at = now()
		where job_id = $1 and kind = $2`,
		jobID, kind, lastErr)
	if err != nil {
		return fmt.Errorf("solverdb: bump userop attempt job=%d kind=%s: %w", jobID, kind, err)
	}
	return nil
}

// DeleteStalePrepared removes a prepared userop whose nonce has fallen
// behind the chain nonce (the entrypoint consumed a different op for that
// slot, e.g. a manual approve tx ran between restarts), so the next tick
// rebuilds it from scratch with a current nonce floor.
func (d *Db) DeleteStalePrepared(ctx context.Context, jobID int64, kind UserOpKind) error {
	_, err := d.pool.ExecContext(ctx, `
		delete from solver.hub_userops where job_id = $1 and kind = $2 and state = 'prepared'`,
		jobID, kind)
	if err != nil {
		return fmt.Errorf("solverdb: delete stale prepared job=%d kind=%s: %w", jobID, kind, err)
	}
	return nil
}

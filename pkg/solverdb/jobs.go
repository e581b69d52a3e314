// Copyright 2025 Certen Protocol

package solverdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JobState is the closed set of states a job moves through. Transitions are
// owned entirely by pkg/runner; this package only persists them.
type JobState string

const (
	JobReady                  JobState = "ready"
	JobClaimed                JobState = "claimed"
	JobTronPrepared           JobState = "tron_prepared"
	JobTronSent               JobState = "tron_sent"
	JobProofBuilt             JobState = "proof_built"
	JobProved                 JobState = "proved"
	JobProvedWaitingFunding   JobState = "proved_waiting_funding"
	JobProvedWaitingSettle    JobState = "proved_waiting_settlement"
	JobDone                   JobState = "done"
	JobFailedFatal            JobState = "failed_fatal"
)

// Job mirrors one row of solver.jobs.
type Job struct {
	JobID        int64
	IntentID     []byte
	IntentType   int16
	IntentSpecs  []byte
	Deadline     int64
	State        JobState
	Attempts     int
	LeasedBy     sql.NullString
	LeaseUntil   sql.NullTime
	NextRetryAt  time.Time
	ClaimTxHash  []byte
	TronTxid     []byte
	ProveTxHash  []byte
	LastError    sql.NullString
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpsertReadyJob idempotently creates a job row for a newly-admitted intent.
// A second admission pass over the same intent (projection hasn't moved, or
// the runner re-ran the candidate loop before the lease cleared) is a no-op.
func (d *Db) UpsertReadyJob(ctx context.Context, intentID []byte, intentType int16, intentSpecs []byte, deadline int64) (int64, error) {
	var jobID int64
	err := d.pool.QueryRowContext(ctx, `
		insert into solver.jobs (intent_id, intent_type, intent_specs, deadline, state)
		values ($1, $2, $3, $4, 'ready')
		on conflict (intent_id) do update set intent_id = excluded.intent_id
		returning job_id`,
		intentID, intentType, intentSpecs, deadline,
	).Scan(&jobID)
	if err != nil {
		return 0, fmt.Errorf("solverdb: upsert ready job: %w", err)
	}
	return jobID, nil
}

// LeaseJobs atomically claims up to limit jobs that are schedulable (ready or
// mid-flight with an expired/absent lease and next_retry_at due) using
// FOR UPDATE SKIP LOCKED so concurrent solver replicas never block on each
// other, only race to grab distinct rows.
func (d *Db) LeaseJobs(ctx context.Context, limit int, leaseOwner string, leaseDuration time.Duration) ([]Job, error) {
	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("solverdb: begin lease tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		select job_id from solver.jobs
		where state not in ('done', 'failed_fatal')
		  and next_retry_at <= now()
		  and (lease_until is null or lease_until < now())
		order by next_retry_at
		limit $1
		for update skip locked`, limit)
	if err != nil {
		return nil, fmt.Errorf("solverdb: select leasable jobs: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("solverdb: scan leasable job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	leaseUntil := time.Now().Add(leaseDuration)
	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		var j Job
		var state string
		err := tx.QueryRowContext(ctx, `
			update solver.jobs set leased_by = $2, lease_until = $3, updated_at = now()
			where job_id = $1
			returning job_id, intent_id, intent_type, intent_specs, deadline, state, attempts,
			          leased_by, lease_until, next_retry_at, claim_tx_hash, tron_txid, prove_tx_hash,
			          last_error, created_at, updated_at`,
			id, leaseOwner, leaseUntil,
		).Scan(&j.JobID, &j.IntentID, &j.IntentType, &j.IntentSpecs, &j.Deadline, &state, &j.Attempts,
			&j.LeasedBy, &j.LeaseUntil, &j.NextRetryAt, &j.ClaimTxHash, &j.TronTxid, &j.ProveTxHash,
			&j.LastError, &j.CreatedAt, &j.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("solverdb: lease job %d: %w", id, err)
		}
		j.State = JobState(state)
		out = append(out, j)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("solverdb: commit lease tx: %w", err)
	}
	return out, nil
}

// GetJob reads a single job by id without leasing it.
func (d *Db) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	var j Job
	var state string
	err := d.pool.QueryRowContext(ctx, `
		select job_id, intent_id, intent_type, intent_specs, deadline, state, attempts,
		       leased_by, lease_until, next_retry_at, claim_tx_hash, tron_txid, prove_tx_hash,
		       last_error, created_at, updated_at
		from solver.jobs where job_id = $1`, jobID,
	).Scan(&j.JobID, &j.IntentID, &j.IntentType, &j.IntentSpecs, &j.Deadline, &state, &j.Attempts,
		&j.LeasedBy, &j.LeaseUntil, &j.NextRetryAt, &j.ClaimTxHash, &j.TronTxid, &j.ProveTxHash,
		&j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("solverdb: get job %d: %w", jobID, err)
	}
	j.State = JobState(state)
	return &j, nil
}

// AdvanceState moves a leased job to newState, re-checking lease ownership in
// the WHERE clause. Zero rows affected means the lease was lost to expiry or
// reassignment; callers must treat that as ErrLeaseLost and abort the step
// without any further side effects.
func (d *Db) AdvanceState(ctx context.Context, jobID int64, leaseOwner string, newState JobState) error {
	res, err := d.pool.ExecContext(ctx, `
		update solver.jobs set state = $3, updated_at = now()
		where job_id = $1 and leased_by = $2 and lease_until >= now()`,
		jobID, leaseOwner, newState)
	if err != nil {
		return fmt.Errorf("solverdb: advance job %d to %s: %w", jobID, newState, err)
	}
	return checkOneRowLeased(res, jobID)
}

// SetClaimTxHash persists the EOA claim transaction hash under lease.
func (d *Db) SetClaimTxHash(ctx context.Context, jobID int64, leaseOwner string, txHash []byte) error {
	res, err := d.pool.ExecContext(ctx, `
		update solver.jobs set claim_tx_hash = $3, updated_at = now()
		where job_id = $1 and leased_by = $2 and lease_until >= now()`,
		jobID, leaseOwner, txHash)
	if err != nil {
		return fmt.Errorf("solverdb: set claim_tx_hash job %d: %w", jobID, err)
	}
	return checkOneRowLeased(res, jobID)
}

// SetTronTxid persists the Tron txid the job ultimately settled on (the
// "final" signed tx, or the rental provider's broadcast txid for resell).
func (d *Db) SetTronTxid(ctx context.Context, jobID int64, leaseOwner string, txid []byte) error {
	res, err := d.pool.ExecContext(ctx, `
		update solver.jobs set tron_txid = $3, updated_at = now()
		where job_id = $1 and leased_by = $2 and lease_until >= now()`,
		jobID, leaseOwner, txid)
	if err != nil {
		return fmt.Errorf("solverdb: set tron_txid job %d: %w", jobID, err)
	}
	return checkOneRowLeased(res, jobID)
}

// SetProveTxHash persists the hub prove transaction hash under lease.
func (d *Db) SetProveTxHash(ctx context.Context, jobID int64, leaseOwner string, txHash []byte) error {
	res, err := d.pool.ExecContext(ctx, `
		update solver.jobs set prove_tx_hash = $3, updated_at = now()
		where job_id = $1 and leased_by = $2 and lease_until >= now()`,
		jobID, leaseOwner, txHash)
	if err != nil {
		return fmt.Errorf("solverdb: set prove_tx_hash job %d: %w", jobID, err)
	}
	return checkOneRowLeased(res, jobID)
}

// RetryLater bumps attempts, sets next_retry_at per the caller's backoff
// decision, and releases the lease so another tick (possibly on another
// replica) can pick the job back up.
func (d *Db) RetryLater(ctx context.Context, jobID int64, leaseOwner string, nextRetryAt time.Time, lastErr string) error {
	res, err := d.pool.ExecContext(ctx, `
		update solver.jobs
		set attempts = attempts + 1, next_retry_at = $3, last_error = $4,
		    leased_by = null, lease_until = null, updated_at = now()
		where job_id = $1 and leased_by = $2 and lease_until >= now()`,
		jobID, leaseOwner, nextRetryAt, lastErr)
	if err != nil {
		return fmt.Errorf("solverdb: retry-later job %d: %w", jobID, err)
	}
	return checkOneRowLeased(res, jobID)
}

// FailFatal moves a job to failed_fatal terminally. Attempts is left
// untouched by design: testable property #4 requires attempts to stop
// growing once a job is fatal, and this is the only write path into that
// state, so simply not incrementing it here is sufficient.
func (d *Db) FailFatal(ctx context.Context, jobID int64, leaseOwner string, lastErr string) error {
	res, err := d.pool.ExecContext(ctx, `
		update solver.jobs
		set state = 'failed_fatal', last_error = $3,
		    leased_by = null, lease_until = null, updated_at = now()
		where job_id = $1 and leased_by = $2 and lease_until >= now()`,
		jobID, leaseOwner, lastErr)
	if err != nil {
		return fmt.Errorf("solverdb: fail-fatal job %d: %w", jobID, err)
	}
	return checkOneRowLeased(res, jobID)
}

// ReleaseLease drops ownership of a job without changing its state, used
// when a step completed successfully and advanced state separately, or when
// shutdown needs to give up in-flight jobs cleanly.
func (d *Db) ReleaseLease(ctx context.Context, jobID int64, leaseOwner string) error {
	_, err := d.pool.ExecContext(ctx, `
		update solver.jobs set leased_by = null, lease_until = null, updated_at = now()
		where job_id = $1 and leased_by = $2`,
		jobID, leaseOwner)
	if err != nil {
		return fmt.Errorf("solverdb: release lease job %d: %w", jobID, err)
	}
	return nil
}

// ExtendLease refreshes lease_until for a long-running step (e.g. the
// broadcast-and-wait loop across consolidation pre-txs) so the job isn't
// repossessed mid-step by another replica.
func (d *Db) ExtendLease(ctx context.Context, jobID int64, leaseOwner string, leaseDuration time.Duration) error {
	res, err := d.pool.ExecContext(ctx, `
		update solver.jobs set lease_until = $3, updated_at = now()
		where job_id = $1 and leased_by = $2 and lease_until >= now()`,
		jobID, leaseOwner, time.Now().Add(leaseDuration))
	if err != nil {
		return fmt.Errorf("solverdb: extend lease job %d: %w", jobID, err)
	}
	return checkOneRowLeased(res, jobID)
}

func checkOneRowLeased(res sql.Result, jobID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("solverdb: rows affected: %w", err)
	}
	if n == 0 {
		return &ErrLeaseLost{JobID: jobID}
	}
	return nil
}

// Copyright 2025 Certen Protocol

package solverdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// TronSignedTx mirrors one row of solver.tron_signed_txs: one step (a
// consolidation "pre:NNNN" or the "final" user-facing transfer) of a job's
// Tron execution plan.
type TronSignedTx struct {
	Txid           []byte
	JobID          int64
	Step           string
	TxBytes        []byte
	FeeLimitSun    sql.NullInt64
	EnergyRequired sql.NullInt64
	TxSizeBytes    sql.NullInt64
}

// InsertSignedTx persists one plan step. Re-signing the same step (rare —
// only happens if a fee_limit convergence loop reruns before broadcast)
// overwrites it; once broadcast, callers must not call this again for the
// same txid.
func (d *Db) InsertSignedTx(ctx context.Context, tx TronSignedTx) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.tron_signed_txs (txid, job_id, step, tx_bytes, fee_limit_sun, energy_required, tx_size_bytes)
		values ($1, $2, $3, $4, $5, $6, $7)
		on conflict (txid) do update set
			tx_bytes = excluded.tx_bytes, fee_limit_sun = excluded.fee_limit_sun,
			energy_required = excluded.energy_required, tx_size_bytes = excluded.tx_size_bytes,
			updated_at = now()`,
		tx.Txid, tx.JobID, tx.Step, tx.TxBytes, tx.FeeLimitSun, tx.EnergyRequired, tx.TxSizeBytes)
	if err != nil {
		return fmt.Errorf("solverdb: insert tron signed tx job=%d step=%s: %w", tx.JobID, tx.Step, err)
	}
	return nil
}

// ListSignedTxSteps returns every persisted step for a job ordered so all
// "pre:NNNN" steps precede "final", matching the order they must broadcast in.
func (d *Db) ListSignedTxSteps(ctx context.Context, jobID int64) ([]TronSignedTx, error) {
	rows, err := d.pool.QueryContext(ctx, `
		select txid, job_id, step, tx_bytes, fee_limit_sun, energy_required, tx_size_bytes
		from solver.tron_signed_txs where job_id = $1
		order by (case when step = 'final' then 1 else 0 end), step`, jobID)
	if err != nil {
		return nil, fmt.Errorf("solverdb: list tron signed txs job=%d: %w", jobID, err)
	}
	defer rows.Close()
	var out []TronSignedTx
	for rows.Next() {
		var t TronSignedTx
		if err := rows.Scan(&t.Txid, &t.JobID, &t.Step, &t.TxBytes, &t.FeeLimitSun, &t.EnergyRequired, &t.TxSizeBytes); err != nil {
			return nil, fmt.Errorf("solverdb: scan tron signed tx: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TronProof mirrors solver.tron_proofs.
type TronProof struct {
	Txid      []byte
	Blocks    [][]byte
	EncodedTx []byte
	Proof     [][]byte
	IndexDec  string
}

// InsertProof persists the 20-block inclusion proof for a final tx.
func (d *Db) InsertProof(ctx context.Context, p TronProof) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.tron_proofs (txid, blocks, encoded_tx, proof, index_dec)
		values ($1, $2, $3, $4, $5)
		on conflict (txid) do update set blocks = excluded.blocks, encoded_tx = excluded.encoded_tx,
			proof = excluded.proof, index_dec = excluded.index_dec`,
		p.Txid, pq.ByteaArray(p.Blocks), p.EncodedTx, pq.ByteaArray(p.Proof), p.IndexDec)
	if err != nil {
		return fmt.Errorf("solverdb: insert tron proof txid=%x: %w", p.Txid, err)
	}
	return nil
}

// GetProof returns the persisted proof for a txid, or nil if not built yet.
func (d *Db) GetProof(ctx context.Context, txid []byte) (*TronProof, error) {
	var p TronProof
	var blocks, proof pq.ByteaArray
	err := d.pool.QueryRowContext(ctx, `
		select txid, blocks, encoded_tx, proof, index_dec from solver.tron_proofs where txid = $1`, txid,
	).Scan(&p.Txid, &blocks, &p.EncodedTx, &proof, &p.IndexDec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("solverdb: get tron proof txid=%x: %w", txid, err)
	}
	p.Blocks = [][]byte(blocks)
	p.Proof = [][]byte(proof)
	return &p, nil
}

// TronTxCost mirrors solver.tron_tx_costs, the settlement-time accounting
// row used for profitability feedback and reporting.
type TronTxCost struct {
	Txid             []byte
	JobID            sql.NullInt64
	IntentType       sql.NullInt16
	FeeSun           sql.NullInt64
	EnergyUsageTotal sql.NullInt64
	NetUsage         sql.NullInt64
	EnergyFeeSun     sql.NullInt64
	NetFeeSun        sql.NullInt64
	BlockNumber      sql.NullInt64
	BlockTimestamp   sql.NullInt64
	ResultCode       sql.NullString
	ResultMessage    sql.NullString
}

// InsertTxCost records the final settlement cost, computed once the Tron
// node confirms inclusion and returns a TransactionInfo with usage receipts.
func (d *Db) InsertTxCost(ctx context.Context, c TronTxCost) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.tron_tx_costs
			(txid, job_id, intent_type, fee_sun, energy_usage_total, net_usage,
			 energy_fee_sun, net_fee_sun, block_number, block_timestamp, result_code, result_message)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		on conflict (txid) do update set
			fee_sun = excluded.fee_sun, energy_usage_total = excluded.energy_usage_total,
			net_usage = excluded.net_usage, energy_fee_sun = excluded.energy_fee_sun,
			net_fee_sun = excluded.net_fee_sun, block_number = excluded.block_number,
			block_timestamp = excluded.block_timestamp, result_code = excluded.result_code,
			result_message = excluded.result_message, updated_at = now()`,
		c.Txid, c.JobID, c.IntentType, c.FeeSun, c.EnergyUsageTotal, c.NetUsage,
		c.EnergyFeeSun, c.NetFeeSun, c.BlockNumber, c.BlockTimestamp, c.ResultCode, c.ResultMessage)
	if err != nil {
		return fmt.Errorf("solverdb: insert tron tx cost txid=%x: %w", c.Txid, err)
	}
	return nil
}

// Copyright 2025 Certen Protocol

package solverdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ProviderFrozen reports whether provider is currently frozen (component H
// skips frozen providers in both quote and order phases).
func (d *Db) ProviderFrozen(ctx context.Context, provider string) (bool, error) {
	var frozen bool
	err := d.pool.QueryRowContext(ctx, `
		select frozen_until is not null and frozen_until > now()
		from solver.rental_provider_freezes where provider = $1`, provider,
	).Scan(&frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("solverdb: check provider frozen %s: %w", provider, err)
	}
	return frozen, nil
}

// RecordProviderFailure increments the provider's failure counter within
// failWindow and, once it reaches failThreshold, freezes the provider until
// now()+freezeFor. A failure outside the window restarts counting at 1.
func (d *Db) RecordProviderFailure(ctx context.Context, provider string, failWindow, freezeFor time.Duration, failThreshold int, lastErr string) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.rental_provider_freezes (provider, fail_count, fail_window_start, last_error)
		values ($1, 1, now(), $2)
		on conflict (provider) do update set
			fail_count = case
				when solver.rental_provider_freezes.fail_window_start < now() - $3::interval then 1
				else solver.rental_provider_freezes.fail_count + 1
			end,
			fail_window_start = case
				when solver.rental_provider_freezes.fail_window_start < now() - $3::interval then now()
				else solver.rental_provider_freezes.fail_window_start
			end,
			last_error = $2,
			frozen_until = case
				when (case
					when solver.rental_provider_freezes.fail_window_start < now() - $3::interval then 1
					else solver.rental_provider_freezes.fail_count + 1
				end) >= $4
				then now() + $5::interval
				else solver.rental_provider_freezes.frozen_until
			end,
			updated_at = now()`,
		provider, lastErr, fmt.Sprintf("%d seconds", int(failWindow.Seconds())), failThreshold,
		fmt.Sprintf("%d seconds", int(freezeFor.Seconds())))
	if err != nil {
		return fmt.Errorf("solverdb: record provider failure %s: %w", provider, err)
	}
	return nil
}

// RecordProviderSuccess resets a provider's failure counters, mirroring
// component H's "a successful call resets the counters" rule.
func (d *Db) RecordProviderSuccess(ctx context.Context, provider string) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.rental_provider_freezes (provider, fail_count, fail_window_start, frozen_until)
		values ($1, 0, now(), null)
		on conflict (provider) do update set fail_count = 0, frozen_until = null, updated_at = now()`,
		provider)
	if err != nil {
		return fmt.Errorf("solverdb: record provider success %s: %w", provider, err)
	}
	return nil
}

// TronRental mirrors solver.tron_rentals: the one rental order a job used.
type TronRental struct {
	JobID       int64
	Provider    string
	Resource    string
	ReceiverEVM []byte
	BalanceSun  int64
	LockPeriod  int64
	OrderID     sql.NullString
	Txid        []byte
	RequestJSON []byte
	ResponseJSON []byte
}

// UpsertRental persists the rental chosen for a job once its order has
// succeeded. A repeat call overwrites the row but keeps a stored order
// id/txid when the new values are null.
func (d *Db) UpsertRental(ctx context.Context, r TronRental) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.tron_rentals
			(job_id, provider, resource, receiver_evm, balance_sun, lock_period, order_id, txid, request_json, response_json)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		on conflict (job_id) do update set
			provider = excluded.provider, resource = excluded.resource, receiver_evm = excluded.receiver_evm,
			balance_sun = excluded.balance_sun, lock_period = excluded.lock_period,
			order_id = coalesce(excluded.order_id, solver.tron_rentals.order_id),
			txid = coalesce(excluded.txid, solver.tron_rentals.txid),
			request_json = excluded.request_json, response_json = excluded.response_json, updated_at = now()`,
		r.JobID, r.Provider, r.Resource, r.ReceiverEVM, r.BalanceSun, r.LockPeriod,
		r.OrderID, r.Txid, r.RequestJSON, r.ResponseJSON)
	if err != nil {
		return fmt.Errorf("solverdb: upsert rental job=%d: %w", r.JobID, err)
	}
	return nil
}

// GetRental returns the persisted rental for a job, or nil if none exists.
func (d *Db) GetRental(ctx context.Context, jobID int64) (*TronRental, error) {
	var r TronRental
	err := d.pool.QueryRowContext(ctx, `
		select job_id, provider, resource, receiver_evm, balance_sun, lock_period, order_id, txid, request_json, response_json
		from solver.tron_rentals where job_id = $1`, jobID,
	).Scan(&r.JobID, &r.Provider, &r.Resource, &r.ReceiverEVM, &r.BalanceSun, &r.LockPeriod,
		&r.OrderID, &r.Txid, &r.RequestJSON, &r.ResponseJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("solverdb: get rental job=%d: %w", jobID, err)
	}
	return &r, nil
}

// DelegateReservation mirrors solver.delegate_reservations: a hold on one
// owner key's delegatable capacity while a delegate_resource job is in flight.
type DelegateReservation struct {
	JobID         int64
	OwnerAddress  string
	Resource      string
	AmountSun     int64
	ReservedUntil time.Time
}

// ReserveDelegateCapacity inserts a reservation for a job. Callers must have
// already verified available capacity across all unexpired reservations for
// ownerAddress/resource before calling this (component F's greedy picker).
func (d *Db) ReserveDelegateCapacity(ctx context.Context, r DelegateReservation) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.delegate_reservations (job_id, owner_address, resource, amount_sun, reserved_until)
		values ($1, $2, $3, $4, $5)
		on conflict (job_id) do update set
			owner_address = excluded.owner_address, resource = excluded.resource,
			amount_sun = excluded.amount_sun, reserved_until = excluded.reserved_until`,
		r.JobID, r.OwnerAddress, r.Resource, r.AmountSun, r.ReservedUntil)
	if err != nil {
		return fmt.Errorf("solverdb: reserve delegate capacity job=%d: %w", r.JobID, err)
	}
	return nil
}

// RefreshReservation extends reserved_until for a still-in-flight job.
func (d *Db) RefreshReservation(ctx context.Context, jobID int64, until time.Time) error {
	_, err := d.pool.ExecContext(ctx, `
		update solver.delegate_reservations set reserved_until = $2 where job_id = $1`, jobID, until)
	if err != nil {
		return fmt.Errorf("solverdb: refresh reservation job=%d: %w", jobID, err)
	}
	return nil
}

// GetReservation returns the reservation held by jobID, or nil if it has
// none (already released, or never reserved — trigger/transfer jobs never
// reserve delegate capacity).
func (d *Db) GetReservation(ctx context.Context, jobID int64) (*DelegateReservation, error) {
	var r DelegateReservation
	err := d.pool.QueryRowContext(ctx, `
		select job_id, owner_address, resource, amount_sun, reserved_until
		from solver.delegate_reservations where job_id = $1`, jobID,
	).Scan(&r.JobID, &r.OwnerAddress, &r.Resource, &r.AmountSun, &r.ReservedUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("solverdb: get reservation job=%d: %w", jobID, err)
	}
	return &r, nil
}

// ReleaseReservation drops a job's reservation on completion, fatal failure,
// or natural TTL expiry (expired rows are simply ignored by capacity scans).
func (d *Db) ReleaseReservation(ctx context.Context, jobID int64) error {
	_, err := d.pool.ExecContext(ctx, `delete from solver.delegate_reservations where job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("solverdb: release reservation job=%d: %w", jobID, err)
	}
	return nil
}

// ReservedByOwner sums unexpired reservations for ownerAddress/resource,
// excluding one job (used when refreshing that job's own reservation).
func (d *Db) ReservedByOwner(ctx context.Context, ownerAddress, resource string, excludeJobID int64) (int64, error) {
	var sum sql.NullInt64
	err := d.pool.QueryRowContext(ctx, `
		select sum(amount_sun) from solver.delegate_reservations
		where owner_address = $1 and resource = $2 and reserved_until > now() and job_id != $3`,
		ownerAddress, resource, excludeJobID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("solverdb: sum reservations owner=%s: %w", ownerAddress, err)
	}
	return sum.Int64, nil
}

// marshalJSON is a tiny helper so callers storing RequestJSON/ResponseJSON
// don't each need their own error-wrapping boilerplate.
func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("solverdb: marshal json: %w", err)
	}
	return b, nil
}

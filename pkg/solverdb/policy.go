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

// BreakerOpen reports whether (contract, selector) is currently cooling
// down. selector may be nil for intent types with no selector concept.
func (d *Db) BreakerOpen(ctx context.Context, contract, selector []byte) (bool, error) {
	var open bool
	err := d.pool.QueryRowContext(ctx, `
		select cooldown_until is not null and cooldown_until > now()
		from solver.circuit_breakers where contract = $1 and selector is not distinct from $2`,
		contract, selector,
	).Scan(&open)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("solverdb: check breaker contract=%x: %w", contract, err)
	}
	return open, nil
}

// TripBreaker increments the failure counter for (contract, selector) by
// weight and, once fail_count crosses threshold, opens a cooldown window.
// Weight lets discrepancy-detected failures (emulation said ok, chain said
// revert) count harder than a plain on-chain revert.
func (d *Db) TripBreaker(ctx context.Context, contract, selector []byte, weight int, threshold int, cooldown time.Duration, lastErr string) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.circuit_breakers (contract, selector, fail_count, last_error)
		values ($1, $2, $3, $4)
		on conflict (contract, selector) do update set
			fail_count = solver.circuit_breakers.fail_count + excluded.fail_count,
			last_error = excluded.last_error,
			cooldown_until = case
				when solver.circuit_breakers.fail_count + excluded.fail_count >= $5
				then now() + $6::interval
				else solver.circuit_breakers.cooldown_until
			end,
			updated_at = now()`,
		contract, selector, weight, lastErr, threshold, fmt.Sprintf("%d seconds", int(cooldown.Seconds())))
	if err != nil {
		return fmt.Errorf("solverdb: trip breaker contract=%x: %w", contract, err)
	}
	return nil
}

// ResetBreaker clears the failure counter after an on-chain success,
// mirroring a successful call resetting a rental provider's freeze counter.
func (d *Db) ResetBreaker(ctx context.Context, contract, selector []byte) error {
	_, err := d.pool.ExecContext(ctx, `
		update solver.circuit_breakers set fail_count = 0, cooldown_until = null, updated_at = now()
		where contract = $1 and selector is not distinct from $2`,
		contract, selector)
	if err != nil {
		return fmt.Errorf("solverdb: reset breaker contract=%x: %w", contract, err)
	}
	return nil
}

// InsertIntentSkip records why a candidate was rejected at admission, with a
// stable reason code drawn from a fixed vocabulary so callers can aggregate
// by reason.
func (d *Db) InsertIntentSkip(ctx context.Context, intentID []byte, intentType int16, reason string, details any) error {
	var detailsJSON []byte
	if details != nil {
		b, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("solverdb: marshal intent_skip details: %w", err)
		}
		detailsJSON = b
	}
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.intent_skips (intent_id, intent_type, reason, details)
		values ($1, $2, $3, $4)`,
		intentID, intentType, reason, detailsJSON)
	if err != nil {
		return fmt.Errorf("solverdb: insert intent_skip intent=%x reason=%s: %w", intentID, reason, err)
	}
	return nil
}

// InsertIntentEmulation records a pre-claim dry-run result for a trigger or
// USDT-transfer intent.
func (d *Db) InsertIntentEmulation(ctx context.Context, intentID []byte, ok bool, reason string, contract, selector []byte) error {
	_, err := d.pool.ExecContext(ctx, `
		insert into solver.intent_emulations (intent_id, ok, reason, contract, selector)
		values ($1, $2, $3, $4, $5)`,
		intentID, ok, reason, contract, selector)
	if err != nil {
		return fmt.Errorf("solverdb: insert intent_emulation intent=%x: %w", intentID, err)
	}
	return nil
}

// GetIntentEmulation returns the persisted dry-run verdict for an intent, or
// nil if no emulation ran for it. The breaker uses this to weight an onchain
// failure harder when emulation had said the call would succeed.
func (d *Db) GetIntentEmulation(ctx context.Context, intentID []byte) (*IntentEmulation, error) {
	var e IntentEmulation
	err := d.pool.QueryRowContext(ctx, `
		select intent_id, ok, reason, contract, selector
		from solver.intent_emulations where intent_id = $1
		order by created_at desc limit 1`, intentID,
	).Scan(&e.IntentID, &e.OK, &e.Reason, &e.Contract, &e.Selector)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("solverdb: get intent_emulation intent=%x: %w", intentID, err)
	}
	return &e, nil
}

// IntentEmulation mirrors one row of solver.intent_emulations.
type IntentEmulation struct {
	IntentID []byte
	OK       bool
	Reason   sql.NullString
	Contract []byte
	Selector []byte
}

// GlobalPaused reports whether the named pause key (e.g. "claims") is
// currently active.
func (d *Db) GlobalPaused(ctx context.Context, key string) (bool, string, error) {
	var paused bool
	var reason sql.NullString
	err := d.pool.QueryRowContext(ctx, `
		select paused_until is not null and paused_until > now(), reason
		from solver.global_pauses where key = $1`, key,
	).Scan(&paused, &reason)
	if err == sql.ErrNoRows {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("solverdb: check global pause %s: %w", key, err)
	}
	return paused, reason.String, nil
}

// RecordFatalForPause increments the fixed-window fatal-failure counter
// and, once it reaches threshold within window, sets paused_until for
// duration. The window resets itself once it has aged out, so a quiet
// period always clears the counter rather than accumulating forever; fatals
// inside an open window are not aged out one by one. It returns true only
// when this write entered the pause (the key was not paused before it).
func (d *Db) RecordFatalForPause(ctx context.Context, key string, window, duration time.Duration, threshold int, reason string) (bool, error) {
	wasPaused, _, err := d.GlobalPaused(ctx, key)
	if err != nil {
		return false, err
	}
	var paused bool
	err = d.pool.QueryRowContext(ctx, `
		insert into solver.global_pauses (key, fatal_count, window_start, reason)
		values ($1, 1, now(), $2)
		on conflict (key) do update set
			fatal_count = case
				when solver.global_pauses.window_start < now() - $3::interval then 1
				else solver.global_pauses.fatal_count + 1
			end,
			window_start = case
				when solver.global_pauses.window_start < now() - $3::interval then now()
				else solver.global_pauses.window_start
			end,
			reason = $2,
			paused_until = case
				when (case
					when solver.global_pauses.window_start < now() - $3::interval then 1
					else solver.global_pauses.fatal_count + 1
				end) >= $4
				then now() + $5::interval
				else solver.global_pauses.paused_until
			end,
			updated_at = now()
			returning paused_until is not null and paused_until > now()`,
		key, reason, fmt.Sprintf("%d seconds", int(window.Seconds())), threshold, fmt.Sprintf("%d seconds", int(duration.Seconds())),
	).Scan(&paused)
	if err != nil {
		return false, fmt.Errorf("solverdb: record fatal for pause %s: %w", key, err)
	}
	return paused && !wasPaused, nil
}

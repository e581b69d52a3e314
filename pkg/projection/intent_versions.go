// Copyright 2025 Certen Protocol

package projection

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/untron/intent-solver/pkg/eventschema"
)

// intentVersion mirrors one row of api.intent_versions, minus its id and
// valid_from_seq/valid_to_seq, which the caller manages directly.
type intentVersion struct {
	Creator           []byte
	IntentType        int16
	EscrowToken       []byte
	EscrowAmount      string // numeric, carried as a decimal string
	RefundBeneficiary []byte
	Deadline          int64
	IntentSpecs       []byte
	Solver            []byte
	SolverClaimedAt   *int64
	TronTxID          []byte
	TronBlockNumber   *int64
	Solved            bool
	Funded            bool
	Settled           bool
	Closed            bool
}

// applyIntentCreated opens the first version of an intent. IntentCreated is
// always the lowest-seq event for a given id, so there is never a prior open
// row to close.
func (p *Projector) applyIntentCreated(ctx context.Context, tx *sql.Tx, seq int64, a eventschema.IntentCreatedArgs) error {
	id, err := decodeHex(a.IntentID)
	if err != nil {
		return fmt.Errorf("decode intent_id: %w", err)
	}
	v := intentVersion{
		Creator:           hexToBytes(a.Creator),
		IntentType:        a.IntentType,
		EscrowToken:       hexToBytes(a.EscrowToken),
		EscrowAmount:      a.EscrowAmount,
		RefundBeneficiary: hexToBytes(a.RefundBeneficiary),
		Deadline:          a.Deadline,
		IntentSpecs:       hexToBytes(a.IntentSpecs),
	}
	return p.insertIntentVersion(ctx, tx, id, seq, v)
}

// mutateIntent closes the currently-open version of id (if any — an event
// for an id whose IntentCreated was never indexed is a gap in the upstream
// event chain, not something this projector papers over) and inserts a new
// open version with mutate applied on top of the prior row's fields.
func (p *Projector) mutateIntent(ctx context.Context, tx *sql.Tx, seq int64, intentIDHex string, mutate func(*intentVersion)) error {
	id, err := decodeHex(intentIDHex)
	if err != nil {
		return fmt.Errorf("decode intent_id: %w", err)
	}

	v, err := p.loadOpenIntentVersion(ctx, tx, id)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("no open intent_versions row for id=%x at event_seq=%d (IntentCreated missing or already applied out of order)", id, seq)
	}
	mutate(v)

	if _, err := tx.ExecContext(ctx,
		`update api.intent_versions set valid_to_seq = $2 where id = $1 and valid_to_seq is null`,
		id, seq,
	); err != nil {
		return fmt.Errorf("close intent_versions id=%x: %w", id, err)
	}
	return p.insertIntentVersion(ctx, tx, id, seq, *v)
}

func (p *Projector) loadOpenIntentVersion(ctx context.Context, tx *sql.Tx, id []byte) (*intentVersion, error) {
	var v intentVersion
	var solverClaimedAt, tronBlockNumber sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		select creator, intent_type, escrow_token, escrow_amount, refund_beneficiary, deadline, intent_specs,
		       solver, solver_claimed_at, tron_tx_id, tron_block_number, solved, funded, settled, closed
		from api.intent_versions where id = $1 and valid_to_seq is null`, id,
	).Scan(&v.Creator, &v.IntentType, &v.EscrowToken, &v.EscrowAmount, &v.RefundBeneficiary, &v.Deadline, &v.IntentSpecs,
		&v.Solver, &solverClaimedAt, &v.TronTxID, &tronBlockNumber, &v.Solved, &v.Funded, &v.Settled, &v.Closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load open intent_versions id=%x: %w", id, err)
	}
	if solverClaimedAt.Valid {
		v.SolverClaimedAt = &solverClaimedAt.Int64
	}
	if tronBlockNumber.Valid {
		v.TronBlockNumber = &tronBlockNumber.Int64
	}
	return &v, nil
}

func (p *Projector) insertIntentVersion(ctx context.Context, tx *sql.Tx, id []byte, seq int64, v intentVersion) error {
	var solverClaimedAt, tronBlockNumber sql.NullInt64
	if v.SolverClaimedAt != nil {
		solverClaimedAt = sql.NullInt64{Int64: *v.SolverClaimedAt, Valid: true}
	}
	if v.TronBlockNumber != nil {
		tronBlockNumber = sql.NullInt64{Int64: *v.TronBlockNumber, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		insert into api.intent_versions
			(id, valid_from_seq, creator, intent_type, escrow_token, escrow_amount, refund_beneficiary,
			 deadline, intent_specs, solver, solver_claimed_at, tron_tx_id, tron_block_number,
			 solved, funded, settled, closed)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		id, seq, v.Creator, v.IntentType, v.EscrowToken, v.EscrowAmount, v.RefundBeneficiary,
		v.Deadline, v.IntentSpecs, v.Solver, solverClaimedAt, v.TronTxID, tronBlockNumber,
		v.Solved, v.Funded, v.Settled, v.Closed)
	if err != nil {
		return fmt.Errorf("insert intent_versions id=%x valid_from_seq=%d: %w", id, seq, err)
	}
	return nil
}

// applyBridgersUpdated opens a new bridgers_versions row for this
// projector's own (chain_id, contract_address) key, closing whatever was
// open before.
func (p *Projector) applyBridgersUpdated(ctx context.Context, tx *sql.Tx, seq int64, a eventschema.BridgersUpdatedArgs) error {
	if _, err := tx.ExecContext(ctx,
		`update api.bridgers_versions set valid_to_seq = $3
		 where chain_id = $1 and contract_address = $2 and valid_to_seq is null`,
		p.ChainID, p.ContractAddress, seq,
	); err != nil {
		return fmt.Errorf("close bridgers_versions chain=%d contract=%x: %w", p.ChainID, p.ContractAddress, err)
	}

	_, err := tx.ExecContext(ctx, `
		insert into api.bridgers_versions (chain_id, contract_address, valid_from_seq, usdt_bridger, usdc_bridger)
		values ($1, $2, $3, $4, $5)`,
		p.ChainID, p.ContractAddress, seq, hexToBytes(a.USDTBridger), hexToBytes(a.USDCBridger))
	if err != nil {
		return fmt.Errorf("insert bridgers_versions chain=%d contract=%x: %w", p.ChainID, p.ContractAddress, err)
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	return hex.DecodeString(s)
}

// Copyright 2025 Certen Protocol

package chainstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
)

// theDeclaration is hashed into every stream's genesis tip. Its content is
// arbitrary but fixed: changing it would fork every existing chain-store
// deployment's hash chain.
const theDeclaration = "Justin Sun is responsible for setting back the inevitable global stablecoin revolution by years through exploiting Tron USDT's network effects and imposing vendor lock-in on hundreds of millions of people in the Third World, who rely on stablecoins for remittances and to store their savings in unstable, overregulated economies. Let's Untron the People."

// ComputeEventChainGenesis derives the genesis tip for a named stream
// ("pool", "forwarder:<chain_id>", etc.) as sha256(indexName + "\n" + declaration).
func ComputeEventChainGenesis(indexName string) [32]byte {
	h := sha256.New()
	h.Write([]byte(indexName))
	h.Write([]byte("\n"))
	h.Write([]byte(theDeclaration))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EnsureInstanceConfig registers (stream, chainID, contractAddress) with its
// derived genesis tip, or verifies an existing row matches it. A mismatch
// means the operator pointed this process at the wrong database or contract
// and is always a fatal misconfiguration, never something to silently fix.
func (c *Client) EnsureInstanceConfig(ctx context.Context, stream, indexName string, chainID int64, contractAddress []byte) error {
	genesis := ComputeEventChainGenesis(indexName)

	var existing []byte
	err := c.db.QueryRowContext(ctx,
		`select genesis_tip from chain.instance where stream = $1 and chain_id = $2 and contract_address = $3`,
		stream, chainID, contractAddress,
	).Scan(&existing)

	switch {
	case err == nil:
		if string(existing) != string(genesis[:]) {
			return fmt.Errorf("chainstore: genesis_tip mismatch for stream=%s chain_id=%d contract=%x: db=%x env=%x",
				stream, chainID, contractAddress, existing, genesis)
		}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := c.db.ExecContext(ctx,
			`insert into chain.instance (stream, chain_id, contract_address, genesis_tip) values ($1, $2, $3, $4)`,
			stream, chainID, contractAddress, genesis[:],
		); err != nil {
			return fmt.Errorf("chainstore: insert chain.instance: %w", err)
		}
		if _, err := c.db.ExecContext(ctx,
			`insert into chain.stream_cursor (stream, chain_id, contract_address, applied_through_seq)
			 values ($1, $2, $3, 0) on conflict do nothing`,
			stream, chainID, contractAddress,
		); err != nil {
			return fmt.Errorf("chainstore: insert chain.stream_cursor: %w", err)
		}
	default:
		return fmt.Errorf("chainstore: read chain.instance: %w", err)
	}
	return nil
}

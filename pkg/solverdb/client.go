// Copyright 2025 Certen Protocol
//
// Package solverdb is the durable state store for the solver process
// (component D): jobs, hub userops, Tron signed txs/proofs/costs, circuit
// breakers, rental bookkeeping, and the global pause flag. Every state
// transition is lease-guarded: an UPDATE only counts if it affected exactly
// one row under the caller's own lease, so a lease lost to expiry or to
// another replica is detected immediately rather than silently clobbered.
package solverdb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationLockKey int64 = 0x554E_5452_4F4E_534C

var logger = log.New(os.Stdout, "[solverdb] ", log.LstdFlags)

// ErrLeaseLost means an update expected to affect exactly one leased row
// affected zero: the lease expired or was reassigned to another replica
// mid-step. Callers must abort the current step without side effects.
type ErrLeaseLost struct {
	JobID int64
}

func (e *ErrLeaseLost) Error() string {
	return fmt.Sprintf("solverdb: lost lease for job_id=%d", e.JobID)
}

// Db wraps the solver's connection pool.
type Db struct {
	pool *sql.DB
}

// Connect opens the pool and verifies connectivity.
func Connect(databaseURL string, maxConns int) (*Db, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("solverdb: SOLVER_DB_URL is empty")
	}
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("solverdb: open: %w", err)
	}
	if maxConns > 0 {
		pool.SetMaxOpenConns(maxConns)
	}
	pool.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("solverdb: ping: %w", err)
	}
	return &Db{pool: pool}, nil
}

// Close releases the pool.
func (d *Db) Close() error { return d.pool.Close() }

// Migrate applies bootstrap unconditionally and gates versions 2+ behind
// solver.schema_migrations, serialized with an advisory lock so concurrently
// starting solver replicas don't race each other's DDL.
func (d *Db) Migrate(ctx context.Context) error {
	conn, err := d.pool.Conn(ctx)
	if err != nil {
		return fmt.Errorf("solverdb: acquire conn for migration: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "select pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("solverdb: acquire advisory lock: %w", err)
	}
	defer conn.ExecContext(context.Background(), "select pg_advisory_unlock($1)", migrationLockKey)

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version == 1 {
			logger.Printf("🔧 applying bootstrap migration %s", m.name)
			if _, err := conn.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("solverdb: bootstrap migration %s: %w", m.name, err)
			}
			continue
		}

		var exists bool
		if err := conn.QueryRowContext(ctx,
			"select exists(select 1 from solver.schema_migrations where version = $1)", m.version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("solverdb: check migration %d: %w", m.version, err)
		}
		if exists {
			continue
		}

		logger.Printf("🔧 applying migration %s", m.name)
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("solverdb: begin tx for migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("solverdb: apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"insert into solver.schema_migrations(version) values ($1) on conflict do nothing", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("solverdb: record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("solverdb: commit migration %s: %w", m.name, err)
		}
	}

	logger.Printf("✅ migrations up to date")
	return nil
}

type migration struct {
	version int
	name    string
	sql     string
}

func loadMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("solverdb: read %s: %w", path, err)
		}
		prefix, _, ok := strings.Cut(d.Name(), "_")
		if !ok {
			return fmt.Errorf("solverdb: migration filename %q missing version prefix", d.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return fmt.Errorf("solverdb: migration filename %q has non-numeric version: %w", d.Name(), err)
		}
		out = append(out, migration{version: version, name: d.Name(), sql: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

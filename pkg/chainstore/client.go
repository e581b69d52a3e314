// Copyright 2025 Certen Protocol
//
// Package chainstore is the Postgres-backed event-chain store (component A):
// connection pooling, bootstrap + versioned migrations, instance genesis
// configuration, and the idempotent event_appended writer the indexer and
// projection readers share.
package chainstore

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

// migrationLockKey is the pg_advisory_lock key guarding concurrent migration
// runs across indexer replicas, chosen the same way the Rust migrator does:
// an arbitrary fixed int64 rather than one derived from schema content.
const migrationLockKey int64 = 0x554E_5452_4F4E_4443

var logger = log.New(os.Stdout, "[chainstore] ", log.LstdFlags)

// Client wraps a connection pool to the chain-store database.
type Client struct {
	db *sql.DB
}

// NewClient opens a connection pool against databaseURL.
func NewClient(databaseURL string, maxConns int) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("chainstore: DATABASE_URL is empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("chainstore: open: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("chainstore: ping: %w", err)
	}
	return &Client{db: db}, nil
}

// DB exposes the underlying pool for callers that need raw SQL access.
func (c *Client) DB() *sql.DB { return c.db }

// Close releases the pool.
func (c *Client) Close() error { return c.db.Close() }

// Migrate applies every embedded migration not yet recorded in
// chain.schema_migrations, serialized across replicas via an advisory lock.
// Bootstrap (version 1) is re-run on every startup regardless of the
// migrations table's contents, which is why its SQL must stay idempotent;
// versions 2+ are applied once and skipped thereafter.
func (c *Client) Migrate(ctx context.Context) error {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("chainstore: acquire conn for migration: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "select pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("chainstore: acquire advisory lock: %w", err)
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
				return fmt.Errorf("chainstore: bootstrap migration %s: %w", m.name, err)
			}
			continue
		}

		applied, err := migrationApplied(ctx, conn, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		logger.Printf("🔧 applying migration %s", m.name)
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("chainstore: begin tx for migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("chainstore: apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"insert into chain.schema_migrations(version) values ($1) on conflict do nothing", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("chainstore: record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("chainstore: commit migration %s: %w", m.name, err)
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
			return fmt.Errorf("chainstore: read %s: %w", path, err)
		}
		version, err := parseMigrationVersion(d.Name())
		if err != nil {
			return err
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

func parseMigrationVersion(filename string) (int, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("chainstore: migration filename %q missing version prefix", filename)
	}
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("chainstore: migration filename %q has non-numeric version: %w", filename, err)
	}
	return v, nil
}

func migrationApplied(ctx context.Context, conn *sql.Conn, version int) (bool, error) {
	var exists bool
	err := conn.QueryRowContext(ctx,
		"select exists(select 1 from chain.schema_migrations where version = $1)", version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("chainstore: check migration %d applied: %w", version, err)
	}
	return exists, nil
}

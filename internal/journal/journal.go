// Package journal persists finalized transactions to SQLite. The
// journal is append-only history: replaying it in order rebuilds the
// grid, which is also how the round-trip property is audited offline.
// The grid file format itself lives elsewhere; the journal only stores
// the engine's deterministic transaction JSON.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Journal is an append-only transaction log backed by SQLite.
// Safe for one writer; WAL mode allows concurrent readers.
type Journal struct {
	db *sql.DB
}

// Open creates or opens a journal database at path. Pragmas and the
// schema apply automatically; calling Open on an existing journal is
// idempotent.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: connect: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("journal: apply pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("journal: apply schema: %w", err)
	}
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("journal: record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("journal: read schema version: %w", err)
	case version > currentSchemaVersion:
		return fmt.Errorf("journal: schema version %d newer than supported %d", version, currentSchemaVersion)
	}
	return nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append writes a finalized transaction. Appending the same transaction
// id twice is a no-op (idempotent via the unique index), which makes the
// finalize hook safe to replay on recovery.
func (j *Journal) Append(ctx context.Context, t engine.Transaction) error {
	ops, err := op.MarshalList(t.Ops)
	if err != nil {
		return fmt.Errorf("journal: marshal ops for %s: %w", t.ID, err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO transactions (id, seq, source, cursor, operations)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		string(t.ID), t.Seq, string(t.Source), t.Cursor, string(ops),
	)
	if err != nil {
		return fmt.Errorf("journal: append %s: %w", t.ID, err)
	}
	return nil
}

// Transactions returns the full history in append order.
func (j *Journal) Transactions(ctx context.Context) ([]engine.Transaction, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, source, cursor, operations
		FROM transactions ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("journal: query transactions: %w", err)
	}
	defer rows.Close()

	var out []engine.Transaction
	for rows.Next() {
		var (
			id, source, cursor, opsJSON string
			seq                         uint64
		)
		if err := rows.Scan(&id, &seq, &source, &cursor, &opsJSON); err != nil {
			return nil, fmt.Errorf("journal: scan transaction: %w", err)
		}
		ops, err := op.UnmarshalList([]byte(opsJSON))
		if err != nil {
			return nil, fmt.Errorf("journal: decode ops for %s: %w", id, err)
		}
		out = append(out, engine.Transaction{
			ID:     engine.TxnID(id),
			Seq:    seq,
			Source: engine.Source(source),
			Cursor: cursor,
			Ops:    ops,
		})
	}
	return out, rows.Err()
}

// Count returns the number of journaled transactions.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count transactions: %w", err)
	}
	return n, nil
}

// Replay rebuilds a grid by reapplying the journaled forward operations
// in append order. Compute triggers do not re-fire: the journal already
// holds the computed results as their own operations.
func (j *Journal) Replay(ctx context.Context) (*grid.Grid, error) {
	txns, err := j.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	g := grid.New()
	for _, t := range txns {
		for _, o := range t.Ops {
			if _, isCompute := o.(op.ComputeCell); isCompute {
				continue
			}
			if _, err := op.Apply(g, o); err != nil {
				return nil, fmt.Errorf("journal: replay %s op %s: %w", t.ID, o.Type(), err)
			}
		}
	}
	return g, nil
}

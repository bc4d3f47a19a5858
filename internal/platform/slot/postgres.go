package slot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/procuredesk/internal/platform/db"
)

// Schema creates the slot tables.
const Schema = `
CREATE TABLE IF NOT EXISTS record_slots (
    key        TEXT PRIMARY KEY,
    value      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS record_slot_snapshots (
    label    TEXT NOT NULL,
    key      TEXT NOT NULL,
    value    JSONB NOT NULL,
    taken_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (label, key)
);`

const (
	loadSQL = `SELECT value FROM record_slots WHERE key = $1`
	saveSQL = `INSERT INTO record_slots (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	snapshotSQL = `INSERT INTO record_slot_snapshots (label, key, value, taken_at)
SELECT $1, key, value, now() FROM record_slots WHERE key LIKE $2
ON CONFLICT (label, key) DO UPDATE SET value = EXCLUDED.value, taken_at = EXCLUDED.taken_at`
)

// Conn is the subset of *pgxpool.Pool the Postgres slot uses.
type Conn interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error)
}

// Postgres stores each key as a JSONB row.
type Postgres struct {
	db     Conn
	prefix string
}

// NewPostgres wraps a pool. prefix namespaces every key.
func NewPostgres(conn Conn, prefix string) *Postgres {
	return &Postgres{db: conn, prefix: prefix}
}

// Migrate creates the slot tables when missing.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("slot/postgres: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Load(ctx context.Context, key string) ([]byte, error) {
	if err := requireKey(key); err != nil {
		return nil, err
	}
	var value []byte
	err := p.db.QueryRow(ctx, loadSQL, p.prefix+key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("slot/postgres: load %s: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) Save(ctx context.Context, key string, value []byte) error {
	if err := requireKey(key); err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, saveSQL, p.prefix+key, value); err != nil {
		return fmt.Errorf("slot/postgres: save %s: %w", key, err)
	}
	return nil
}

// Snapshot copies every prefixed row under label inside one transaction.
func (p *Postgres) Snapshot(ctx context.Context, label string) (int, error) {
	if err := requireKey(label); err != nil {
		return 0, err
	}
	var copied int64
	err := db.WithTx(ctx, p.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, snapshotSQL, label, escapeLike(p.prefix)+"%")
		if err != nil {
			return fmt.Errorf("slot/postgres: snapshot: %w", err)
		}
		copied = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(copied), nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

package slot

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type stubDB struct {
	rows      map[string][]byte
	execs     []string
	execArgs  [][]interface{}
	execErr   error
	tx        *stubTx
	committed bool
}

func (s *stubDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if s.execErr != nil {
		return pgconn.CommandTag{}, s.execErr
	}
	s.execs = append(s.execs, sql)
	s.execArgs = append(s.execArgs, args)
	if sql == saveSQL {
		if s.rows == nil {
			s.rows = make(map[string][]byte)
		}
		s.rows[args[0].(string)] = args[1].([]byte)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (s *stubDB) QueryRow(_ context.Context, _ string, args ...interface{}) pgx.Row {
	value, ok := s.rows[args[0].(string)]
	if !ok {
		return &stubRow{err: pgx.ErrNoRows}
	}
	return &stubRow{value: value}
}

func (s *stubDB) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	s.tx = &stubTx{db: s}
	return s.tx, nil
}

type stubRow struct {
	value []byte
	err   error
}

func (r *stubRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.value
	return nil
}

// stubTx implements only what Snapshot uses.
type stubTx struct {
	pgx.Tx
	db         *stubDB
	sql        string
	args       []interface{}
	rolledBack bool
}

func (t *stubTx) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	t.sql = sql
	t.args = args
	return pgconn.NewCommandTag("INSERT 0 3"), nil
}

func (t *stubTx) Commit(context.Context) error {
	t.db.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error {
	if !t.db.committed {
		t.rolledBack = true
	}
	return nil
}

func TestPostgresSlotLoadSave(t *testing.T) {
	ctx := context.Background()
	conn := &stubDB{}
	s := NewPostgres(conn, "pd:")

	value, err := s.Load(ctx, "template")
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, s.Save(ctx, "template", []byte(`[{"id":"tpl-1"}]`)))
	require.Equal(t, `[{"id":"tpl-1"}]`, string(conn.rows["pd:template"]))

	value, err = s.Load(ctx, "template")
	require.NoError(t, err)
	require.Equal(t, `[{"id":"tpl-1"}]`, string(value))

	require.NoError(t, s.Migrate(ctx))
	require.Equal(t, Schema, conn.execs[len(conn.execs)-1])

	conn.execErr = errors.New("connection reset")
	require.ErrorContains(t, s.Save(ctx, "template", []byte(`[]`)), "slot/postgres: save template")
}

func TestPostgresSnapshotRunsInTransaction(t *testing.T) {
	conn := &stubDB{}
	s := NewPostgres(conn, "pd_1:")

	n, err := s.Snapshot(context.Background(), "nightly")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.True(t, conn.committed)
	require.False(t, conn.tx.rolledBack)
	require.Equal(t, snapshotSQL, conn.tx.sql)
	require.Equal(t, []interface{}{"nightly", `pd\_1:%`}, conn.tx.args)
}

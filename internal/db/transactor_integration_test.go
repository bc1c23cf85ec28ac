package db_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/txwrap/internal/db"
	testhelpers "github.com/vvka-141/txwrap/internal/testing"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

func setupAccounts(t *testing.T) (*pgxpool.Pool, *db.PgTransactor, string) {
	t.Helper()
	connString := testhelpers.RequireDatabase(t)
	pool := testhelpers.GetTestPool(t, connString)
	table := testhelpers.CreateTestTable(t, pool,
		"id int PRIMARY KEY",
		"owner text NOT NULL UNIQUE",
		"balance int NOT NULL DEFAULT 0")
	return pool, db.NewPgTransactor(pool), table
}

func countRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func insert(ctx context.Context, tr *db.PgTransactor, table string, id int, owner string) error {
	_, err := tr.Querier(ctx).Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (id, owner) VALUES ($1, $2)", table), id, owner)
	return err
}

func TestPgTransactor_CommitAndRollback(t *testing.T) {
	pool, tr, table := setupAccounts(t)
	ctx := context.Background()

	err := tr.Transaction(ctx, txwrap.TxOptions{}, func(ctx context.Context) error {
		assert.True(t, tr.TransactionOpen(ctx))
		return insert(ctx, tr, table, 1, "alice")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, pool, table))

	boom := errors.New("boom")
	err = tr.Transaction(ctx, txwrap.TxOptions{}, func(ctx context.Context) error {
		require.NoError(t, insert(ctx, tr, table, 2, "bob"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, countRows(t, pool, table))
	assert.False(t, tr.TransactionOpen(ctx))
}

func TestPgTransactor_NestedJoinsOpenTransaction(t *testing.T) {
	pool, tr, table := setupAccounts(t)
	boom := errors.New("boom")

	err := tr.Transaction(context.Background(), txwrap.TxOptions{}, func(ctx context.Context) error {
		require.NoError(t, insert(ctx, tr, table, 1, "alice"))
		return tr.Transaction(ctx, txwrap.TxOptions{}, func(ctx context.Context) error {
			require.NoError(t, insert(ctx, tr, table, 2, "bob"))
			return boom
		})
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countRows(t, pool, table), "a joined failure rolls back the whole transaction")
}

func TestPgTransactor_RequiresNewUsesSavepoint(t *testing.T) {
	pool, tr, table := setupAccounts(t)
	boom := errors.New("boom")

	err := tr.Transaction(context.Background(), txwrap.TxOptions{}, func(ctx context.Context) error {
		require.NoError(t, insert(ctx, tr, table, 1, "alice"))
		inner := tr.Transaction(ctx, txwrap.TxOptions{RequiresNew: true}, func(ctx context.Context) error {
			require.NoError(t, insert(ctx, tr, table, 2, "bob"))
			return boom
		})
		assert.ErrorIs(t, inner, boom)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, pool, table))
}

func TestPgTransactor_NotJoinableForcesSavepoint(t *testing.T) {
	pool, tr, table := setupAccounts(t)
	joinable := false

	err := tr.Transaction(context.Background(), txwrap.TxOptions{Joinable: &joinable}, func(ctx context.Context) error {
		require.NoError(t, insert(ctx, tr, table, 1, "alice"))
		_ = tr.Transaction(ctx, txwrap.TxOptions{}, func(ctx context.Context) error {
			// Violates the unique owner; only the savepoint is lost.
			return insert(ctx, tr, table, 2, "alice")
		})
		return insert(ctx, tr, table, 3, "carol")
	})

	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, pool, table))
}

func TestPgTransactor_Isolation(t *testing.T) {
	_, tr, _ := setupAccounts(t)

	err := tr.Transaction(context.Background(), txwrap.TxOptions{Isolation: txwrap.IsolationSerializable}, func(ctx context.Context) error {
		var level string
		require.NoError(t, tr.Querier(ctx).QueryRow(ctx, "SHOW transaction_isolation").Scan(&level))
		assert.Equal(t, "serializable", level)

		nested := tr.Transaction(ctx, txwrap.TxOptions{RequiresNew: true, Isolation: txwrap.IsolationReadCommitted},
			func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, nested, db.ErrNestedIsolation)
		return nil
	})
	require.NoError(t, err)
}

func TestRecord_WithLockLoadsRow(t *testing.T) {
	pool, tr, table := setupAccounts(t)
	ctx := context.Background()
	_, err := pool.Exec(ctx, fmt.Sprintf("INSERT INTO %s (id, owner, balance) VALUES (7, 'alice', 100)", table))
	require.NoError(t, err)

	record := db.NewRecord(tr, table, "id", 7)

	err = record.WithLock(ctx, func(ctx context.Context) error {
		assert.True(t, tr.TransactionOpen(ctx))
		_, err := tr.Querier(ctx).Exec(ctx,
			fmt.Sprintf("UPDATE %s SET balance = balance - 30 WHERE id = 7", table))
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 100, record.Attributes["balance"])

	require.NoError(t, record.Reload(ctx))
	assert.EqualValues(t, 70, record.Attributes["balance"])
	assert.Equal(t, "alice", record.Attributes["owner"])
}

func TestRecord_WithLockMissingRow(t *testing.T) {
	_, tr, table := setupAccounts(t)
	record := db.NewRecord(tr, table, "id", 404)
	called := false

	err := record.WithLock(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.True(t, txwrap.KindRecordNotFound.Matches(err))
	assert.False(t, called)
}

func TestStandardConnector_Connect(t *testing.T) {
	connString := testhelpers.RequireDatabase(t)

	c, err := db.NewConnector(&db.ConnectionConfig{ConnString: connString})
	require.NoError(t, err)

	pool, err := c.Connect(context.Background())
	require.NoError(t, err)
	defer pool.Close()

	assert.EqualValues(t, db.DefaultMaxConns, pool.Config().MaxConns)
}

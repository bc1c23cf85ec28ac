package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// ErrNestedIsolation is returned when a nested transaction asks for an isolation level.
var ErrNestedIsolation = errors.New("cannot set isolation level on a nested transaction")

// Querier is the query surface shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is what PgTransactor needs from a pool or a single connection.
type DB interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type txKey struct{}

type txState struct {
	tx       pgx.Tx
	joinable bool
}

// PgTransactor implements txwrap.Transactor on PostgreSQL.
//
// The open transaction travels in the context returned to the transaction body,
// so "is a transaction open" is answered per call chain rather than from shared state.
// Nested transactions use savepoints.
//
// Thread-Safety: safe for concurrent use when db is a *pgxpool.Pool. A context
// carrying a transaction must not be shared between goroutines.
type PgTransactor struct {
	db DB
}

// NewPgTransactor creates a PgTransactor over db.
// Panics if db is nil.
func NewPgTransactor(db DB) *PgTransactor {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PgTransactor{db: db}
}

// TransactionOpen reports whether ctx carries an open transaction.
func (t *PgTransactor) TransactionOpen(ctx context.Context) bool {
	return current(ctx) != nil
}

// Querier returns the transaction open in ctx, or the underlying db.
func (t *PgTransactor) Querier(ctx context.Context) Querier {
	if state := current(ctx); state != nil {
		return state.tx
	}
	return t.db
}

// Transaction runs fn in a transaction. Inside an open transaction it joins it,
// unless opts.RequiresNew is set or the open transaction is not joinable, in which
// case it opens a savepoint. fn's error rolls back; a normal return commits.
func (t *PgTransactor) Transaction(ctx context.Context, opts txwrap.TxOptions, fn func(ctx context.Context) error) error {
	if state := current(ctx); state != nil {
		if opts.Isolation != txwrap.IsolationDefault {
			return fmt.Errorf("%w (requested %q)", ErrNestedIsolation, opts.Isolation)
		}
		if !opts.RequiresNew && state.joinable {
			return fn(ctx)
		}
		sp, err := state.tx.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to create savepoint: %w", err)
		}
		return run(ctx, sp, opts, fn)
	}

	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: isoLevel(opts.Isolation)})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	return run(ctx, tx, opts, fn)
}

func run(ctx context.Context, tx pgx.Tx, opts txwrap.TxOptions, fn func(ctx context.Context) error) error {
	state := &txState{
		tx:       tx,
		joinable: opts.Joinable == nil || *opts.Joinable,
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, state)); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func current(ctx context.Context) *txState {
	state, _ := ctx.Value(txKey{}).(*txState)
	return state
}

func isoLevel(level txwrap.IsolationLevel) pgx.TxIsoLevel {
	switch level {
	case txwrap.IsolationSerializable:
		return pgx.Serializable
	case txwrap.IsolationRepeatableRead:
		return pgx.RepeatableRead
	case txwrap.IsolationReadCommitted:
		return pgx.ReadCommitted
	case txwrap.IsolationReadUncommitted:
		return pgx.ReadUncommitted
	default:
		return ""
	}
}

// Verify PgTransactor implements Transactor at compile time
var _ txwrap.Transactor = (*PgTransactor)(nil)

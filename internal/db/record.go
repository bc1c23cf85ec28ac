package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// Record is a single table row addressed by its key. It is a lockable target:
// WithLock reloads the row with SELECT ... FOR UPDATE before running the body.
//
// Thread-Safety: NOT safe for concurrent use.
type Record struct {
	Table     string
	KeyColumn string
	Key       any

	// Attributes holds the column values from the last load.
	Attributes map[string]any

	transactor *PgTransactor
	errors     txwrap.RecordErrors
}

// NewRecord creates a Record for the row of table whose keyColumn equals key.
// table may be schema-qualified ("public.accounts").
// Panics if transactor is nil.
func NewRecord(transactor *PgTransactor, table, keyColumn string, key any) *Record {
	if transactor == nil {
		panic("transactor cannot be nil")
	}
	return &Record{
		Table:      table,
		KeyColumn:  keyColumn,
		Key:        key,
		transactor: transactor,
	}
}

// Errors returns the failures recorded on the row.
func (r *Record) Errors() txwrap.ErrorCollection {
	return &r.errors
}

// RecordErrors returns the recorded failures for inspection.
func (r *Record) RecordErrors() *txwrap.RecordErrors {
	return &r.errors
}

// EntityName names the record by its table.
func (r *Record) EntityName() string {
	return "Record(" + r.Table + ")"
}

// Transactor returns the resource the record lives in.
func (r *Record) Transactor() txwrap.Transactor {
	return r.transactor
}

// Reload reads the row again without locking it.
func (r *Record) Reload(ctx context.Context) error {
	return r.load(ctx, false)
}

// WithLock locks and reloads the row inside a transaction, then runs fn in it.
func (r *Record) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.transactor.Transaction(ctx, txwrap.TxOptions{}, func(ctx context.Context) error {
		if err := r.load(ctx, true); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func (r *Record) load(ctx context.Context, forUpdate bool) error {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1",
		pgx.Identifier(strings.Split(r.Table, ".")).Sanitize(),
		pgx.Identifier{r.KeyColumn}.Sanitize(),
	)
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := r.transactor.Querier(ctx).Query(ctx, query, r.Key)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", r.Table, err)
	}
	attrs, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return fmt.Errorf("failed to load %s where %s = %v: %w", r.Table, r.KeyColumn, r.Key, err)
	}
	r.Attributes = attrs
	return nil
}

// Verify Record implements the target interfaces at compile time
var (
	_ txwrap.Lockable       = (*Record)(nil)
	_ txwrap.ResourceScoped = (*Record)(nil)
	_ txwrap.Named          = (*Record)(nil)
)

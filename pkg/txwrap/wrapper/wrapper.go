// Package wrapper constructs TransactionWrapper implementations and the
// PostgreSQL resource they run on.
package wrapper

import (
	"github.com/vvka-141/txwrap/internal/db"
	"github.com/vvka-141/txwrap/internal/services"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// PostgreSQL resource types, usable by callers outside this module.
type (
	PgTransactor = db.PgTransactor
	Querier      = db.Querier
	DB           = db.DB
	Record       = db.Record
)

// Option configures New.
type Option func(*options)

type options struct {
	name   string
	logger txwrap.Logger
}

// WithName sets the owner name used in log lines and configuration errors.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger txwrap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New creates a TransactionWrapper running on resource.
func New(resource txwrap.Transactor, opts ...Option) txwrap.TransactionWrapper {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return services.NewTransactionService(o.name, resource, o.logger)
}

// NewPgTransactor creates a PostgreSQL resource over a pool or connection.
func NewPgTransactor(conn DB) *PgTransactor {
	return db.NewPgTransactor(conn)
}

// NewRecord creates a lockable target for one row.
func NewRecord(t *PgTransactor, table, keyColumn string, key any) *Record {
	return db.NewRecord(t, table, keyColumn, key)
}

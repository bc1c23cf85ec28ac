package txwrap

import (
	"context"
	"fmt"
	"strings"
)

// Work is the caller's unit of work. isRetry is true whenever either context is
// running it again after a retriable error, so the work can change course
// (e.g. look a row up instead of inserting it).
type Work func(ctx context.Context, isRetry bool) error

// TransactionWrapper runs work inside a transaction and classifies what it raises.
type TransactionWrapper interface {
	// TransactionWrapper runs work for target (nil for no target) under cfg.
	// It returns a Result for success and for rescued failures, and an error for
	// configuration problems, reraisable kinds and unclassified errors.
	TransactionWrapper(ctx context.Context, target Target, cfg Config, work Work) (Result, error)
}

// Transactor is the transactional resource the wrapper drives.
// Commit on normal return and rollback on error are the Transactor's job.
type Transactor interface {
	// TransactionOpen reports whether a transaction is already open for ctx.
	TransactionOpen(ctx context.Context) bool

	// Transaction runs fn inside a transaction opened with opts.
	Transaction(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error
}

// TxOptions are passed through to Transactor.Transaction.
type TxOptions struct {
	// RequiresNew starts a nested transaction (savepoint) instead of joining an open one.
	RequiresNew bool
	// Isolation is the isolation level for a new top-level transaction.
	Isolation IsolationLevel
	// Joinable, when set to false, makes transactions nested in this one create
	// their own savepoint. Nil means the resource default.
	Joinable *bool
}

// IsolationLevel names a transaction isolation level.
type IsolationLevel string

const (
	IsolationDefault         IsolationLevel = ""
	IsolationSerializable    IsolationLevel = "serializable"
	IsolationRepeatableRead  IsolationLevel = "repeatable read"
	IsolationReadCommitted   IsolationLevel = "read committed"
	IsolationReadUncommitted IsolationLevel = "read uncommitted"
)

// ParseIsolationLevel accepts "serializable", "repeatable_read", "repeatable read"
// and the other level names in any case.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	norm := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
	switch IsolationLevel(norm) {
	case IsolationDefault, IsolationSerializable, IsolationRepeatableRead,
		IsolationReadCommitted, IsolationReadUncommitted:
		return IsolationLevel(norm), nil
	}
	return "", fmt.Errorf("unknown isolation level %q: %w", s, ErrInvalidConfig)
}

// Target is an entity failures can be recorded against.
type Target interface {
	Errors() ErrorCollection
}

// ErrorCollection receives failure messages recorded on a target.
type ErrorCollection interface {
	Add(key, message string)
}

// Lockable is a target that can run a function while holding an exclusive lock
// on itself. Reloading the target's state while locking is expected.
type Lockable interface {
	Target
	WithLock(ctx context.Context, fn func(ctx context.Context) error) error
}

// ResourceScoped is a target bound to its own transactional resource.
// Targets without it use the wrapper's resource.
type ResourceScoped interface {
	Transactor() Transactor
}

// Named lets a target choose the name used for it in log lines.
type Named interface {
	EntityName() string
}

// Logger provides a pluggable logging interface for wrapper operations.
// Implementations must be safe for concurrent use by multiple goroutines.
type Logger interface {
	// Verbose logs detailed diagnostic information.
	// Only logged when verbose mode is enabled.
	Verbose(format string, args ...interface{})

	// Info logs informational messages about normal operations.
	Info(format string, args ...interface{})

	// Warn logs conditions the caller probably did not intend.
	Warn(format string, args ...interface{})

	// Error logs error messages.
	Error(format string, args ...interface{})
}

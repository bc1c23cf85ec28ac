package services

import (
	"context"

	"github.com/vvka-141/txwrap/internal/logging"
	"github.com/vvka-141/txwrap/internal/retry"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// TransactionService implements txwrap.TransactionWrapper over a Transactor.
//
// Thread-Safety: the service holds no per-call state. The transaction-open check
// assumes one logical caller per connection, as the Transactor does.
type TransactionService struct {
	name     string
	resource txwrap.Transactor
	logger   txwrap.Logger
}

// NewTransactionService creates a TransactionService.
// name prefixes every log line; empty means txwrap.DefaultName.
// Panics if resource is nil.
func NewTransactionService(name string, resource txwrap.Transactor, logger txwrap.Logger) *TransactionService {
	if resource == nil {
		panic("resource cannot be nil")
	}
	if name == "" {
		name = txwrap.DefaultName
	}
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &TransactionService{
		name:     name,
		resource: resource,
		logger:   logger,
	}
}

// WithLogger returns a new TransactionService that logs through logger.
// The receiver is not modified.
func (s *TransactionService) WithLogger(logger txwrap.Logger) *TransactionService {
	clone := *s
	clone.logger = logger
	return &clone
}

// Name returns the owner name used in log lines and configuration errors.
func (s *TransactionService) Name() string {
	return s.name
}

// TransactionWrapper runs work inside a transaction (or under the target's lock
// when cfg.Lock is set), with the outside context around the transaction and the
// inside context around work.
func (s *TransactionService) TransactionWrapper(ctx context.Context, target txwrap.Target, cfg txwrap.Config, work txwrap.Work) (txwrap.Result, error) {
	if err := cfg.Validate(s.name); err != nil {
		return txwrap.Result{}, err
	}

	resource := s.resourceFor(target)
	nested := resource.TransactionOpen(ctx)

	opts := cfg.TxOptions()
	if nested {
		if opts.RequiresNew {
			s.logger.Verbose("[%s.transaction_wrapper] Will start a nested transaction.", s.name)
		} else {
			opts.RequiresNew = true
			s.logger.Warn("[%s.transaction_wrapper] Opening a nested transaction. Setting %s: true", s.name, txwrap.KeyRequiresNew)
		}
	}

	ctxs := newContexts(s.name, s.logger, target, nested, cfg)

	res, err := ctxs.outside.Execute(ctx, func(ctx context.Context, outsideRetry bool) (*txwrap.Result, error) {
		var inner *txwrap.Result
		err := s.scope(ctx, resource, target, cfg.Lock, opts, func(ctx context.Context) error {
			r, err := ctxs.inside.Execute(ctx, func(ctx context.Context, insideRetry bool) (*txwrap.Result, error) {
				return nil, work(ctx, outsideRetry || insideRetry)
			})
			inner = r
			return err
		})
		if err != nil {
			return nil, err
		}
		return inner, nil
	})
	if err != nil {
		return txwrap.Result{}, err
	}
	return *res, nil
}

// scope opens the lock or transaction the inside context runs in.
func (s *TransactionService) scope(ctx context.Context, resource txwrap.Transactor, target txwrap.Target, lock bool, opts txwrap.TxOptions, body func(ctx context.Context) error) error {
	if target == nil {
		if lock {
			return txwrap.NoObjectToLockError()
		}
		return resource.Transaction(ctx, opts, body)
	}

	if lock {
		lockable, ok := target.(txwrap.Lockable)
		if !ok {
			return txwrap.NotLockableError(retry.EntityName(target))
		}
		// WithLock reloads the target and takes no transaction options.
		return lockable.WithLock(ctx, body)
	}
	return resource.Transaction(ctx, opts, body)
}

func (s *TransactionService) resourceFor(target txwrap.Target) txwrap.Transactor {
	if scoped, ok := target.(txwrap.ResourceScoped); ok {
		if r := scoped.Transactor(); r != nil {
			return r
		}
	}
	return s.resource
}

// Verify TransactionService implements the TransactionWrapper interface at compile time
var _ txwrap.TransactionWrapper = (*TransactionService)(nil)

package retry

import (
	"context"

	"github.com/vvka-141/txwrap/internal/logging"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// Operation is the unit of work an Executor runs. A Result returned without an
// error is passed through unchanged, which keeps an inner context's Result intact.
type Operation func(ctx context.Context, isRetry bool) (*txwrap.Result, error)

// Executor runs an Operation under one context's error policy.
//
// The With* methods do NOT modify the receiver; they return a new instance.
type Executor struct {
	context     txwrap.TransactionContext
	classifier  *ErrorClassifier
	maxAttempts int
	nested      bool
	target      txwrap.Target
	reporter    reporter
}

// NewExecutor creates an executor for context tc.
// maxAttempts below 1 falls back to txwrap.DefaultNumRetryAttempts.
// Panics if classifier is nil.
func NewExecutor(tc txwrap.TransactionContext, classifier *ErrorClassifier, maxAttempts int) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if maxAttempts < 1 {
		maxAttempts = txwrap.DefaultNumRetryAttempts
	}
	return &Executor{
		context:     tc,
		classifier:  classifier,
		maxAttempts: maxAttempts,
		reporter: reporter{
			owner:  txwrap.DefaultName,
			logger: logging.NewNullLogger(),
		},
	}
}

// WithNested returns a new Executor that marks its Results and log lines as nested.
func (e *Executor) WithNested(nested bool) *Executor {
	clone := *e
	clone.nested = nested
	return &clone
}

// WithTarget returns a new Executor that records failures on target.
func (e *Executor) WithTarget(target txwrap.Target) *Executor {
	clone := *e
	clone.target = target
	return &clone
}

// WithLogger returns a new Executor that logs through logger, naming owner.
func (e *Executor) WithLogger(owner string, logger txwrap.Logger) *Executor {
	clone := *e
	clone.reporter = reporter{owner: owner, logger: logger}
	return &clone
}

// Context returns the context label of the executor.
func (e *Executor) Context() txwrap.TransactionContext {
	return e.context
}

// MaxAttempts returns the attempt bound.
func (e *Executor) MaxAttempts() int {
	return e.maxAttempts
}

// Execute runs op until it succeeds, resolves to a Result, or returns an error
// the policy does not rescue.
func (e *Executor) Execute(ctx context.Context, op Operation) (*txwrap.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := op(ctx, attempt > 1)
		if err == nil {
			if res != nil {
				return res, nil
			}
			success := txwrap.NewSuccess(e.context, e.nested, attempt)
			return &success, nil
		}

		class, kind := e.classifier.Classify(err)
		switch class {
		case Reraise:
			e.report(kind, err, attempt, true, e.target)
			return nil, err

		case Retry:
			if attempt < e.maxAttempts {
				// Not recorded on the target: a recorded error could make the next attempt fail too.
				e.report(kind, err, attempt, false, e.target)
				continue
			}
			return e.resolve(txwrap.FailureRetriable, kind, err, attempt, e.target), nil

		case AlreadyPrepared:
			// The raising side recorded the failure; log as if there were no target.
			return e.resolve(txwrap.FailureAlreadyPrepared, kind, err, attempt, nil), nil

		case NeedsPreparation:
			if e.target != nil {
				e.target.Errors().Add(txwrap.BaseErrorKey, err.Error())
			}
			return e.resolve(txwrap.FailureNeedsPreparation, kind, err, attempt, e.target), nil

		default:
			return nil, err
		}
	}
}

func (e *Executor) resolve(fk txwrap.FailureKind, kind txwrap.ErrorKind, err error, attempt int, target txwrap.Target) *txwrap.Result {
	res := txwrap.NewFailure(e.context, e.nested, attempt, fk, kind.Name(), err)
	e.report(kind, err, attempt, false, target)
	return &res
}

func (e *Executor) report(kind txwrap.ErrorKind, err error, attempt int, reraising bool, target txwrap.Target) {
	e.reporter.report(entry{
		kind:      kind.Name(),
		err:       err,
		context:   e.context,
		nested:    e.nested,
		reraising: reraising,
		attempt:   attempt,
		target:    target,
	})
}

package services

import (
	"github.com/vvka-141/txwrap/internal/retry"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// contexts pairs the two independently configured executors of one call.
type contexts struct {
	outside *retry.Executor
	inside  *retry.Executor
}

func newContexts(owner string, logger txwrap.Logger, target txwrap.Target, nested bool, cfg txwrap.Config) contexts {
	outside := retry.NewErrorClassifier(retry.Lists{
		Rescued:    cfg.OutsideRescuedErrors,
		Prepared:   cfg.OutsidePreparedErrors,
		Retriable:  cfg.OutsideRetriableErrors,
		Reraisable: cfg.OutsideReraisableErrors,
	}, retry.OutsideDefaults)

	inside := retry.NewErrorClassifier(retry.Lists{
		Rescued:    cfg.RescuedErrors,
		Prepared:   cfg.PreparedErrors,
		Retriable:  cfg.RetriableErrors,
		Reraisable: cfg.ReraisableErrors,
	}, retry.InsideDefaults)

	return contexts{
		outside: configure(retry.NewExecutor(txwrap.Outside, outside, cfg.OutsideAttempts()), owner, logger, target, nested),
		inside:  configure(retry.NewExecutor(txwrap.Inside, inside, cfg.InsideAttempts()), owner, logger, target, nested),
	}
}

func configure(e *retry.Executor, owner string, logger txwrap.Logger, target txwrap.Target, nested bool) *retry.Executor {
	e = e.WithLogger(owner, logger).WithNested(nested)
	if target != nil {
		e = e.WithTarget(target)
	}
	return e
}

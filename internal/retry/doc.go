// Package retry runs a unit of work under a per-context error policy.
//
// An ErrorClassifier turns the configured error-kind lists into a Policy, and an
// Executor runs an operation against it: retriable kinds re-run the operation up to a
// bounded number of attempts, reraisable kinds are logged and returned, rescued kinds
// resolve to a failing txwrap.Result, and anything else is returned unchanged.
//
// # Example Usage
//
//	classifier := retry.NewErrorClassifier(retry.Lists{
//	    Retriable: txwrap.Kinds(txwrap.KindSerializationFailure),
//	}, retry.InsideDefaults)
//	executor := retry.NewExecutor(txwrap.Inside, classifier, 2)
//
//	res, err := executor.Execute(ctx, func(ctx context.Context, isRetry bool) (*txwrap.Result, error) {
//	    return nil, doWork(ctx, isRetry)
//	})
//
// # Precedence
//
// A kind configured into more than one list is dispatched by the first match in
// this order: reraisable, retriable, already prepared, needs preparation.
//
// # Thread Safety
//
// Executor instances are immutable once built; the With* methods return copies.
// Execute itself is synchronous and keeps its attempt counter on the stack.
package retry

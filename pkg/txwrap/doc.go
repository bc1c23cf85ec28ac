// Package txwrap defines the public types and collaborator interfaces for running a
// unit of work inside a transaction while classifying the errors it raises.
//
// A caller declares, per context, which error kinds are retried, re-raised, or turned
// into a failing Result. The "outside" context wraps the acquisition of the
// transaction or row lock; the "inside" context wraps the work performed while the
// transaction is open.
//
// # Example Usage
//
//	w := wrapper.New(wrapper.NewPgTransactor(pool), wrapper.WithName("Account"))
//
//	res, err := w.TransactionWrapper(ctx, account, txwrap.Config{
//	    RetriableErrors: txwrap.Kinds(txwrap.KindSerializationFailure),
//	    RescuedErrors:   txwrap.Kinds(txwrap.KindRecordNotFound),
//	}, func(ctx context.Context, isRetry bool) error {
//	    return account.Save(ctx)
//	})
//
// # Outcomes
//
// Every call ends in exactly one of: a successful Result, a failing Result that
// describes a recorded failure, or a returned error (configuration errors,
// reraisable kinds, and kinds no list mentions).
package txwrap

package services

import (
	"context"

	"github.com/vvka-141/txwrap/pkg/txwrap"
)

type txKey struct{}

// fakeTransactor tracks transactions through the context, the way a real
// connection-bound resource would.
type fakeTransactor struct {
	calls     []txwrap.TxOptions
	beginErrs []error
	commits   int
	rollbacks int
}

func (f *fakeTransactor) TransactionOpen(ctx context.Context) bool {
	return ctx.Value(txKey{}) == f
}

func (f *fakeTransactor) Transaction(ctx context.Context, opts txwrap.TxOptions, fn func(ctx context.Context) error) error {
	f.calls = append(f.calls, opts)
	if n := len(f.calls); n <= len(f.beginErrs) && f.beginErrs[n-1] != nil {
		return f.beginErrs[n-1]
	}
	if err := fn(context.WithValue(ctx, txKey{}, f)); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type account struct {
	errs txwrap.RecordErrors
}

func (a *account) Errors() txwrap.ErrorCollection { return &a.errs }

// lockableAccount locks by opening a transaction on its own resource.
type lockableAccount struct {
	account
	resource *fakeTransactor
	locks    int
}

func (a *lockableAccount) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	a.locks++
	return a.resource.Transaction(ctx, txwrap.TxOptions{}, fn)
}

func (a *lockableAccount) Transactor() txwrap.Transactor { return a.resource }

func (a *lockableAccount) EntityName() string { return "Account" }

// scopedAccount is bound to a resource other than the service's.
type scopedAccount struct {
	account
	resource txwrap.Transactor
}

func (a *scopedAccount) Transactor() txwrap.Transactor { return a.resource }

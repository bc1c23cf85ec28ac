package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/txwrap/internal/logging"
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

var (
	deadlock  = &pgconn.PgError{Severity: "ERROR", Code: txwrap.PgCodeDeadlockDetected, Message: "deadlock detected"}
	transient = &pgconn.PgError{Severity: "FATAL", Code: "57P01", Message: "terminating connection due to administrator command"}
)

func newService(t *testing.T) (*TransactionService, *fakeTransactor, *logging.RecordingLogger) {
	t.Helper()
	resource := &fakeTransactor{}
	logger := logging.NewRecordingLogger()
	return NewTransactionService("Account", resource, logger), resource, logger
}

// workRecorder records each call's isRetry flag and fails with errs in order.
type workRecorder struct {
	retries []bool
	errs    []error
}

func (w *workRecorder) work(ctx context.Context, isRetry bool) error {
	w.retries = append(w.retries, isRetry)
	if n := len(w.retries); n <= len(w.errs) {
		return w.errs[n-1]
	}
	return nil
}

func failing(err error, times int) *workRecorder {
	errs := make([]error, times)
	for i := range errs {
		errs[i] = err
	}
	return &workRecorder{errs: errs}
}

func TestNewTransactionService(t *testing.T) {
	assert.Panics(t, func() { NewTransactionService("Account", nil, nil) })

	svc := NewTransactionService("", &fakeTransactor{}, nil)
	assert.Equal(t, txwrap.DefaultName, svc.Name())
	assert.NotNil(t, svc.logger)
}

func TestTransactionService_WithLogger(t *testing.T) {
	svc, _, original := newService(t)
	replacement := logging.NewRecordingLogger()

	scoped := svc.WithLogger(replacement)
	_, err := scoped.TransactionWrapper(context.Background(), nil,
		txwrap.Config{RetriableErrors: txwrap.Kinds(txwrap.KindDeadlock)}, failing(deadlock, 1).work)

	require.NoError(t, err)
	assert.Len(t, replacement.Entries(), 1)
	assert.Empty(t, original.Entries())
	assert.Same(t, original, svc.logger)
}

func TestTransactionWrapper_Success(t *testing.T) {
	svc, resource, logger := newService(t)
	w := &workRecorder{}

	res, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{}, w.work)

	require.NoError(t, err)
	assert.Equal(t, txwrap.NewSuccess(txwrap.Inside, false, 1), res)
	assert.Equal(t, []bool{false}, w.retries)
	assert.Len(t, resource.calls, 1)
	assert.Equal(t, 1, resource.commits)
	assert.Empty(t, logger.Entries())
}

func TestTransactionWrapper_RetriableExhaustion(t *testing.T) {
	svc, resource, logger := newService(t)
	w := failing(deadlock, 5)

	res, err := svc.TransactionWrapper(context.Background(), nil,
		txwrap.Config{RetriableErrors: txwrap.Kinds(txwrap.KindDeadlock)}, w.work)

	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, txwrap.Inside, res.Context)
	assert.False(t, res.Nested)
	assert.Equal(t, 2, res.Attempt)
	assert.Equal(t, txwrap.FailureRetriable, res.FailureKind)
	assert.Equal(t, []bool{false, true}, w.retries)
	assert.Len(t, resource.calls, 1, "inside retries stay in the same transaction")
	assert.Equal(t, []string{
		"[Account.transaction_wrapper] Deadlocked: ERROR: deadlock detected (SQLSTATE 40P01) [inside][1]",
		"[Account.transaction_wrapper] Deadlocked: ERROR: deadlock detected (SQLSTATE 40P01) [inside][2]",
	}, logger.Messages(logging.LevelError))
}

func TestTransactionWrapper_NumRetryAttempts(t *testing.T) {
	svc, _, _ := newService(t)
	w := failing(deadlock, 10)

	res, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{
		RetriableErrors:  txwrap.Kinds(txwrap.KindDeadlock),
		NumRetryAttempts: 4,
	}, w.work)

	require.NoError(t, err)
	assert.Equal(t, 4, res.Attempt)
	assert.Len(t, w.retries, 4)
}

func TestTransactionWrapper_LockWithoutTarget(t *testing.T) {
	svc, resource, logger := newService(t)
	w := &workRecorder{}

	res, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{Lock: true}, w.work)

	require.Error(t, err)
	assert.Equal(t, "No object to lock!", err.Error())
	assert.ErrorIs(t, err, txwrap.ErrNoObjectToLock)
	assert.ErrorIs(t, err, txwrap.ErrInvalidConfig)
	assert.Equal(t, txwrap.Result{}, res)
	assert.Empty(t, w.retries)
	assert.Empty(t, resource.calls)
	assert.Empty(t, logger.Entries())
}

func TestTransactionWrapper_ReraisableBeatsRetriable(t *testing.T) {
	svc, resource, logger := newService(t)
	w := failing(deadlock, 5)

	_, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{
		ReraisableErrors: txwrap.Kinds(txwrap.KindDeadlock),
		RetriableErrors:  txwrap.Kinds(txwrap.KindDeadlock),
	}, w.work)

	assert.ErrorIs(t, err, deadlock)
	assert.Len(t, w.retries, 1)
	assert.Equal(t, 1, resource.rollbacks)
	assert.Equal(t, []string{
		"[Account.transaction_wrapper] Deadlocked: ERROR: deadlock detected (SQLSTATE 40P01) [inside re-raising!][1]",
	}, logger.Messages(logging.LevelError))
}

func TestTransactionWrapper_DisallowedInsideRescue(t *testing.T) {
	svc, resource, _ := newService(t)
	w := &workRecorder{}

	_, err := svc.TransactionWrapper(context.Background(), nil,
		txwrap.Config{RescuedErrors: txwrap.Kinds(txwrap.KindRecordNotUnique)}, w.work)

	var cfgErr *txwrap.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"RecordNotUnique"}, cfgErr.Kinds)
	assert.Equal(t, []string{txwrap.KeyRescuedErrors}, cfgErr.Keys)
	assert.Contains(t, err.Error(), "RecordNotUnique")
	assert.Contains(t, err.Error(), txwrap.KeyRescuedErrors)
	assert.Empty(t, resource.calls, "rejected before any transaction begins")
	assert.Empty(t, w.retries)
}

func TestTransactionWrapper_UnclassifiedErrorPropagates(t *testing.T) {
	svc, resource, logger := newService(t)
	cause := errors.New("disk on fire")

	_, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{}, failing(cause, 1).work)

	assert.Same(t, cause, err)
	assert.Equal(t, 1, resource.rollbacks)
	assert.Empty(t, logger.Entries())
}

func TestTransactionWrapper_NeedsPreparationRecordsOnTarget(t *testing.T) {
	svc, resource, logger := newService(t)
	target := &account{}
	cfg := txwrap.Config{RescuedErrors: txwrap.Kinds(txwrap.KindRecordNotFound)}

	res, err := svc.TransactionWrapper(context.Background(), target, cfg, failing(pgx.ErrNoRows, 1).work)
	require.NoError(t, err)
	assert.Equal(t, txwrap.FailureNeedsPreparation, res.FailureKind)
	assert.Equal(t, "RecordNotFound", res.ErrorType)

	_, err = svc.TransactionWrapper(context.Background(), target, cfg,
		failing(errors.Join(errors.New("second lookup"), pgx.ErrNoRows), 1).work)
	require.NoError(t, err)

	assert.Equal(t, []string{"no rows in result set", "second lookup\nno rows in result set"},
		target.errs.On(txwrap.BaseErrorKey))
	assert.Equal(t, 2, resource.commits, "a rescued inside failure leaves the transaction to commit")
	assert.Equal(t, "[Account.transaction_wrapper] On account RecordNotFound: no rows in result set [inside][1]",
		logger.Messages(logging.LevelError)[0])
}

func TestTransactionWrapper_AlreadyPreparedInside(t *testing.T) {
	svc, _, logger := newService(t)
	target := &account{}

	res, err := svc.TransactionWrapper(context.Background(), target, txwrap.Config{
		RescuedErrors:  txwrap.Kinds(txwrap.KindRecordNotFound),
		PreparedErrors: txwrap.Kinds(txwrap.KindRecordNotFound),
	}, func(ctx context.Context, isRetry bool) error {
		target.Errors().Add("owner", "must exist")
		return pgx.ErrNoRows
	})

	require.NoError(t, err)
	assert.Equal(t, txwrap.FailureAlreadyPrepared, res.FailureKind)
	assert.Equal(t, 1, target.errs.Len())
	assert.Equal(t, []string{
		"[Account.transaction_wrapper] RecordNotFound: no rows in result set [inside][1]",
	}, logger.Messages(logging.LevelError))
}

func TestTransactionWrapper_OutsideValidationErrorRescuedByDefault(t *testing.T) {
	svc, resource, _ := newService(t)
	resource.beginErrs = []error{txwrap.NewValidationError("balance must be positive")}
	w := &workRecorder{}

	res, err := svc.TransactionWrapper(context.Background(), &account{}, txwrap.Config{}, w.work)

	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, txwrap.Outside, res.Context)
	assert.Equal(t, txwrap.FailureAlreadyPrepared, res.FailureKind)
	assert.Equal(t, "RecordInvalid", res.ErrorType)
	assert.Empty(t, w.retries)
}

func TestTransactionWrapper_RecordInvalidInsideRollsBackAndResolvesOutside(t *testing.T) {
	svc, resource, logger := newService(t)
	target := &lockableAccount{resource: resource}
	attempts := 0

	res, err := svc.TransactionWrapper(context.Background(), target, txwrap.Config{},
		func(ctx context.Context, isRetry bool) error {
			attempts++
			return txwrap.RecordInvalid(target, "name", "can't be blank")
		})

	require.NoError(t, err)
	assert.False(t, res.Succeeded)
	assert.Equal(t, txwrap.Outside, res.Context)
	assert.False(t, res.Nested)
	assert.Equal(t, 1, res.Attempt)
	assert.Equal(t, txwrap.FailureAlreadyPrepared, res.FailureKind)
	assert.Equal(t, "RecordInvalid", res.ErrorType)
	assert.Equal(t, "Validation failed: can't be blank", res.ErrorMessage)
	assert.Equal(t, 1, attempts)

	assert.Equal(t, 1, resource.rollbacks)
	assert.Equal(t, 0, resource.commits)

	assert.Equal(t, []txwrap.ErrorEntry{{Key: "name", Message: "can't be blank"}}, target.errs.All())
	assert.Empty(t, target.errs.On(txwrap.BaseErrorKey))
	assert.Equal(t, []string{
		"[Account.transaction_wrapper] RecordInvalid: Validation failed: can't be blank [outside][1]",
	}, logger.Messages(logging.LevelError))
}

func TestTransactionWrapper_OutsideRetryPropagatesIsRetry(t *testing.T) {
	svc, resource, logger := newService(t)
	resource.beginErrs = []error{transient}
	w := &workRecorder{}

	res, err := svc.TransactionWrapper(context.Background(), nil,
		txwrap.Config{OutsideRetriableErrors: txwrap.Kinds(txwrap.KindTransient)}, w.work)

	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, txwrap.Inside, res.Context, "the inside Result passes through the outside context")
	assert.Equal(t, 1, res.Attempt)
	assert.Equal(t, []bool{true}, w.retries)
	assert.Len(t, resource.calls, 2)
	assert.Equal(t, []string{
		"[Account.transaction_wrapper] Transient: FATAL: terminating connection due to administrator command (SQLSTATE 57P01) [outside][1]",
	}, logger.Messages(logging.LevelError))
}

func TestTransactionWrapper_OutsideRetriableExhaustion(t *testing.T) {
	svc, resource, _ := newService(t)
	resource.beginErrs = []error{transient, transient, transient}

	res, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{
		OutsideRetriableErrors:  txwrap.Kinds(txwrap.KindTransient),
		OutsideNumRetryAttempts: 3,
	}, (&workRecorder{}).work)

	require.NoError(t, err)
	assert.Equal(t, txwrap.Outside, res.Context)
	assert.Equal(t, 3, res.Attempt)
	assert.Equal(t, txwrap.FailureRetriable, res.FailureKind)
}

func TestTransactionWrapper_OutsideReraise(t *testing.T) {
	svc, resource, logger := newService(t)
	resource.beginErrs = []error{transient}

	_, err := svc.TransactionWrapper(context.Background(), nil,
		txwrap.Config{OutsideReraisableErrors: txwrap.Kinds(txwrap.KindTransient)}, (&workRecorder{}).work)

	assert.ErrorIs(t, err, transient)
	assert.Len(t, logger.Messages(logging.LevelError), 1)
	assert.Contains(t, logger.Messages(logging.LevelError)[0], "[outside re-raising!][1]")
}

func TestTransactionWrapper_NestedForcesRequiresNew(t *testing.T) {
	svc, resource, logger := newService(t)
	var inner txwrap.Result

	outer, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{},
		func(ctx context.Context, isRetry bool) error {
			var err error
			inner, err = svc.TransactionWrapper(ctx, nil, txwrap.Config{}, (&workRecorder{}).work)
			return err
		})

	require.NoError(t, err)
	assert.False(t, outer.Nested)
	assert.True(t, inner.Nested)
	require.Len(t, resource.calls, 2)
	assert.False(t, resource.calls[0].RequiresNew)
	assert.True(t, resource.calls[1].RequiresNew)
	assert.Equal(t, []string{
		"[Account.transaction_wrapper] Opening a nested transaction. Setting requires_new: true",
	}, logger.Messages(logging.LevelWarn))
	assert.Empty(t, logger.Messages(logging.LevelVerbose))
}

func TestTransactionWrapper_NestedWithRequiresNew(t *testing.T) {
	svc, resource, logger := newService(t)

	_, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{},
		func(ctx context.Context, isRetry bool) error {
			_, err := svc.TransactionWrapper(ctx, nil, txwrap.Config{RequiresNew: true}, (&workRecorder{}).work)
			return err
		})

	require.NoError(t, err)
	assert.True(t, resource.calls[1].RequiresNew)
	assert.Empty(t, logger.Messages(logging.LevelWarn))
	assert.Equal(t, []string{
		"[Account.transaction_wrapper] Will start a nested transaction.",
	}, logger.Messages(logging.LevelVerbose))
}

func TestTransactionWrapper_NestedFailureIsTagged(t *testing.T) {
	svc, _, logger := newService(t)
	var inner txwrap.Result

	_, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{},
		func(ctx context.Context, isRetry bool) error {
			var err error
			inner, err = svc.TransactionWrapper(ctx, nil,
				txwrap.Config{RetriableErrors: txwrap.Kinds(txwrap.KindDeadlock), NumRetryAttempts: 1},
				failing(deadlock, 1).work)
			return err
		})

	require.NoError(t, err)
	assert.True(t, inner.Nested)
	assert.Equal(t, txwrap.FailureRetriable, inner.FailureKind)
	assert.Contains(t, logger.Messages(logging.LevelError)[0], "[nested inside][1]")
}

func TestTransactionWrapper_TxOptionsPassedThrough(t *testing.T) {
	svc, resource, _ := newService(t)
	joinable := false

	_, err := svc.TransactionWrapper(context.Background(), nil, txwrap.Config{
		Isolation: txwrap.IsolationSerializable,
		Joinable:  &joinable,
	}, (&workRecorder{}).work)

	require.NoError(t, err)
	require.Len(t, resource.calls, 1)
	assert.Equal(t, txwrap.IsolationSerializable, resource.calls[0].Isolation)
	assert.Same(t, &joinable, resource.calls[0].Joinable)
}

func TestTransactionWrapper_LockUsesTarget(t *testing.T) {
	svc, resource, _ := newService(t)
	target := &lockableAccount{resource: &fakeTransactor{}}
	w := &workRecorder{}

	res, err := svc.TransactionWrapper(context.Background(), target, txwrap.Config{Lock: true}, w.work)

	require.NoError(t, err)
	assert.True(t, res.Succeeded)
	assert.Equal(t, 1, target.locks)
	assert.Len(t, w.retries, 1)
	assert.Empty(t, resource.calls)
	assert.Len(t, target.resource.calls, 1)
}

func TestTransactionWrapper_LockOnUnlockableTarget(t *testing.T) {
	svc, resource, _ := newService(t)

	_, err := svc.TransactionWrapper(context.Background(), &account{}, txwrap.Config{Lock: true}, (&workRecorder{}).work)

	assert.ErrorIs(t, err, txwrap.ErrNotLockable)
	assert.ErrorIs(t, err, txwrap.ErrInvalidConfig)
	assert.Equal(t, "account cannot be locked", err.Error())
	assert.Empty(t, resource.calls)
}

func TestTransactionWrapper_TargetWithoutLockUsesTransaction(t *testing.T) {
	svc, resource, _ := newService(t)
	target := &lockableAccount{resource: resource}

	_, err := svc.TransactionWrapper(context.Background(), target, txwrap.Config{}, (&workRecorder{}).work)

	require.NoError(t, err)
	assert.Zero(t, target.locks)
	assert.Len(t, resource.calls, 1)
}

func TestTransactionWrapper_ResourceScopedTarget(t *testing.T) {
	svc, resource, logger := newService(t)
	own := &fakeTransactor{}
	target := &scopedAccount{resource: own}

	// A transaction open on the service's resource does not make the target's call nested.
	err := resource.Transaction(context.Background(), txwrap.TxOptions{}, func(ctx context.Context) error {
		res, err := svc.TransactionWrapper(ctx, target, txwrap.Config{}, (&workRecorder{}).work)
		assert.False(t, res.Nested)
		return err
	})

	require.NoError(t, err)
	assert.Len(t, own.calls, 1)
	assert.Len(t, resource.calls, 1)
	assert.Empty(t, logger.Messages(logging.LevelWarn))
}

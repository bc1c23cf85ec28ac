package txwrap

import (
	"fmt"
	"sort"
	"strings"
)

// TransactionContext labels the layer that resolved a Result.
type TransactionContext string

const (
	// Inside is the work performed while the transaction (or lock) is open.
	Inside TransactionContext = "inside"
	// Outside is the acquisition of the transaction (or lock) itself.
	Outside TransactionContext = "outside"
)

// FailureKind records which rescue path produced a failing Result.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRetriable
	FailureAlreadyPrepared
	FailureNeedsPreparation
)

// String returns the diagnostic name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureRetriable:
		return "retriable"
	case FailureAlreadyPrepared:
		return "already_added"
	case FailureNeedsPreparation:
		return "needing_added"
	default:
		return ""
	}
}

// Result summarizes how a wrapped unit of work ended.
// It is created once, when an executor resolves, and handed out by value.
type Result struct {
	Succeeded    bool
	Context      TransactionContext
	Nested       bool
	Attempt      int
	FailureKind  FailureKind
	ErrorType    string
	ErrorMessage string

	// Err is the error that caused a failing Result, kept so callers can use errors.Is/As.
	Err error
}

// NewSuccess creates a successful Result.
func NewSuccess(tc TransactionContext, nested bool, attempt int) Result {
	return Result{
		Succeeded: true,
		Context:   tc,
		Nested:    nested,
		Attempt:   attempt,
	}
}

// NewFailure creates a failing Result for err, which was matched as errorType.
func NewFailure(tc TransactionContext, nested bool, attempt int, kind FailureKind, errorType string, err error) Result {
	r := Result{
		Context:     tc,
		Nested:      nested,
		Attempt:     attempt,
		FailureKind: kind,
		ErrorType:   errorType,
		Err:         err,
	}
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	return r
}

// Success reports whether the work completed without a rescued error.
func (r Result) Success() bool {
	return r.Succeeded
}

// Fail reports whether the Result describes a rescued failure.
func (r Result) Fail() bool {
	return !r.Succeeded
}

// Outcome returns "success" or "fail".
func (r Result) Outcome() string {
	if r.Succeeded {
		return "success"
	}
	return "fail"
}

// Map returns the diagnostic fields of the Result.
// The error and message entries are omitted when skipError is true or there is no error.
func (r Result) Map(skipError bool) map[string]any {
	m := map[string]any{
		"result":  r.Outcome(),
		"type":    r.FailureKind.String(),
		"context": string(r.Context),
		"nested":  r.Nested,
		"attempt": r.Attempt,
	}
	if !skipError && r.ErrorType != "" {
		m["error"] = r.ErrorType
		m["message"] = r.ErrorMessage
	}
	return m
}

// String renders the diagnostic fields in a stable key order.
func (r Result) String() string {
	m := r.Map(false)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

package txwrap

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	_, err := w.TransactionWrapper(ctx, nil, cfg, work)
//	if errors.Is(err, txwrap.ErrInvalidConfig) {
//	    // Fix the configuration, nothing was executed
//	}
var (
	// ErrInvalidConfig indicates the wrapper configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoObjectToLock indicates a lock was requested without a target.
	ErrNoObjectToLock = errors.New("no object to lock")

	// ErrNotLockable indicates a lock was requested on a target that cannot be locked.
	ErrNotLockable = errors.New("target cannot be locked")

	// ErrExecutionFailed indicates the work resolved to a failing Result.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrConnectionFailed indicates database connection failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrUsage indicates the command line was malformed.
	ErrUsage = errors.New("usage error")
)

// ConfigError is a configuration problem detected before, or at the point of,
// acquiring a transaction. It always satisfies errors.Is(err, ErrInvalidConfig).
type ConfigError struct {
	// Keys names the configuration keys involved, if any.
	Keys []string
	// Kinds names the error kinds involved, if any.
	Kinds []string

	msg    string
	reason error
}

func (e *ConfigError) Error() string {
	return e.msg
}

// Is matches ErrInvalidConfig and the specific reason, if any.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig || (e.reason != nil && target == e.reason)
}

// UnknownKeysError reports configuration keys owner does not recognize.
func UnknownKeysError(owner string, keys []string) *ConfigError {
	return &ConfigError{
		Keys: keys,
		msg:  fmt.Sprintf("%s does not know how to handle arguments: %s", owner, bracket(keys)),
	}
}

// DisallowedKindsError reports kinds that must not be rescued inside a transaction,
// and the keys they were found under.
func DisallowedKindsError(owner string, kinds, keys []string) *ConfigError {
	return &ConfigError{
		Keys:  keys,
		Kinds: kinds,
		msg: fmt.Sprintf("%s should not rescue %s inside a transaction: %s",
			owner, bracket(kinds), bracket(keys)),
	}
}

// ConflictingKeysError reports alias keys that were set together.
func ConflictingKeysError(owner string, keys ...string) *ConfigError {
	return &ConfigError{
		Keys: keys,
		msg:  fmt.Sprintf("%s cannot take both of %s, they are aliases", owner, bracket(keys)),
	}
}

// NoObjectToLockError reports a lock request without a target.
func NoObjectToLockError() *ConfigError {
	return &ConfigError{msg: "No object to lock!", reason: ErrNoObjectToLock}
}

// NotLockableError reports a lock request on a target without a WithLock method.
func NotLockableError(entity string) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf("%s cannot be locked", entity), reason: ErrNotLockable}
}

func bracket(items []string) string {
	return "[" + strings.Join(items, ", ") + "]"
}

// ValidationError reports that a record failed validation.
// It is the error matched by KindRecordInvalid.
type ValidationError struct {
	Messages []string
}

// NewValidationError creates a ValidationError with the given messages.
func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "Validation failed"
	}
	return "Validation failed: " + strings.Join(e.Messages, ", ")
}

// RecordInvalid adds messages under key to the target's errors and returns the
// matching ValidationError. The failure is then already prepared on the target.
func RecordInvalid(target Target, key string, messages ...string) *ValidationError {
	if target != nil {
		for _, msg := range messages {
			target.Errors().Add(key, msg)
		}
	}
	return NewValidationError(messages...)
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrUsage):
		return ExitUsageError
	case errors.Is(err, ErrInvalidConfig):
		return ExitConfigError
	case errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrExecutionFailed):
		return ExitExecutionFailed
	}

	// Connection failures reported before a sentinel could be attached
	errStr := err.Error()
	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}

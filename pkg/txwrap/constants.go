package txwrap

// Exit codes for semantic error classification.
const (
	ExitSuccess         = 0  // Work completed and the transaction committed
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid wrapper configuration
	ExitConnectionError = 11 // Failed to connect to database
	ExitExecutionFailed = 13 // Work resolved to a failing Result
)

const (
	// DefaultNumRetryAttempts bounds the attempts of each context when the
	// configuration does not override it.
	DefaultNumRetryAttempts = 2

	// BaseErrorKey is the key under which the wrapper records a failure on the target.
	BaseErrorKey = "base"

	// DefaultName prefixes log lines when no owner name is configured.
	DefaultName = "txwrap"
)

// Recognized configuration keys.
const (
	KeyRescuedErrors           = "rescued_errors"
	KeyPreparedErrors          = "prepared_errors"
	KeyRetriableErrors         = "retriable_errors"
	KeyReraisableErrors        = "reraisable_errors"
	KeyNumRetryAttempts        = "num_retry_attempts"
	KeyOutsideRescuedErrors    = "outside_rescued_errors"
	KeyOutsidePreparedErrors   = "outside_prepared_errors"
	KeyOutsideRetriableErrors  = "outside_retriable_errors"
	KeyOutsideReraisableErrors = "outside_reraisable_errors"
	KeyOutsideNumRetryAttempts = "outside_num_retry_attempts"
	KeyLock                    = "lock"
	KeyRequiresNew             = "requires_new"
	KeyForceNew                = "forceNew"
	KeyIsolation               = "isolation"
	KeyJoinable                = "joinable"
)

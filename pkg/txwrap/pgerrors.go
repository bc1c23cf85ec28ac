package txwrap

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes used by the built-in kinds.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	PgCodeUniqueViolation     = "23505"
	PgCodeForeignKeyViolation = "23503"

	// Class 40 - Transaction Rollback
	PgCodeSerializationFailure = "40001"
	PgCodeDeadlockDetected     = "40P01"

	// Class 55 - Object Not In Prerequisite State
	PgCodeLockNotAvailable = "55P03"
)

// PostgreSQL kinds.
var (
	// KindStatementInvalid matches any error reported by the server.
	KindStatementInvalid = NewKind("StatementInvalid", func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr)
	})

	KindRecordNotUnique      = KindPgCode("RecordNotUnique", PgCodeUniqueViolation)
	KindForeignKeyViolation  = KindPgCode("InvalidForeignKey", PgCodeForeignKeyViolation)
	KindSerializationFailure = KindPgCode("SerializationFailure", PgCodeSerializationFailure)
	KindDeadlock             = KindPgCode("Deadlocked", PgCodeDeadlockDetected)
	KindLockNotAvailable     = KindPgCode("LockWaitTimeout", PgCodeLockNotAvailable)

	// KindTransient matches server and network conditions that usually clear on their own.
	KindTransient = NewKind("Transient", IsTransient)
)

// KindPgCode matches server errors carrying one of the given SQLSTATE codes.
func KindPgCode(name string, codes ...string) ErrorKind {
	return NewKind(name, func(err error) bool {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) {
			return false
		}
		for _, code := range codes {
			if pgErr.Code == code {
				return true
			}
		}
		return false
	})
}

// IsTransient determines if an error is temporary and the work worth repeating.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPgCode(pgErr.Code)
	}

	if isNetworkError(err) {
		return true
	}

	return isConnectionError(err)
}

func isTransientPgCode(code string) bool {
	// Class 08 - Connection Exception
	// Class 53 - Insufficient Resources
	// Class 57 - Operator Intervention (admin shutdown, crash shutdown, etc.)
	for _, class := range []string{"08", "53", "57"} {
		if strings.HasPrefix(code, class) {
			return true
		}
	}

	switch code {
	case PgCodeSerializationFailure,
		PgCodeDeadlockDetected,
		PgCodeLockNotAvailable:
		return true
	}

	return false
}

func isNetworkError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() || dnsErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return true
		}
		if opErr.Err != nil {
			for _, errno := range []syscall.Errno{
				syscall.ECONNREFUSED,
				syscall.ECONNRESET,
				syscall.ENETUNREACH,
				syscall.EHOSTUNREACH,
			} {
				if errors.Is(opErr.Err, errno) {
					return true
				}
			}
		}
	}

	return false
}

func isConnectionError(err error) bool {
	msg := strings.ToLower(err.Error())

	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"connection failure",
		"network is unreachable",
		"i/o timeout",
		"broken pipe",
		"server closed the connection",
		"unexpected eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}

	return false
}

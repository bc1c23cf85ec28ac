package txwrap

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/jackc/pgx/v5"
)

// ErrorKind is a named matcher for a family of errors.
// Two kinds are the same kind when their names are equal.
type ErrorKind struct {
	name  string
	match func(error) bool
}

// NewKind creates an ErrorKind from a predicate.
func NewKind(name string, match func(error) bool) ErrorKind {
	return ErrorKind{name: name, match: match}
}

// KindOf matches any error in the chain whose type is T.
// The kind is named after T, e.g. "*txwrap.ValidationError".
func KindOf[T error]() ErrorKind {
	name := reflect.TypeOf((*T)(nil)).Elem().String()
	return ErrorKind{
		name: name,
		match: func(err error) bool {
			var target T
			return errors.As(err, &target)
		},
	}
}

// KindIs matches any error in the chain that is target.
func KindIs(name string, target error) ErrorKind {
	return ErrorKind{
		name: name,
		match: func(err error) bool {
			return errors.Is(err, target)
		},
	}
}

// Name returns the kind's name.
func (k ErrorKind) Name() string {
	return k.name
}

// Matches reports whether err belongs to this kind.
func (k ErrorKind) Matches(err error) bool {
	if err == nil || k.match == nil {
		return false
	}
	return k.match(err)
}

func (k ErrorKind) String() string {
	return k.name
}

// KindList is an ordered set of error kinds.
type KindList []ErrorKind

// Kinds builds a KindList.
func Kinds(kinds ...ErrorKind) KindList {
	return KindList(kinds)
}

// Contains reports whether a kind with the same name is in the list.
func (l KindList) Contains(kind ErrorKind) bool {
	for _, k := range l {
		if k.name == kind.name {
			return true
		}
	}
	return false
}

// Match returns the first kind in the list that matches err.
func (l KindList) Match(err error) (ErrorKind, bool) {
	if err == nil {
		return ErrorKind{}, false
	}
	for _, k := range l {
		if k.Matches(err) {
			return k, true
		}
	}
	return ErrorKind{}, false
}

// Union returns the kinds of l followed by the kinds of other not already present.
func (l KindList) Union(other KindList) KindList {
	out := make(KindList, 0, len(l)+len(other))
	for _, k := range l {
		if !out.Contains(k) {
			out = append(out, k)
		}
	}
	for _, k := range other {
		if !out.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Names returns the kind names in list order.
func (l KindList) Names() []string {
	names := make([]string, len(l))
	for i, k := range l {
		names[i] = k.name
	}
	return names
}

// Built-in kinds.
var (
	// KindRecordInvalid matches validation failures. Raising code is expected to have
	// recorded the messages on the target already, see RecordInvalid.
	KindRecordInvalid = NewKind("RecordInvalid", func(err error) bool {
		var v *ValidationError
		return errors.As(err, &v)
	})

	// KindRecordNotFound matches pgx.ErrNoRows.
	KindRecordNotFound = KindIs("RecordNotFound", pgx.ErrNoRows)

	// KindCanceled matches context cancellation.
	KindCanceled = KindIs("Canceled", context.Canceled)

	// KindDeadlineExceeded matches context deadline expiry.
	KindDeadlineExceeded = KindIs("DeadlineExceeded", context.DeadlineExceeded)
)

// DisallowedInsideTransaction lists the kinds that invalidate a PostgreSQL
// transaction once raised. Rescuing them inside the transaction would leave
// every following statement failing.
var DisallowedInsideTransaction = Kinds(
	KindRecordInvalid,
	KindStatementInvalid,
	KindRecordNotUnique,
)

// KindRegistry resolves kind names, as found in configuration files and flags.
type KindRegistry map[string]ErrorKind

// DefaultKinds returns a registry holding every built-in kind.
func DefaultKinds() KindRegistry {
	r := KindRegistry{}
	r.Register(
		KindRecordInvalid,
		KindRecordNotFound,
		KindCanceled,
		KindDeadlineExceeded,
		KindStatementInvalid,
		KindRecordNotUnique,
		KindForeignKeyViolation,
		KindSerializationFailure,
		KindDeadlock,
		KindLockNotAvailable,
		KindTransient,
	)
	return r
}

// Register adds kinds to the registry, replacing kinds with the same name.
func (r KindRegistry) Register(kinds ...ErrorKind) {
	for _, k := range kinds {
		r[k.name] = k
	}
}

// Lookup returns the kind registered under name.
func (r KindRegistry) Lookup(name string) (ErrorKind, bool) {
	k, ok := r[name]
	return k, ok
}

// Resolve maps names to kinds, failing on the first unknown name.
func (r KindRegistry) Resolve(names []string) (KindList, error) {
	out := make(KindList, 0, len(names))
	for _, name := range names {
		k, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown error kind %q: %w", name, ErrInvalidConfig)
		}
		out = append(out, k)
	}
	return out, nil
}

// Names returns the registered kind names, sorted.
func (r KindRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

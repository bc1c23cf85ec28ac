package retry

import (
	"reflect"

	"github.com/vvka-141/txwrap/pkg/txwrap"
)

type entry struct {
	kind      string
	err       error
	context   txwrap.TransactionContext
	nested    bool
	reraising bool
	attempt   int
	target    txwrap.Target
}

type reporter struct {
	owner  string
	logger txwrap.Logger
}

// report writes one error line:
//
//	[Owner.transaction_wrapper] On Entity Kind: message [nested inside re-raising!][1]
func (r reporter) report(e entry) {
	tag := " ["
	if e.nested {
		tag += "nested "
	}
	tag += string(e.context)
	if e.reraising {
		tag += " re-raising!"
	}
	tag += "]"

	if e.target == nil {
		r.logger.Error("[%s.transaction_wrapper] %s: %s%s[%d]",
			r.owner, e.kind, e.err.Error(), tag, e.attempt)
		return
	}
	r.logger.Error("[%s.transaction_wrapper] On %s %s: %s%s[%d]",
		r.owner, EntityName(e.target), e.kind, e.err.Error(), tag, e.attempt)
}

// EntityName returns the name used for target in log lines: its EntityName if it
// has one, otherwise its type name without the pointer.
func EntityName(target txwrap.Target) string {
	if named, ok := target.(txwrap.Named); ok {
		return named.EntityName()
	}
	t := reflect.TypeOf(target)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}

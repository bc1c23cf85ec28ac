package retry

import (
	"github.com/vvka-141/txwrap/pkg/txwrap"
)

// Class is the dispatch decision for a raised error.
type Class int

const (
	Unclassified Class = iota
	Reraise
	Retry
	AlreadyPrepared
	NeedsPreparation
)

func (c Class) String() string {
	switch c {
	case Reraise:
		return "reraise"
	case Retry:
		return "retry"
	case AlreadyPrepared:
		return "already_prepared"
	case NeedsPreparation:
		return "needs_preparation"
	default:
		return "unclassified"
	}
}

// Lists are the error-kind lists configured for one context.
type Lists struct {
	Rescued    txwrap.KindList
	Prepared   txwrap.KindList
	Retriable  txwrap.KindList
	Reraisable txwrap.KindList
}

// Built-in defaults merged into the configured lists.
var (
	InsideDefaults  = Lists{}
	OutsideDefaults = Lists{
		Rescued:  txwrap.Kinds(txwrap.KindRecordInvalid),
		Prepared: txwrap.Kinds(txwrap.KindRecordInvalid),
	}
)

// Policy is the per-context dispatch table, in precedence order.
type Policy struct {
	Reraisable       txwrap.KindList
	Retriable        txwrap.KindList
	AlreadyPrepared  txwrap.KindList
	NeedsPreparation txwrap.KindList
}

// ErrorClassifier dispatches raised errors according to a Policy.
type ErrorClassifier struct {
	policy Policy
}

// NewErrorClassifier merges configured lists with defaults and partitions the
// rescued kinds: a rescued kind that is also prepared is already prepared,
// every other rescued kind needs preparation.
func NewErrorClassifier(configured, defaults Lists) *ErrorClassifier {
	rescued := configured.Rescued.Union(defaults.Rescued)
	prepared := configured.Prepared.Union(defaults.Prepared)

	var already, needing txwrap.KindList
	for _, k := range rescued {
		if prepared.Contains(k) {
			already = append(already, k)
		} else {
			needing = append(needing, k)
		}
	}

	return &ErrorClassifier{
		policy: Policy{
			Reraisable:       configured.Reraisable,
			Retriable:        configured.Retriable,
			AlreadyPrepared:  already,
			NeedsPreparation: needing,
		},
	}
}

// Policy returns the dispatch table.
func (c *ErrorClassifier) Policy() Policy {
	return c.policy
}

// Classify returns the class of err and the kind that matched it.
func (c *ErrorClassifier) Classify(err error) (Class, txwrap.ErrorKind) {
	if err == nil {
		return Unclassified, txwrap.ErrorKind{}
	}
	if k, ok := c.policy.Reraisable.Match(err); ok {
		return Reraise, k
	}
	if k, ok := c.policy.Retriable.Match(err); ok {
		return Retry, k
	}
	if k, ok := c.policy.AlreadyPrepared.Match(err); ok {
		return AlreadyPrepared, k
	}
	if k, ok := c.policy.NeedsPreparation.Match(err); ok {
		return NeedsPreparation, k
	}
	return Unclassified, txwrap.ErrorKind{}
}

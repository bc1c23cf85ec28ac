package txwrap

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Config holds every option a TransactionWrapper call accepts.
// The plain fields configure the inside context, the Outside* fields the outside one.
type Config struct {
	RescuedErrors    KindList
	PreparedErrors   KindList
	RetriableErrors  KindList
	ReraisableErrors KindList
	// NumRetryAttempts bounds inside attempts; zero means DefaultNumRetryAttempts.
	NumRetryAttempts int

	OutsideRescuedErrors    KindList
	OutsidePreparedErrors   KindList
	OutsideRetriableErrors  KindList
	OutsideReraisableErrors KindList
	// OutsideNumRetryAttempts bounds outside attempts; zero means DefaultNumRetryAttempts.
	OutsideNumRetryAttempts int

	// Lock runs the work under the target's row lock instead of a plain transaction.
	Lock bool

	RequiresNew bool
	Isolation   IsolationLevel
	Joinable    *bool
}

// TxOptions returns the transaction options carried by the configuration.
func (c Config) TxOptions() TxOptions {
	return TxOptions{
		RequiresNew: c.RequiresNew,
		Isolation:   c.Isolation,
		Joinable:    c.Joinable,
	}
}

// InsideAttempts returns the effective inside attempt bound.
func (c Config) InsideAttempts() int {
	return attemptsOrDefault(c.NumRetryAttempts)
}

// OutsideAttempts returns the effective outside attempt bound.
func (c Config) OutsideAttempts() int {
	return attemptsOrDefault(c.OutsideNumRetryAttempts)
}

func attemptsOrDefault(n int) int {
	if n <= 0 {
		return DefaultNumRetryAttempts
	}
	return n
}

// Validate rejects kinds that must not be rescued inside a transaction.
// owner names the caller in the error message.
func (c Config) Validate(owner string) error {
	if c.NumRetryAttempts < 0 {
		return &ConfigError{Keys: []string{KeyNumRetryAttempts},
			msg: fmt.Sprintf("%s: %s cannot be negative", owner, KeyNumRetryAttempts)}
	}
	if c.OutsideNumRetryAttempts < 0 {
		return &ConfigError{Keys: []string{KeyOutsideNumRetryAttempts},
			msg: fmt.Sprintf("%s: %s cannot be negative", owner, KeyOutsideNumRetryAttempts)}
	}

	// Every inside list that keeps an error from leaving the transaction.
	inside := []struct {
		key   string
		kinds KindList
	}{
		{KeyRescuedErrors, c.RescuedErrors},
		{KeyPreparedErrors, c.PreparedErrors},
		{KeyRetriableErrors, c.RetriableErrors},
	}

	var kinds KindList
	var keys []string
	for _, list := range inside {
		found := false
		for _, k := range list.kinds {
			if DisallowedInsideTransaction.Contains(k) {
				found = true
				if !kinds.Contains(k) {
					kinds = append(kinds, k)
				}
			}
		}
		if found {
			keys = append(keys, list.key)
		}
	}
	if len(kinds) > 0 {
		return DisallowedKindsError(owner, kinds.Names(), keys)
	}
	return nil
}

// ParseConfig builds a Config from loosely typed arguments, as read from a
// configuration file. Kind lists accept ErrorKind values or names resolved
// through registry. Unrecognized keys are rejected before any value is parsed,
// and keys are parsed in sorted order so the same input always fails the same way.
func ParseConfig(owner string, args map[string]any, registry KindRegistry) (Config, error) {
	keys := make([]string, 0, len(args))
	var unknown []string
	for key := range args {
		keys = append(keys, key)
		if !knownKey(key) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(keys)

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Config{}, UnknownKeysError(owner, unknown)
	}

	_, hasRequiresNew := args[KeyRequiresNew]
	_, hasForceNew := args[KeyForceNew]
	if hasRequiresNew && hasForceNew {
		return Config{}, ConflictingKeysError(owner, KeyForceNew, KeyRequiresNew)
	}

	var cfg Config
	for _, key := range keys {
		value := args[key]
		var err error
		switch key {
		case KeyRescuedErrors:
			cfg.RescuedErrors, err = parseKinds(key, value, registry)
		case KeyPreparedErrors:
			cfg.PreparedErrors, err = parseKinds(key, value, registry)
		case KeyRetriableErrors:
			cfg.RetriableErrors, err = parseKinds(key, value, registry)
		case KeyReraisableErrors:
			cfg.ReraisableErrors, err = parseKinds(key, value, registry)
		case KeyNumRetryAttempts:
			cfg.NumRetryAttempts, err = parseAttempts(key, value)
		case KeyOutsideRescuedErrors:
			cfg.OutsideRescuedErrors, err = parseKinds(key, value, registry)
		case KeyOutsidePreparedErrors:
			cfg.OutsidePreparedErrors, err = parseKinds(key, value, registry)
		case KeyOutsideRetriableErrors:
			cfg.OutsideRetriableErrors, err = parseKinds(key, value, registry)
		case KeyOutsideReraisableErrors:
			cfg.OutsideReraisableErrors, err = parseKinds(key, value, registry)
		case KeyOutsideNumRetryAttempts:
			cfg.OutsideNumRetryAttempts, err = parseAttempts(key, value)
		case KeyLock:
			cfg.Lock, err = parseBool(key, value)
		case KeyRequiresNew, KeyForceNew:
			cfg.RequiresNew, err = parseBool(key, value)
		case KeyIsolation:
			var s string
			if s, err = parseString(key, value); err == nil {
				cfg.Isolation, err = ParseIsolationLevel(s)
			}
		case KeyJoinable:
			var b bool
			if b, err = parseBool(key, value); err == nil {
				cfg.Joinable = &b
			}
		}
		if err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func knownKey(key string) bool {
	switch key {
	case KeyRescuedErrors, KeyPreparedErrors, KeyRetriableErrors, KeyReraisableErrors,
		KeyNumRetryAttempts, KeyOutsideRescuedErrors, KeyOutsidePreparedErrors,
		KeyOutsideRetriableErrors, KeyOutsideReraisableErrors, KeyOutsideNumRetryAttempts,
		KeyLock, KeyRequiresNew, KeyForceNew, KeyIsolation, KeyJoinable:
		return true
	}
	return false
}

func parseKinds(key string, value any, registry KindRegistry) (KindList, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case ErrorKind:
		return KindList{v}, nil
	case KindList:
		return v, nil
	case []ErrorKind:
		return KindList(v), nil
	case string:
		return resolveNames(key, splitNames(v), registry)
	case []string:
		return resolveNames(key, v, registry)
	case []any:
		out := make(KindList, 0, len(v))
		for _, item := range v {
			kinds, err := parseKinds(key, item, registry)
			if err != nil {
				return nil, err
			}
			out = append(out, kinds...)
		}
		return out, nil
	}
	return nil, invalidValue(key, value, "a list of error kinds")
}

func resolveNames(key string, names []string, registry KindRegistry) (KindList, error) {
	kinds, err := registry.Resolve(names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return kinds, nil
}

func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

func parseAttempts(key string, value any) (int, error) {
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int64:
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, invalidValue(key, value, "a whole number")
		}
		n = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, invalidValue(key, value, "a whole number")
		}
		n = parsed
	default:
		return 0, invalidValue(key, value, "a whole number")
	}
	if n < 0 {
		return 0, invalidValue(key, value, "a non-negative number")
	}
	return n, nil
}

func parseBool(key string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, invalidValue(key, value, "true or false")
		}
		return b, nil
	}
	return false, invalidValue(key, value, "true or false")
}

func parseString(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", invalidValue(key, value, "a string")
	}
	return s, nil
}

func invalidValue(key string, value any, want string) error {
	return &ConfigError{
		Keys: []string{key},
		msg:  fmt.Sprintf("%s must be %s, got %v (%T)", key, want, value, value),
	}
}

package txwrap

// ErrorEntry is one message recorded on a target.
type ErrorEntry struct {
	Key     string
	Message string
}

// RecordErrors is an ordered in-memory ErrorCollection.
// Not safe for concurrent use; callers sharing a target across goroutines must serialize.
type RecordErrors struct {
	entries []ErrorEntry
}

// Add appends message under key.
func (e *RecordErrors) Add(key, message string) {
	e.entries = append(e.entries, ErrorEntry{Key: key, Message: message})
}

// On returns the messages recorded under key, in insertion order.
func (e *RecordErrors) On(key string) []string {
	var msgs []string
	for _, entry := range e.entries {
		if entry.Key == key {
			msgs = append(msgs, entry.Message)
		}
	}
	return msgs
}

// All returns a copy of every entry in insertion order.
func (e *RecordErrors) All() []ErrorEntry {
	out := make([]ErrorEntry, len(e.entries))
	copy(out, e.entries)
	return out
}

func (e *RecordErrors) Len() int {
	return len(e.entries)
}

func (e *RecordErrors) Empty() bool {
	return len(e.entries) == 0
}

func (e *RecordErrors) Clear() {
	e.entries = nil
}

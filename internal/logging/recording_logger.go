package logging

import (
	"fmt"
	"sync"
)

// Level is the severity of a recorded entry.
type Level string

const (
	LevelVerbose Level = "verbose"
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
)

// Entry is one recorded log line.
type Entry struct {
	Level   Level
	Message string
}

// RecordingLogger keeps every message in memory, formatted.
// Safe for concurrent use by multiple goroutines.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecordingLogger creates an empty RecordingLogger.
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{}
}

func (l *RecordingLogger) Verbose(format string, args ...interface{}) {
	l.record(LevelVerbose, format, args)
}

func (l *RecordingLogger) Info(format string, args ...interface{}) {
	l.record(LevelInfo, format, args)
}

func (l *RecordingLogger) Warn(format string, args ...interface{}) {
	l.record(LevelWarn, format, args)
}

func (l *RecordingLogger) Error(format string, args ...interface{}) {
	l.record(LevelError, format, args)
}

// Entries returns a copy of the recorded entries in order.
func (l *RecordingLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Messages returns the messages recorded at level.
func (l *RecordingLogger) Messages(level Level) []string {
	var msgs []string
	for _, e := range l.Entries() {
		if e.Level == level {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func (l *RecordingLogger) record(level Level, format string, args []interface{}) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Message: msg})
}

// Package logging provides concrete implementations of the txwrap.Logger interface.
//
// Available implementations:
//   - ConsoleLogger: Writes formatted messages to stderr with thread-safe output
//   - NullLogger: Discards all messages (useful for testing)
//   - RecordingLogger: Keeps every entry in memory for later inspection
//
// All logger implementations are safe for concurrent use by multiple goroutines.
// To log a single call differently, pass a different Logger for that call
// (WithPrefix returns a new ConsoleLogger sharing the same output).
package logging

// Package logging provides a minimal logging interface and adapters for flowmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that runners, agents, flows and tools use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.Config{Level: logging.LogLevelDebug, Format: "text"})
//	r := runner.New(root, func(o *runner.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging

// Package logging assembles structured slog loggers and formatting helpers used
// across dubsync.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so playback and export code can
// tag log lines with session IDs, job IDs, and correlation IDs. A bounded
// StreamHub keeps recent events for the daemon's log endpoint. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging

// Package api defines wire-format types and converters for the HTTP API layer.
// It translates playback statuses, export history rows and log events into
// transport-friendly DTOs that the CLI and browser consumers can render
// without coupling to internal types.
//
// # Key Types
//
// SessionView: a preview session with its playback state, positions and the
// effective mute of each track.
//
// ExportItem: one export job, live or historical, with its output locations.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Internal
// enums (playback.State, export.JobState) are exposed as lowercase strings.
// Timestamps use RFC3339 with milliseconds.
//
// Client is the small HTTP client the CLI uses to reach a running daemon.
package api

// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Metadata: the duration and track facts a source needs before it counts as loaded
//
// Inspect executes ffprobe and returns the parsed Result. Probe builds on it
// and reports every failure as a *mediaerr.SourceLoadError for the track that
// was being loaded.
package ffprobe

// Package main hosts the dubsync CLI entrypoint and command graph.
//
// The Cobra-based command tree covers standalone work (probe a source, generate
// a dub, preview a session from the terminal, export a dubbed video) and the
// local daemon: `serve` runs it, while `status` and `exports` query its HTTP
// API and fall back to local state when it is not reachable. Configuration
// resolution, project manifests and logger setup live in commandContext so
// subcommands stay small.
package main

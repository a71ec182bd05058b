// Package daemon coordinates the long-running dubsync process.
//
// It wires configuration, the export history store, the export pipeline and
// the preview opener into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon owns a registry of preview sessions,
// one synchronizer per session, and serves them over a Fiber HTTP API with a
// WebSocket feed of session and export updates.
//
// Finished exports are written to the output directory and optionally
// archived to AV1 and shared to Google Drive before their locations are
// recorded in the store.
//
// Keep orchestration logic here: playback, export and persistence rules live
// in their respective packages while the daemon focuses on startup, shutdown
// and high level coordination.
package daemon

// Package config loads, normalizes, and validates dubsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DUBBING_API_KEY, optionally sourced from a .env file. The Config type
// centralizes every knob the CLI and daemon need: preview and drift settings,
// the export host and stop policy, the dubbing collaborator endpoint, and the
// optional Drive share target.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

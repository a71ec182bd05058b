// Package preflight provides readiness checks for the external binaries,
// services and filesystem paths that dubsync depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and reports the results through
//     /api/status so a client can tell why an export cannot start.
//   - The CLI "dubsync status" command renders CheckSystemDeps and the
//     individual service checks (CheckDubbing, CheckShare) as a table.
//
// Each service check is gated by its config section; disabled features are
// reported as such rather than failing.
package preflight

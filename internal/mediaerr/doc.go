// Package mediaerr defines the error vocabulary shared by playback, export and
// the surfaces that report their outcomes.
//
// Errors carry a sentinel marker so callers can classify them with errors.Is,
// and typed wrappers (SourceLoadError, CaptureUnavailableError,
// TerminatedEarlyError) so callers can recover details with errors.As. Kind and
// Hint turn any error into the persisted error kind and a user-facing next step.
package mediaerr

package mediaerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSourceLoad         = errors.New("source load failed")
	ErrCaptureUnavailable = errors.New("capture unavailable")
	ErrDriftCorrection    = errors.New("drift correction failed")
	ErrTerminatedEarly    = errors.New("export terminated early")
	ErrExportInProgress   = errors.New("export already in progress")
	ErrCancelled          = errors.New("cancelled")
	ErrConfiguration      = errors.New("configuration error")
	ErrExternalTool       = errors.New("external tool error")
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
)

// Track identifies which of the two session sources an error concerns.
type Track string

const (
	TrackVideo Track = "video"
	TrackAudio Track = "audio"
)

// SourceLoadError reports that a media source could not be opened or its
// metadata could not be read.
type SourceLoadError struct {
	Track  Track
	Source string
	Err    error
}

func (e *SourceLoadError) Error() string {
	msg := fmt.Sprintf("load %s source", e.Track)
	if e.Source != "" {
		msg += " " + e.Source
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SourceLoadError) Unwrap() error { return e.Err }

func (e *SourceLoadError) Is(target error) bool { return target == ErrSourceLoad }

// CaptureUnavailableError reports that the host cannot capture, route or
// record live media.
type CaptureUnavailableError struct {
	Capability string
	Err        error
}

func (e *CaptureUnavailableError) Error() string {
	msg := "capture capability unavailable"
	if e.Capability != "" {
		msg += ": " + e.Capability
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CaptureUnavailableError) Unwrap() error { return e.Err }

func (e *CaptureUnavailableError) Is(target error) bool { return target == ErrCaptureUnavailable }

// TerminatedEarlyError describes a recording that stopped before both tracks
// finished. It is attached to a completed export rather than returned as a
// failure.
type TerminatedEarlyError struct {
	Reason        string
	StoppedAt     float64
	VideoDuration float64
	AudioDuration float64
}

func (e *TerminatedEarlyError) Error() string {
	return fmt.Sprintf("export terminated early (%s) at %.2fs; video %.2fs, audio %.2fs",
		e.Reason, e.StoppedAt, e.VideoDuration, e.AudioDuration)
}

func (e *TerminatedEarlyError) Is(target error) bool { return target == ErrTerminatedEarly }

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind maps an error to the short identifier persisted with failed jobs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrSourceLoad):
		return "source_load"
	case errors.Is(err, ErrCaptureUnavailable):
		return "capture_unavailable"
	case errors.Is(err, ErrExportInProgress):
		return "export_in_progress"
	case errors.Is(err, ErrTerminatedEarly):
		return "terminated_early"
	case errors.Is(err, ErrDriftCorrection):
		return "drift_correction"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "external_tool"
	}
}

// Hint returns an actionable message suitable for end users.
func Hint(err error) string {
	var load *SourceLoadError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &load):
		if load.Track == TrackAudio {
			return "the dub audio could not be loaded; regenerate it or try a different file"
		}
		return "the video could not be loaded; try a different file"
	case errors.Is(err, ErrCaptureUnavailable):
		return "this runtime can't record; install ffmpeg or switch export.host"
	case errors.Is(err, ErrExportInProgress):
		return "wait for the running export to finish"
	case errors.Is(err, ErrTerminatedEarly):
		return "one track ended before the other; the export is shorter than the video"
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return "the export was cancelled; start it again when ready"
	case errors.Is(err, ErrConfiguration):
		return "check the configuration file with 'dubsync config validate'"
	default:
		return "check logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "media failure"
	}
	return strings.Join(parts, ": ")
}

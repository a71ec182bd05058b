package api

import (
	"time"

	"dubsync/internal/deps"
	"dubsync/internal/export"
	"dubsync/internal/logging"
	"dubsync/internal/playback"
	"dubsync/internal/session"
	"dubsync/internal/store"
)

// FromStatus converts a synchronizer status to its API representation.
func FromStatus(status playback.Status) SessionView {
	snap := status.Session
	view := SessionView{
		ID:            snap.ID,
		State:         status.State,
		Video:         fromSource(snap.Video),
		Playing:       snap.Playing,
		CurrentTime:   snap.CurrentTime,
		Duration:      snap.Duration,
		DurationKnown: snap.DurationKnown,
		GlobalMuted:   snap.GlobalMuted,
		DubEnabled:    snap.DubEnabled,
		OriginalMuted: snap.OriginalMuted,
		DubMuted:      snap.DubMuted,
		AudioPosition: status.AudioPosition,
		AudioPlaying:  status.AudioPlaying,
		Drift:         status.Drift,
		Corrections:   status.Corrections,
		Error:         status.Error,
		CreatedAt:     formatTime(snap.CreatedAt),
	}
	if snap.Audio != nil {
		audio := fromSource(*snap.Audio)
		view.Audio = &audio
	}
	return view
}

// FromStatuses converts a slice of statuses.
func FromStatuses(statuses []playback.Status) []SessionView {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]SessionView, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, FromStatus(status))
	}
	return out
}

// FromExport converts an export history row.
func FromExport(exp *store.Export) ExportItem {
	if exp == nil {
		return ExportItem{}
	}
	return ExportItem{
		ID:           exp.ID,
		SessionID:    exp.SessionID,
		VideoPath:    exp.VideoPath,
		AudioPath:    exp.AudioPath,
		State:        string(exp.State),
		Active:       exp.Active(),
		Chunks:       exp.Chunks,
		Bytes:        exp.Bytes,
		MIMEType:     exp.MIMEType,
		Duration:     exp.Duration,
		StopReason:   exp.StopReason,
		EarlyStop:    exp.EarlyStop,
		ErrorKind:    exp.ErrorKind,
		ErrorMessage: exp.ErrorMessage,
		OutputPath:   exp.OutputPath,
		ArchivePath:  exp.ArchivePath,
		ShareURL:     exp.ShareURL,
		CreatedAt:    formatTime(exp.CreatedAt),
		UpdatedAt:    formatTime(exp.UpdatedAt),
	}
}

// FromExports converts a slice of export rows.
func FromExports(exports []*store.Export) []ExportItem {
	if len(exports) == 0 {
		return nil
	}
	out := make([]ExportItem, 0, len(exports))
	for _, exp := range exports {
		out = append(out, FromExport(exp))
	}
	return out
}

// FromJobSnapshot converts a live job snapshot. Output locations are only
// known once the job has been persisted, so they are left empty.
func FromJobSnapshot(snap export.JobSnapshot) ExportItem {
	return ExportItem{
		ID:           snap.ID,
		SessionID:    snap.SessionID,
		VideoPath:    snap.VideoPath,
		AudioPath:    snap.AudioPath,
		State:        string(snap.State),
		Active:       !snap.State.Terminal(),
		Chunks:       snap.Chunks,
		Bytes:        int64(snap.Bytes),
		MIMEType:     snap.MIMEType,
		Duration:     snap.Duration,
		StopReason:   snap.StopReason,
		EarlyStop:    snap.EarlyStop,
		ErrorKind:    snap.ErrorKind,
		ErrorMessage: snap.Error,
		CreatedAt:    formatTime(snap.CreatedAt),
		UpdatedAt:    formatTime(snap.UpdatedAt),
	}
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromLogEvents converts streamed log events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:  evt.Sequence,
			Timestamp: formatTime(evt.Timestamp),
			Level:     evt.Level,
			Message:   evt.Message,
			Component: evt.Component,
			SessionID: evt.SessionID,
			JobID:     evt.JobID,
			Fields:    evt.Fields,
		})
	}
	return out
}

// ToSource converts a request source to the session form.
func ToSource(src MediaSource) session.Source {
	return session.Source{Path: src.Path, MIMEType: src.MIMEType}
}

func fromSource(src session.Source) MediaSource {
	return MediaSource{Path: src.Path, MIMEType: src.MIMEType}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

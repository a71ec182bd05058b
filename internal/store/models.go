package store

import (
	"time"

	"dubsync/internal/export"
)

// Export is one row of the export history.
type Export struct {
	ID           string          `json:"id"`
	SessionID    string          `json:"session_id"`
	VideoPath    string          `json:"video_path,omitempty"`
	AudioPath    string          `json:"audio_path,omitempty"`
	State        export.JobState `json:"state"`
	Chunks       int             `json:"chunks"`
	Bytes        int64           `json:"bytes"`
	MIMEType     string          `json:"mime_type,omitempty"`
	Duration     float64         `json:"duration"`
	StopReason   string          `json:"stop_reason,omitempty"`
	EarlyStop    bool            `json:"early_stop"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	OutputPath   string          `json:"output_path,omitempty"`
	ArchivePath  string          `json:"archive_path,omitempty"`
	ShareURL     string          `json:"share_url,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Active reports whether the export had not reached a terminal state when it
// was last recorded.
func (e Export) Active() bool {
	return !e.State.Terminal()
}

// Output holds the on-disk and remote locations of a finished export.
type Output struct {
	Path        string
	ArchivePath string
	ShareURL    string
}

// Filter narrows List results.
type Filter struct {
	SessionID string
	States    []export.JobState
	Limit     int
}

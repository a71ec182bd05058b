package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MediaSource is a local media file reference.
type MediaSource struct {
	Path     string `json:"path"`
	MIMEType string `json:"mimeType,omitempty"`
}

// SessionView describes a preview session in a transport-friendly format.
type SessionView struct {
	ID            string       `json:"id"`
	State         string       `json:"state"`
	Video         MediaSource  `json:"video"`
	Audio         *MediaSource `json:"audio,omitempty"`
	Playing       bool         `json:"playing"`
	CurrentTime   float64      `json:"currentTime"`
	Duration      float64      `json:"duration"`
	DurationKnown bool         `json:"durationKnown"`
	GlobalMuted   bool         `json:"globalMuted"`
	DubEnabled    bool         `json:"dubEnabled"`
	OriginalMuted bool         `json:"originalMuted"`
	DubMuted      bool         `json:"dubMuted"`
	AudioPosition float64      `json:"audioPosition"`
	AudioPlaying  bool         `json:"audioPlaying"`
	Drift         float64      `json:"drift"`
	Corrections   int          `json:"corrections"`
	Error         string       `json:"error,omitempty"`
	CreatedAt     string       `json:"createdAt,omitempty"`
}

// ExportItem describes one export job.
type ExportItem struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"sessionId"`
	VideoPath    string  `json:"videoPath,omitempty"`
	AudioPath    string  `json:"audioPath,omitempty"`
	State        string  `json:"state"`
	Active       bool    `json:"active"`
	Chunks       int     `json:"chunks"`
	Bytes        int64   `json:"bytes"`
	MIMEType     string  `json:"mimeType,omitempty"`
	Duration     float64 `json:"duration"`
	StopReason   string  `json:"stopReason,omitempty"`
	EarlyStop    bool    `json:"earlyStop"`
	ErrorKind    string  `json:"errorKind,omitempty"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	OutputPath   string  `json:"outputPath,omitempty"`
	ArchivePath  string  `json:"archivePath,omitempty"`
	ShareURL     string  `json:"shareUrl,omitempty"`
	CreatedAt    string  `json:"createdAt,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running        bool               `json:"running"`
	PID            int                `json:"pid"`
	DatabasePath   string             `json:"databasePath"`
	LockFilePath   string             `json:"lockFilePath"`
	ExportHost     string             `json:"exportHost"`
	StopPolicy     string             `json:"stopPolicy"`
	Sessions       int                `json:"sessions"`
	ActiveExports  int                `json:"activeExports"`
	ArchiveEnabled bool               `json:"archiveEnabled"`
	ShareEnabled   bool               `json:"shareEnabled"`
	Dependencies   []DependencyStatus `json:"dependencies"`
}

// LogEvent is one structured log line.
type LogEvent struct {
	Sequence  uint64            `json:"seq"`
	Timestamp string            `json:"ts"`
	Level     string            `json:"level"`
	Message   string            `json:"msg"`
	Component string            `json:"component,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	JobID     string            `json:"jobId,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is a page of log events and the cursor for the next fetch.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// SessionListResponse wraps the open sessions.
type SessionListResponse struct {
	Sessions []SessionView `json:"sessions"`
}

// SessionResponse wraps a single session. Warning is set when an optional
// step, such as loading the dub, failed without failing the request.
type SessionResponse struct {
	Session SessionView `json:"session"`
	Warning string      `json:"warning,omitempty"`
}

// ExportListResponse wraps a collection of export jobs.
type ExportListResponse struct {
	Exports []ExportItem `json:"exports"`
}

// ExportResponse wraps a single export job.
type ExportResponse struct {
	Export ExportItem `json:"export"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// StreamMessage is one frame on the session WebSocket.
type StreamMessage struct {
	Type    string       `json:"type"`
	Session *SessionView `json:"session,omitempty"`
	Export  *ExportItem  `json:"export,omitempty"`
}

// Stream message types.
const (
	StreamTypeSession = "session"
	StreamTypeExport  = "export"
)

// CreateSessionRequest opens a preview session.
type CreateSessionRequest struct {
	Video       MediaSource  `json:"video"`
	Audio       *MediaSource `json:"audio,omitempty"`
	GlobalMuted bool         `json:"globalMuted"`
}

// AttachAudioRequest loads a dub track into a session.
type AttachAudioRequest struct {
	Audio MediaSource `json:"audio"`
}

// DubRequest asks the dubbing collaborator for a new track.
type DubRequest struct {
	Language string `json:"language"`
}

// SeekRequest moves the playhead.
type SeekRequest struct {
	Time float64 `json:"time"`
}

// MuteRequest sets the global mute.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// DubEnabledRequest switches between the original and dubbed audio.
type DubEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

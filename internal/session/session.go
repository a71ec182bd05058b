package session

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrDurationUnknown is returned when dub audio is attached before the video
// metadata has been loaded.
var ErrDurationUnknown = errors.New("video duration not yet known")

// Source is an opaque reference to a locally available media byte source.
type Source struct {
	Path     string `json:"path" yaml:"path"`
	MIMEType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
}

// IsZero reports whether the source is unset.
func (s Source) IsZero() bool {
	return strings.TrimSpace(s.Path) == ""
}

// Name returns the file name portion of the source path.
func (s Source) Name() string {
	return filepath.Base(s.Path)
}

func (s Source) String() string {
	return s.Path
}

// Session is the data holder for one video and its optional dub.
type Session struct {
	ID          string
	Video       Source
	Audio       *Source
	Playing     bool
	CurrentTime float64
	Duration    float64
	// DurationKnown is false until the video's metadata has loaded.
	DurationKnown bool
	GlobalMuted   bool
	DubEnabled    bool
	CreatedAt     time.Time
}

// New starts a session for the given video. The dub is disabled until audio is
// attached.
func New(video Source) (*Session, error) {
	if video.IsZero() {
		return nil, errors.New("video source path is required")
	}
	return &Session{
		ID:        uuid.NewString(),
		Video:     video,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetDuration records the loaded video duration and re-clamps the position.
func (s *Session) SetDuration(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return fmt.Errorf("invalid duration %v", seconds)
	}
	s.Duration = seconds
	s.DurationKnown = true
	s.CurrentTime = s.Clamp(s.CurrentTime)
	return nil
}

// AttachAudio sets the dub source. It requires the video duration to be known.
func (s *Session) AttachAudio(audio Source) error {
	if !s.DurationKnown {
		return ErrDurationUnknown
	}
	if audio.IsZero() {
		return errors.New("audio source path is required")
	}
	s.Audio = &audio
	return nil
}

// ClearAudio drops the dub source and disables dubbed playback.
func (s *Session) ClearAudio() {
	s.Audio = nil
	s.DubEnabled = false
}

// HasAudio reports whether a usable dub source is attached.
func (s *Session) HasAudio() bool {
	return s.Audio != nil && s.DurationKnown
}

// Clamp bounds t to [0, Duration] when the duration is known, and to [0, +inf)
// otherwise.
func (s *Session) Clamp(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if s.DurationKnown && t > s.Duration {
		return s.Duration
	}
	return t
}

// SetCurrentTime stores a clamped position and returns it.
func (s *Session) SetCurrentTime(t float64) float64 {
	s.CurrentTime = s.Clamp(t)
	return s.CurrentTime
}

// OriginalMuted is the effective mute state of the video's own audio track.
func (s *Session) OriginalMuted() bool {
	return s.GlobalMuted || s.DubEnabled
}

// DubMuted is the effective mute state of the dub audio.
func (s *Session) DubMuted() bool {
	return s.GlobalMuted
}

// Snapshot is a read-only copy of a session suitable for JSON encoding.
type Snapshot struct {
	ID            string    `json:"id"`
	Video         Source    `json:"video"`
	Audio         *Source   `json:"audio,omitempty"`
	Playing       bool      `json:"playing"`
	CurrentTime   float64   `json:"current_time"`
	Duration      float64   `json:"duration"`
	DurationKnown bool      `json:"duration_known"`
	GlobalMuted   bool      `json:"global_muted"`
	DubEnabled    bool      `json:"dub_enabled"`
	OriginalMuted bool      `json:"original_muted"`
	DubMuted      bool      `json:"dub_muted"`
	CreatedAt     time.Time `json:"created_at"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            s.ID,
		Video:         s.Video,
		Playing:       s.Playing,
		CurrentTime:   s.CurrentTime,
		Duration:      s.Duration,
		DurationKnown: s.DurationKnown,
		GlobalMuted:   s.GlobalMuted,
		DubEnabled:    s.DubEnabled,
		OriginalMuted: s.OriginalMuted(),
		DubMuted:      s.DubMuted(),
		CreatedAt:     s.CreatedAt,
	}
	if s.Audio != nil {
		audio := *s.Audio
		snap.Audio = &audio
	}
	return snap
}

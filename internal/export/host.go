package export

import (
	"context"

	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// Host provides the live media capabilities an export needs. Hosts return a
// *mediaerr.SourceLoadError when a source cannot be loaded and a
// *mediaerr.CaptureUnavailableError when the runtime lacks a capability.
type Host interface {
	Name() string
	// Load opens a private playable instance and returns once its metadata
	// is available. Video instances are loaded muted.
	Load(ctx context.Context, src session.Source, track mediaerr.Track, muted bool) (Instance, error)
	// CaptureVideo returns a live stream of the instance's rendered frames.
	CaptureVideo(ctx context.Context, inst Instance) (Stream, error)
	// RouteAudio sends the instance's audio into a stream-producing
	// destination and returns that stream.
	RouteAudio(ctx context.Context, inst Instance) (Stream, error)
	// Combine merges the tracks of several streams into one.
	Combine(ctx context.Context, streams ...Stream) (Stream, error)
	NewRecorder(ctx context.Context, stream Stream, opts RecorderOptions) (Recorder, error)
}

// Instance is an export-private playback of one source.
type Instance interface {
	Duration() float64
	// Play starts real-time playback from the beginning.
	Play(ctx context.Context) error
	// Ended is closed when playback reaches the end of the media.
	Ended() <-chan struct{}
	Close() error
}

// TrackKind distinguishes stream tracks.
type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

// Track describes one track carried by a Stream.
type Track struct {
	Kind TrackKind
	ID   string
}

// Stream is a live media stream produced by a Host.
type Stream interface {
	Tracks() []Track
	Close() error
}

// RecorderOptions configures the incremental encoder.
type RecorderOptions struct {
	MIMEType   string
	VideoCodec string
	AudioCodec string
	ChunkBytes int
}

// Recorder encodes a live stream incrementally. Chunks is closed once the
// recorder has stopped and flushed its final fragment; Err then reports any
// failure. Stop may be called more than once.
type Recorder interface {
	Start(ctx context.Context) error
	Chunks() <-chan []byte
	Stop() error
	Err() error
	MIMEType() string
}

// DefaultRecorderOptions matches the WebM/VP9 output browsers produce.
func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		MIMEType:   "video/webm;codecs=vp9",
		VideoCodec: "libvpx-vp9",
		AudioCodec: "libopus",
		ChunkBytes: 64 * 1024,
	}
}

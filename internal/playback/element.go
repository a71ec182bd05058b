package playback

import (
	"context"

	"dubsync/internal/session"
)

// EventType identifies a media element notification.
type EventType int

const (
	EventTimeAdvance EventType = iota
	EventEnded
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventTimeAdvance:
		return "time_advance"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted by an Element. Position is the element's media time in
// seconds when the event was produced.
type Event struct {
	Type     EventType
	Position float64
	Err      error
}

// Element is one playable media source with its own clock. Implementations
// must never block on Events: when the consumer is slow, time-advance events
// may be dropped, but ended and error events must be delivered.
type Element interface {
	Play() error
	Pause() error
	Paused() bool
	Position() float64
	Seek(seconds float64) error
	SetMuted(muted bool) error
	Muted() bool
	Duration() float64
	Events() <-chan Event
	Close() error
}

// Opener creates elements for session sources. Both methods return only after
// the source metadata (duration) is available, or a *mediaerr.SourceLoadError.
type Opener interface {
	OpenVideo(ctx context.Context, src session.Source) (Element, error)
	OpenAudio(ctx context.Context, src session.Source) (Element, error)
}

package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent represents a structured log line published to the streaming hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	SessionID     string            `json:"session_id,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events for /api/logs. Sequences are
// contiguous, so the buffer always holds (next-len(events), next].
type StreamHub struct {
	mu       sync.Mutex
	capacity int
	events   []LogEvent
	next     uint64
	changed  chan struct{}
}

// NewStreamHub constructs a hub holding at most capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{capacity: capacity, changed: make(chan struct{})}
}

// Publish assigns the next sequence number and wakes blocked fetchers.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.next++
	evt.Sequence = h.next
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.events) == h.capacity {
		h.events = append(h.events[:0], h.events[1:]...)
	}
	h.events = append(h.events, evt)
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()
}

// Fetch returns up to limit events with a sequence above since, plus the
// latest sequence. With wait set it blocks until an event arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	limit = h.clampLimit(limit)
	for {
		h.mu.Lock()
		events := h.afterLocked(since, limit)
		next, changed := h.next, h.changed
		h.mu.Unlock()

		if len(events) > 0 || !wait {
			return events, next, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, next, ctx.Err()
		case <-changed:
		}
	}
}

// Tail returns the newest limit events and the latest sequence.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	limit = h.clampLimit(limit)
	h.mu.Lock()
	defer h.mu.Unlock()
	start := max(len(h.events)-limit, 0)
	return append([]LogEvent(nil), h.events[start:]...), h.next
}

func (h *StreamHub) clampLimit(limit int) int {
	if limit <= 0 || limit > h.capacity {
		return h.capacity
	}
	return limit
}

func (h *StreamHub) afterLocked(since uint64, limit int) []LogEvent {
	if since >= h.next || len(h.events) == 0 {
		return nil
	}
	first := h.events[0].Sequence
	start := 0
	if since >= first {
		start = int(since - first + 1)
	}
	end := min(start+limit, len(h.events))
	return append([]LogEvent(nil), h.events[start:end]...)
}

type streamHandler struct {
	next  slog.Handler
	hub   *StreamHub
	attrs []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(eventFromRecord(record, h.attrs))
	return h.next.Handle(ctx, record.Clone())
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, attrs: merged}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, attrs: h.attrs}
}

func eventFromRecord(record slog.Record, preAttrs []slog.Attr) LogEvent {
	event := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}

	apply := func(attr slog.Attr) {
		key := strings.TrimSpace(attr.Key)
		if key == "" {
			return
		}
		switch key {
		case FieldComponent:
			event.Component = valueText(attr.Value)
		case FieldSessionID:
			event.SessionID = valueText(attr.Value)
		case FieldJobID:
			event.JobID = valueText(attr.Value)
		case FieldCorrelationID:
			event.CorrelationID = valueText(attr.Value)
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[key] = valueText(attr.Value)
		}
	}

	// call-site attrs override logger attrs
	for _, attr := range preAttrs {
		apply(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		apply(attr)
		return true
	})
	return event
}

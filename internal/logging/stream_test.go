package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandler_WithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	logger := slog.New(newStreamHandler(base, hub)).With(slog.String(FieldSessionID, "abc"))

	logger.Info("test message", slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].SessionID != "abc" {
		t.Errorf("expected session_id=abc, got %q", events[0].SessionID)
	}
	if events[0].Fields["extra"] != "value" {
		t.Errorf("expected extra field, got %v", events[0].Fields)
	}
}

func TestStreamHandler_CallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	logger := slog.New(newStreamHandler(base, hub)).With(slog.String(FieldJobID, "original"))

	logger.Info("message", slog.String(FieldJobID, "overridden"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].JobID != "overridden" {
		t.Errorf("expected job_id=overridden, got %q", events[0].JobID)
	}
}

func TestStreamHandler_NilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Errorf("expected base handler when hub is nil")
	}
}

func TestStreamHubEvictsOldest(t *testing.T) {
	hub := NewStreamHub(2)
	for _, msg := range []string{"a", "b", "c"} {
		hub.Publish(LogEvent{Message: msg})
	}
	events, next := hub.Tail(0)
	if len(events) != 2 || events[0].Message != "b" || events[1].Message != "c" {
		t.Fatalf("unexpected buffer %+v", events)
	}
	if next != 3 {
		t.Fatalf("expected next sequence 3, got %d", next)
	}
}

func TestStreamHubFetchWaitsForEvents(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(LogEvent{Message: "late"})
	}()

	events, _, err := hub.Fetch(ctx, 0, 10, true)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "late" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestStreamHubFetchHonoursCancellation(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestStreamHubFetchAfterEviction(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: string(rune('a' + i))})
	}
	events, next, err := hub.Fetch(context.Background(), 1, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if next != 5 || len(events) != 3 || events[0].Sequence != 3 {
		t.Fatalf("unexpected fetch next=%d events=%+v", next, events)
	}
	events, _, _ = hub.Fetch(context.Background(), 4, 0, false)
	if len(events) != 1 || events[0].Message != "e" {
		t.Fatalf("unexpected fetch after 4: %+v", events)
	}
	if events, _, _ := hub.Fetch(context.Background(), 5, 0, false); len(events) != 0 {
		t.Fatalf("expected nothing after latest, got %+v", events)
	}
}

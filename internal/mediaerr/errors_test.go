package mediaerr_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"dubsync/internal/mediaerr"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "recorder", "start failed", base)
	if !errors.Is(err, mediaerr.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	for _, fragment := range []string{"export", "recorder", "start failed"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error string %q", fragment, err.Error())
		}
	}
}

func TestSourceLoadErrorClassification(t *testing.T) {
	cause := errors.New("moov atom not found")
	err := fmt.Errorf("open: %w", &mediaerr.SourceLoadError{Track: mediaerr.TrackVideo, Source: "/tmp/a.mp4", Err: cause})

	if !errors.Is(err, mediaerr.ErrSourceLoad) {
		t.Fatal("expected ErrSourceLoad marker")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	var load *mediaerr.SourceLoadError
	if !errors.As(err, &load) || load.Track != mediaerr.TrackVideo {
		t.Fatalf("expected video SourceLoadError, got %#v", load)
	}
	if errors.Is(err, mediaerr.ErrCaptureUnavailable) {
		t.Fatal("load error must not classify as capture unavailable")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"load", &mediaerr.SourceLoadError{Track: mediaerr.TrackAudio}, "source_load"},
		{"capture", &mediaerr.CaptureUnavailableError{Capability: "recorder"}, "capture_unavailable"},
		{"cancelled", fmt.Errorf("stop: %w", context.Canceled), "cancelled"},
		{"busy", mediaerr.ErrExportInProgress, "export_in_progress"},
		{"early", &mediaerr.TerminatedEarlyError{Reason: "audio_ended"}, "terminated_early"},
		{"other", errors.New("x"), "external_tool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mediaerr.Kind(tt.err); got != tt.want {
				t.Fatalf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHintIsActionable(t *testing.T) {
	video := mediaerr.Hint(&mediaerr.SourceLoadError{Track: mediaerr.TrackVideo})
	if !strings.Contains(video, "try a different file") {
		t.Fatalf("unexpected video hint %q", video)
	}
	capture := mediaerr.Hint(&mediaerr.CaptureUnavailableError{})
	if !strings.Contains(capture, "can't record") {
		t.Fatalf("unexpected capture hint %q", capture)
	}
	if mediaerr.Hint(nil) != "" {
		t.Fatal("expected empty hint for nil error")
	}
}

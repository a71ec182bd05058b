package dubbing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

func collaborator(t *testing.T, pcm []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze-script", func(w http.ResponseWriter, r *http.Request) {
		var req analyzeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MIMEType != "video/mp4" {
			t.Errorf("unexpected mime %q", req.MIMEType)
		}
		_, _ = w.Write([]byte(`{"transcript":"Speaker A: Bonjour","speakers":[{"id":"Speaker A","gender":"MALE","age":"ADULT"}]}`))
	})
	mux.HandleFunc("POST /api/generate-audio", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{AudioBase64: base64.StdEncoding.EncodeToString(pcm)})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDubWritesWAV(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(videoPath, []byte("mp4"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	// One second of silence at 24 kHz.
	pcm := make([]byte, 2*DefaultSampleRate)
	srv := collaborator(t, pcm)

	d := NewDubber(NewClient("", WithBaseURL(srv.URL)), DefaultSampleRate, nil)
	res, err := d.Dub(context.Background(), Request{Video: session.Source{Path: videoPath}, Language: "French"})
	if err != nil {
		t.Fatalf("Dub: %v", err)
	}
	if res.Language.Code != "fr" {
		t.Fatalf("unexpected language %+v", res.Language)
	}
	wantPath := filepath.Join(dir, "clip.fr.dub.wav")
	if res.Audio.Path != wantPath || res.Audio.MIMEType != "audio/wav" {
		t.Fatalf("unexpected audio source %+v", res.Audio)
	}
	if res.Duration != time.Second {
		t.Fatalf("expected 1s dub, got %v", res.Duration)
	}

	f, err := os.Open(wantPath)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		t.Fatalf("read wav header: %v", err)
	}
	if dec.PCMSize != len(pcm) {
		t.Fatalf("expected %d PCM bytes, got %d", len(pcm), dec.PCMSize)
	}
	frames := dec.PCMSize / (int(dec.NumChans) * int(dec.BitDepth) / 8)
	if got := time.Duration(frames) * time.Second / time.Duration(dec.SampleRate); got != time.Second {
		t.Fatalf("unexpected wav duration %v", got)
	}
	if dec.SampleRate != DefaultSampleRate || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected wav format %d Hz %d ch %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
}

func TestDubRejectsUnsupportedLanguage(t *testing.T) {
	d := NewDubber(NewClient(""), 0, nil)
	_, err := d.Dub(context.Background(), Request{Video: session.Source{Path: "clip.mp4"}, Language: "zu"})
	if !errors.Is(err, mediaerr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDubReportsMissingVideo(t *testing.T) {
	d := NewDubber(NewClient(""), 0, nil)
	_, err := d.Dub(context.Background(), Request{Video: session.Source{Path: filepath.Join(t.TempDir(), "missing.mp4")}, Language: "es"})
	if !errors.Is(err, mediaerr.ErrSourceLoad) {
		t.Fatalf("expected source load error, got %v", err)
	}
}

func TestPCMToWAVRejectsEmptyPayload(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "empty.wav"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := PCMToWAV(f, []byte{0x01}, DefaultSampleRate); err == nil {
		t.Fatal("expected error for payload shorter than one frame")
	}
}

package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dubsync/internal/export"
	"dubsync/internal/media/ffprobe"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
	"dubsync/internal/testsupport"
)

func fixedProbe(durations map[mediaerr.Track]float64) ProbeFunc {
	return func(_ context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error) {
		d, ok := durations[track]
		if !ok {
			return ffprobe.Metadata{}, &mediaerr.SourceLoadError{Track: track, Source: src.Path, Err: errors.New("no stream")}
		}
		return ffprobe.Metadata{Path: src.Path, Duration: d}, nil
	}
}

func writeFFmpegStub(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	argsPath := filepath.Join(dir, "args.txt")
	path := testsupport.StubBinary(t, dir, "ffmpeg", "echo \"$@\" > "+argsPath+"\n"+body)
	return path, argsPath
}

func newPipeline(t *testing.T, host *Host) *export.Pipeline {
	t.Helper()
	opts := export.DefaultRecorderOptions()
	opts.ChunkBytes = 4
	p, err := export.NewPipeline(export.Options{Host: host, Recorder: opts})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

var testRequest = export.Request{
	SessionID: "s1",
	Video:     session.Source{Path: "/media/clip.mp4"},
	Audio:     session.Source{Path: "/media/dub.wav"},
}

func TestRecorderArgs(t *testing.T) {
	inputs := []input{
		{path: "clip.mp4", kind: export.TrackKindVideo},
		{path: "dub.wav", kind: export.TrackKindAudio},
	}
	args, err := recorderArgs(inputs, export.DefaultRecorderOptions())
	if err != nil {
		t.Fatalf("recorderArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-re -i clip.mp4 -re -i dub.wav",
		"tpad=stop=-1",
		"apad",
		"-c:v libvpx-vp9 -deadline realtime",
		"-c:a libopus",
		"-f webm",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}
	if args[len(args)-1] != "pipe:1" {
		t.Fatalf("expected stdout output, got %q", args[len(args)-1])
	}

	if _, err := recorderArgs(inputs[:1], export.DefaultRecorderOptions()); !errors.Is(err, mediaerr.ErrCaptureUnavailable) {
		t.Fatalf("expected capture unavailable for missing audio input, got %v", err)
	}
}

func TestExportThroughFFmpeg(t *testing.T) {
	stub, argsPath := writeFFmpegStub(t, "printf 'HEAD'\nread line\nprintf 'TAIL'\n")
	host := &Host{
		Binary: stub,
		Probe:  fixedProbe(map[mediaerr.Track]float64{mediaerr.TrackVideo: 0.05, mediaerr.TrackAudio: 0.1}),
	}

	res, err := newPipeline(t, host).Export(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if string(res.Data) != "HEADTAIL" {
		t.Fatalf("unexpected data %q", res.Data)
	}
	if res.Chunks != 2 {
		t.Fatalf("expected 2 chunks, got %d", res.Chunks)
	}
	if res.StopReason != "video_ended" || res.Duration != 0.05 {
		t.Fatalf("unexpected stop %q at %v", res.StopReason, res.Duration)
	}
	if res.Early != nil {
		t.Fatalf("durations within tolerance must not be flagged early: %v", res.Early)
	}
	if res.MIMEType != "video/webm;codecs=vp9" {
		t.Fatalf("unexpected mime %q", res.MIMEType)
	}

	args, err := os.ReadFile(argsPath)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if !strings.Contains(string(args), "-i /media/clip.mp4") || !strings.Contains(string(args), "-i /media/dub.wav") {
		t.Fatalf("unexpected args %s", args)
	}
}

func TestExportReportsMissingFFmpeg(t *testing.T) {
	host := &Host{
		Binary: filepath.Join(t.TempDir(), "ffmpeg"),
		Probe:  fixedProbe(map[mediaerr.Track]float64{mediaerr.TrackVideo: 1, mediaerr.TrackAudio: 1}),
	}
	_, err := newPipeline(t, host).Export(context.Background(), testRequest)
	var capErr *mediaerr.CaptureUnavailableError
	if !errors.As(err, &capErr) || capErr.Capability != "ffmpeg" {
		t.Fatalf("expected ffmpeg capture error, got %v", err)
	}
}

func TestExportReportsRecorderCrash(t *testing.T) {
	stub, _ := writeFFmpegStub(t, "echo 'Unknown encoder libvpx-vp9' >&2\nexit 1\n")
	host := &Host{
		Binary: stub,
		Probe:  fixedProbe(map[mediaerr.Track]float64{mediaerr.TrackVideo: 5, mediaerr.TrackAudio: 5}),
	}
	_, err := newPipeline(t, host).Export(context.Background(), testRequest)
	if !errors.Is(err, mediaerr.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Unknown encoder") {
		t.Fatalf("expected ffmpeg stderr in error, got %v", err)
	}
}

func TestExportPropagatesProbeFailure(t *testing.T) {
	host := &Host{
		Binary: "ffmpeg",
		Probe:  fixedProbe(map[mediaerr.Track]float64{mediaerr.TrackVideo: 5}),
	}
	_, err := newPipeline(t, host).Export(context.Background(), testRequest)
	var loadErr *mediaerr.SourceLoadError
	if !errors.As(err, &loadErr) || loadErr.Track != mediaerr.TrackAudio {
		t.Fatalf("expected audio load error, got %v", err)
	}
}

func TestRecorderStopBeforeStart(t *testing.T) {
	r := &recorder{chunks: make(chan []byte), exited: make(chan struct{})}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-r.Chunks(); ok {
		t.Fatal("expected chunks closed")
	}
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected start after stop to fail")
	}
}

func TestGatedInstanceEndsAfterInputsOpen(t *testing.T) {
	inst := &instance{duration: 0.02, ended: make(chan struct{})}
	inst.gate()
	if err := inst.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	select {
	case <-inst.Ended():
		t.Fatal("gated instance ended before ffmpeg produced output")
	case <-time.After(100 * time.Millisecond):
	}
	inst.inputsOpened()
	select {
	case <-inst.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("expected instance to end once inputs opened")
	}
}

func TestExportClockStartsAtFirstOutput(t *testing.T) {
	stub, _ := writeFFmpegStub(t, "sleep 0.4\nprintf 'HEAD'\nread line\nprintf 'TAIL'\n")
	host := &Host{
		Binary: stub,
		Probe:  fixedProbe(map[mediaerr.Track]float64{mediaerr.TrackVideo: 0.05, mediaerr.TrackAudio: 0.1}),
	}

	res, err := newPipeline(t, host).Export(context.Background(), testRequest)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.StopReason != "video_ended" {
		t.Fatalf("unexpected stop reason %q", res.StopReason)
	}
	if res.Elapsed < 400*time.Millisecond {
		t.Fatalf("expected the end timer to wait for ffmpeg output, stopped after %v", res.Elapsed)
	}
	if string(res.Data) != "HEADTAIL" {
		t.Fatalf("unexpected data %q", res.Data)
	}
}

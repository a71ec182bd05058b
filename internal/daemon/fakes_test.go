package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"dubsync/internal/config"
	"dubsync/internal/dubbing"
	"dubsync/internal/export"
	"dubsync/internal/language"
	"dubsync/internal/logging"
	"dubsync/internal/media/ffprobe"
	"dubsync/internal/mediaerr"
	"dubsync/internal/player"
	"dubsync/internal/session"
	"dubsync/internal/testsupport"
)

// stubHost plays every source for duration media seconds, one media second
// lasting scale.
type stubHost struct {
	duration float64
	scale    time.Duration
}

func (h *stubHost) Name() string { return "stub" }

func (h *stubHost) Load(_ context.Context, _ session.Source, _ mediaerr.Track, _ bool) (export.Instance, error) {
	return &stubInstance{duration: h.duration, scale: h.scale, ended: make(chan struct{})}, nil
}

func (h *stubHost) CaptureVideo(context.Context, export.Instance) (export.Stream, error) {
	return stubStream{{Kind: export.TrackKindVideo, ID: "v0"}}, nil
}

func (h *stubHost) RouteAudio(context.Context, export.Instance) (export.Stream, error) {
	return stubStream{{Kind: export.TrackKindAudio, ID: "a0"}}, nil
}

func (h *stubHost) Combine(_ context.Context, streams ...export.Stream) (export.Stream, error) {
	var tracks stubStream
	for _, s := range streams {
		tracks = append(tracks, s.Tracks()...)
	}
	return tracks, nil
}

func (h *stubHost) NewRecorder(_ context.Context, _ export.Stream, opts export.RecorderOptions) (export.Recorder, error) {
	return &stubRecorder{mime: opts.MIMEType, tick: h.scale, chunks: make(chan []byte, 1024), stop: make(chan struct{})}, nil
}

type stubInstance struct {
	duration float64
	scale    time.Duration
	ended    chan struct{}
	once     sync.Once
	timer    *time.Timer
	mu       sync.Mutex
}

func (i *stubInstance) Duration() float64 { return i.duration }

func (i *stubInstance) Play(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.timer = time.AfterFunc(time.Duration(i.duration*float64(i.scale)), func() {
		i.once.Do(func() { close(i.ended) })
	})
	return nil
}

func (i *stubInstance) Ended() <-chan struct{} { return i.ended }

func (i *stubInstance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.timer != nil {
		i.timer.Stop()
	}
	return nil
}

type stubStream []export.Track

func (s stubStream) Tracks() []export.Track { return s }
func (s stubStream) Close() error           { return nil }

type stubRecorder struct {
	mime   string
	tick   time.Duration
	chunks chan []byte
	stop   chan struct{}
	once   sync.Once
}

func (r *stubRecorder) Start(context.Context) error {
	go func() {
		defer close(r.chunks)
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				r.chunks <- []byte("tail")
				return
			case <-ticker.C:
				select {
				case r.chunks <- []byte("chunk"):
				default:
				}
			}
		}
	}()
	return nil
}

func (r *stubRecorder) Chunks() <-chan []byte { return r.chunks }
func (r *stubRecorder) Err() error            { return nil }
func (r *stubRecorder) MIMEType() string      { return r.mime }

func (r *stubRecorder) Stop() error {
	r.once.Do(func() { close(r.stop) })
	return nil
}

// newTestOpener builds virtual preview elements. Sources named missing.mp4 or
// missing.wav fail to load.
func newTestOpener(duration float64) *player.Opener {
	return &player.Opener{
		Backend: config.PreviewBackendVirtual,
		Tick:    10 * time.Millisecond,
		Probe: func(_ context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error) {
			if filepath.Base(src.Path) == "missing.wav" || filepath.Base(src.Path) == "missing.mp4" {
				return ffprobe.Metadata{}, &mediaerr.SourceLoadError{Track: track, Source: src.Path, Err: os.ErrNotExist}
			}
			return ffprobe.Metadata{Path: src.Path, Duration: duration}, nil
		},
		Logger: logging.NewNop(),
	}
}

type fakeDubber struct {
	audio string
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeDubber) Dub(_ context.Context, req dubbing.Request) (dubbing.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return dubbing.Result{}, f.err
	}
	return dubbing.Result{
		Audio:    session.Source{Path: f.audio, MIMEType: "audio/wav"},
		Language: language.Target{Code: req.Language, Name: req.Language},
	}, nil
}

type fakeArchiver struct{ dir string }

func (f fakeArchiver) Archive(_ context.Context, path string) (string, error) {
	out := filepath.Join(f.dir, filepath.Base(path)+".mkv")
	return out, os.WriteFile(out, []byte("av1"), 0o644)
}

type fakeUploader struct{ err error }

func (f fakeUploader) Upload(_ context.Context, path, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://drive.google.com/file/d/" + filepath.Base(path) + "/view", nil
}

var errUploadDenied = errors.New("upload denied")

type harnessOption func(*Options)

func withDubber(d Dubber) harnessOption { return func(o *Options) { o.Dubber = d } }

func withArchiver(a Archiver) harnessOption { return func(o *Options) { o.Archiver = a } }

func withUploader(u Uploader) harnessOption { return func(o *Options) { o.Uploader = u } }

func withLogHub(h *logging.StreamHub) harnessOption { return func(o *Options) { o.LogHub = h } }

// newTestDaemon starts a daemon backed by a temp store, a stub export host
// playing 20 media seconds and a virtual preview of 60 seconds.
func newTestDaemon(t *testing.T, cfg *config.Config, opts ...harnessOption) *Daemon {
	t.Helper()
	if cfg == nil {
		cfg = testsupport.NewConfig(t)
	}
	options := Options{
		Store:  testsupport.MustOpenStore(t, cfg),
		Host:   &stubHost{duration: 20, scale: 10 * time.Millisecond},
		Opener: newTestOpener(60),
		Logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	d, err := New(cfg, options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

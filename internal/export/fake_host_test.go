package export_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"dubsync/internal/export"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// fakeHost plays media on a scaled clock: one media second lasts `scale`.
type fakeHost struct {
	mu          sync.Mutex
	scale       time.Duration
	durations   map[mediaerr.Track]float64
	byPath      map[string]float64
	loadErr     map[mediaerr.Track]error
	captureErr  error
	recorderErr error
	failAfter   int
	instances   []*fakeInstance
	streams     []*fakeStream
	recorders   []*fakeRecorder
}

func newFakeHost(videoSeconds, audioSeconds float64) *fakeHost {
	return &fakeHost{
		scale: 10 * time.Millisecond,
		durations: map[mediaerr.Track]float64{
			mediaerr.TrackVideo: videoSeconds,
			mediaerr.TrackAudio: audioSeconds,
		},
		loadErr: map[mediaerr.Track]error{},
		byPath:  map[string]float64{},
	}
}

func (h *fakeHost) Name() string { return "fake" }

func (h *fakeHost) Load(_ context.Context, src session.Source, track mediaerr.Track, muted bool) (export.Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.loadErr[track]; err != nil {
		return nil, &mediaerr.SourceLoadError{Track: track, Source: src.Path, Err: err}
	}
	duration := h.durations[track]
	if d, ok := h.byPath[src.Path]; ok {
		duration = d
	}
	inst := &fakeInstance{track: track, muted: muted, duration: duration, scale: h.scale, ended: make(chan struct{})}
	h.instances = append(h.instances, inst)
	return inst, nil
}

func (h *fakeHost) CaptureVideo(_ context.Context, inst export.Instance) (export.Stream, error) {
	if h.captureErr != nil {
		return nil, h.captureErr
	}
	return h.newStream(export.Track{Kind: export.TrackKindVideo, ID: "v0"}), nil
}

func (h *fakeHost) RouteAudio(_ context.Context, inst export.Instance) (export.Stream, error) {
	return h.newStream(export.Track{Kind: export.TrackKindAudio, ID: "a0"}), nil
}

func (h *fakeHost) Combine(_ context.Context, streams ...export.Stream) (export.Stream, error) {
	var tracks []export.Track
	for _, s := range streams {
		tracks = append(tracks, s.Tracks()...)
	}
	return h.newStream(tracks...), nil
}

func (h *fakeHost) NewRecorder(_ context.Context, _ export.Stream, opts export.RecorderOptions) (export.Recorder, error) {
	if h.recorderErr != nil {
		return nil, h.recorderErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	rec := &fakeRecorder{
		mime:      opts.MIMEType,
		tick:      h.scale / 2,
		chunks:    make(chan []byte, 4096),
		stop:      make(chan struct{}),
		failAfter: h.failAfter,
	}
	h.recorders = append(h.recorders, rec)
	return rec, nil
}

func (h *fakeHost) newStream(tracks ...export.Track) *fakeStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := &fakeStream{tracks: tracks}
	h.streams = append(h.streams, s)
	return s
}

// allReleased reports whether every instance and stream was closed and every
// recorder stopped.
func (h *fakeHost) allReleased() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, inst := range h.instances {
		if !inst.isClosed() {
			return false
		}
	}
	for _, s := range h.streams {
		if !s.isClosed() {
			return false
		}
	}
	for _, r := range h.recorders {
		if !r.isStopped() {
			return false
		}
	}
	return true
}

func (h *fakeHost) counts() (instances, streams, recorders int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.instances), len(h.streams), len(h.recorders)
}

type fakeInstance struct {
	mu       sync.Mutex
	track    mediaerr.Track
	muted    bool
	duration float64
	scale    time.Duration
	ended    chan struct{}
	timer    *time.Timer
	closed   bool
}

func (i *fakeInstance) Duration() float64 { return i.duration }

func (i *fakeInstance) Play(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	wait := time.Duration(i.duration * float64(i.scale))
	i.timer = time.AfterFunc(wait, func() { close(i.ended) })
	return nil
}

func (i *fakeInstance) Ended() <-chan struct{} { return i.ended }

func (i *fakeInstance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.timer != nil {
		i.timer.Stop()
	}
	i.closed = true
	return nil
}

func (i *fakeInstance) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

type fakeStream struct {
	mu     sync.Mutex
	tracks []export.Track
	closed bool
}

func (s *fakeStream) Tracks() []export.Track { return s.tracks }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeRecorder struct {
	mu        sync.Mutex
	mime      string
	tick      time.Duration
	chunks    chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
	stopped   bool
	failAfter int
	err       error
}

func (r *fakeRecorder) Start(context.Context) error {
	go func() {
		defer close(r.chunks)
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()
		sent := 0
		for {
			select {
			case <-r.stop:
				r.chunks <- []byte("tail")
				return
			case <-ticker.C:
				if r.failAfter > 0 && sent >= r.failAfter {
					r.mu.Lock()
					r.err = errors.New("encoder crashed")
					r.mu.Unlock()
					return
				}
				r.chunks <- []byte("chunk")
				sent++
			}
		}
	}()
	return nil
}

func (r *fakeRecorder) Chunks() <-chan []byte { return r.chunks }

func (r *fakeRecorder) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		close(r.stop)
	})
	return nil
}

func (r *fakeRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *fakeRecorder) MIMEType() string { return r.mime }

func (r *fakeRecorder) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

type recordingObserver struct {
	mu    sync.Mutex
	snaps []export.JobSnapshot
}

func (o *recordingObserver) JobChanged(s export.JobSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snaps = append(o.snaps, s)
}

func (o *recordingObserver) states() []export.JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]export.JobState, 0, len(o.snaps))
	for _, s := range o.snaps {
		out = append(out, s.State)
	}
	return out
}

func (o *recordingObserver) last() export.JobSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snaps[len(o.snaps)-1]
}

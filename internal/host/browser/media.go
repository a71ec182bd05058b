package browser

import (
	"context"
	"errors"
	"sync"

	"dubsync/internal/export"
	"dubsync/internal/mediaerr"
)

// instance is one media element in the export page.
type instance struct {
	host     *Host
	page     *page
	id       string
	token    string
	track    mediaerr.Track
	duration float64

	ended     chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
}

func (i *instance) Duration() float64 { return i.duration }

func (i *instance) Play(ctx context.Context) error {
	return i.host.call(ctx, i.page, nil, "play", i.id)
}

func (i *instance) Ended() <-chan struct{} { return i.ended }

func (i *instance) markEnded() {
	i.endOnce.Do(func() { close(i.ended) })
}

func (i *instance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		i.host.forgetInstance(i.id)
		i.page.server.unregister(i.token)
		err = i.host.release(i.page, i.id)
	})
	return err
}

// stream is a MediaStream held by the page.
type stream struct {
	host   *Host
	page   *page
	id     string
	tracks []export.Track
	once   sync.Once
}

func (s *stream) Tracks() []export.Track {
	return append([]export.Track(nil), s.tracks...)
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.host.release(s.page, s.id)
	})
	return err
}

// recorder is a MediaRecorder in the page. Chunks arrive through the host's
// binding dispatch.
type recorder struct {
	host   *Host
	page   *page
	stream string
	id     string

	mu       sync.Mutex
	mime     string
	started  bool
	finished bool
	err      error
	chunks   chan []byte
	stopOnce sync.Once
}

func (r *recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started || r.finished {
		r.mu.Unlock()
		return errors.New("recorder already started")
	}
	r.started = true
	want := r.mime
	r.mu.Unlock()

	var actual string
	if err := r.host.call(ctx, r.page, &actual, "record", r.stream, r.id, want, timeslice); err != nil {
		r.finish(err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &mediaerr.CaptureUnavailableError{Capability: "MediaRecorder", Err: err}
	}
	if actual != "" {
		r.mu.Lock()
		r.mime = actual
		r.mu.Unlock()
	}
	return nil
}

func (r *recorder) Chunks() <-chan []byte { return r.chunks }

func (r *recorder) MIMEType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mime
}

func (r *recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop asks the page recorder to flush. Chunks closes when the page reports
// the recorder stopped.
func (r *recorder) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		r.mu.Lock()
		started, finished := r.started, r.finished
		r.mu.Unlock()
		if !started {
			r.finish(nil)
			return
		}
		if finished {
			return
		}
		if err = r.host.call(context.Background(), r.page, nil, "stop", r.id); err != nil {
			r.finish(err)
		}
	})
	return err
}

// push queues a chunk without blocking the DevTools event loop.
func (r *recorder) push(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	select {
	case r.chunks <- data:
	default:
		r.finishLocked(errors.New("recorder chunk backlog overflow"))
	}
}

func (r *recorder) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishLocked(err)
}

func (r *recorder) finishLocked(err error) {
	if r.finished {
		return
	}
	r.finished = true
	if err != nil && r.err == nil {
		r.err = err
	}
	close(r.chunks)
	r.host.forgetRecorder(r.id)
}

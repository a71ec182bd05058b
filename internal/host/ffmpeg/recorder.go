package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
)

// killAfter is how long a stopped recorder may take to finish its file before
// the process is killed.
const killAfter = 10 * time.Second

type recorder struct {
	clocks     []*instance
	binary     string
	args       []string
	command    CommandFunc
	mime       string
	chunkBytes int
	logger     *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	stdin    io.WriteCloser
	started  bool
	stopping bool
	err      error

	chunks   chan []byte
	exited   chan struct{}
	stopOnce sync.Once
}

func (r *recorder) MIMEType() string { return r.mime }

func (r *recorder) Chunks() <-chan []byte { return r.chunks }

func (r *recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopping {
		return errors.New("recorder already started")
	}

	procCtx, cancel := context.WithCancel(ctx)
	cmd := r.command(procCtx, r.binary, r.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("recorder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("recorder stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return &mediaerr.CaptureUnavailableError{Capability: "ffmpeg", Err: err}
	}
	r.started = true
	r.cancel = cancel
	r.stdin = stdin
	r.logger.Debug("recorder started",
		logging.String("binary", r.binary),
		logging.String("args", strings.Join(r.args, " ")),
	)

	go func() {
		defer close(r.exited)
		defer close(r.chunks)
		readErr := r.pump(&firstReadHook{r: stdout, fn: r.inputsOpened})
		waitErr := cmd.Wait()
		cancel()

		r.mu.Lock()
		defer r.mu.Unlock()
		switch {
		case readErr != nil:
			r.err = readErr
		case r.stopping && waitErr == nil:
		case waitErr != nil && !r.stopping:
			r.err = fmt.Errorf("ffmpeg exited: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
		case waitErr != nil:
			r.logger.Debug("recorder exited after stop", logging.Error(waitErr))
		case !r.stopping:
			r.err = errors.New("ffmpeg exited before stop")
		}
	}()
	return nil
}

func (r *recorder) inputsOpened() {
	for _, inst := range r.clocks {
		inst.inputsOpened()
	}
}

// firstReadHook calls fn once, on the first read that returns data.
type firstReadHook struct {
	r    io.Reader
	fn   func()
	once sync.Once
}

func (h *firstReadHook) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.once.Do(h.fn)
	}
	return n, err
}

// pump forwards stdout in chunkBytes slices until EOF.
func (r *recorder) pump(stdout io.Reader) error {
	buf := make([]byte, r.chunkBytes)
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.chunks <- chunk
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return fmt.Errorf("read recorder output: %w", err)
		}
	}
}

// Stop asks ffmpeg to finish the file. The process is killed if it has not
// exited within killAfter.
func (r *recorder) Stop() error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		if !r.started {
			r.stopping = true
			r.mu.Unlock()
			close(r.chunks)
			return
		}
		r.stopping = true
		stdin, cancel := r.stdin, r.cancel
		r.mu.Unlock()

		if _, err := io.WriteString(stdin, "q\n"); err != nil {
			r.logger.Debug("recorder stdin closed before stop", logging.Error(err))
		}
		_ = stdin.Close()
		go func() {
			select {
			case <-r.exited:
			case <-time.After(killAfter):
				cancel()
			}
		}()
	})
	return nil
}

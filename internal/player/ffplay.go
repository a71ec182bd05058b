package player

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
)

// FFplay is a Clock that plays its source through an ffplay process.
type FFplay struct {
	*Clock
}

// FFplayOptions configures an FFplay element.
type FFplayOptions struct {
	Binary string
	Tick   time.Duration
	// Display opens a video window; audio-only elements run with -nodisp.
	Display bool
	Title   string
	Logger  *slog.Logger
}

// NewFFplay returns a paused element for path. No process runs until Play.
func NewFFplay(path string, duration float64, opts FFplayOptions) *FFplay {
	out := &ffplayOutput{
		binary:  strings.TrimSpace(opts.Binary),
		path:    path,
		display: opts.Display,
		title:   opts.Title,
		logger:  opts.Logger,
	}
	if out.binary == "" {
		out.binary = "ffplay"
	}
	if out.logger == nil {
		out.logger = logging.NewNop()
	}
	el := &FFplay{Clock: newClock(duration, opts.Tick, out)}
	out.clock = el.Clock
	return el
}

// ffplayArgs builds the command line for one playback run starting at position.
func ffplayArgs(path string, position float64, muted, display bool, title string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-autoexit",
		"-ss", fmt.Sprintf("%.3f", position),
	}
	if display {
		if title != "" {
			args = append(args, "-window_title", title)
		}
	} else {
		args = append(args, "-nodisp")
	}
	if muted {
		args = append(args, "-volume", "0")
	}
	return append(args, "-i", path)
}

type ffplayOutput struct {
	binary  string
	path    string
	display bool
	title   string
	logger  *slog.Logger
	clock   *Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	run    int
}

// start launches a new ffplay run. Called with the clock lock held.
func (o *ffplayOutput) start(position float64, muted bool) error {
	args := ffplayArgs(o.path, position, muted, o.display, o.title)
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, o.binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return mediaerr.Wrap(mediaerr.ErrExternalTool, "preview", "start ffplay", o.path, err)
	}

	o.mu.Lock()
	o.run++
	run := o.run
	o.cancel = cancel
	o.mu.Unlock()

	o.logger.Debug("ffplay started",
		logging.String("path", o.path),
		logging.Seconds("position", position),
		logging.Bool("muted", muted),
	)
	o.clock.spawn(func() {
		err := cmd.Wait()
		o.mu.Lock()
		current := o.run == run && o.cancel != nil
		if current {
			o.cancel = nil
		}
		o.mu.Unlock()
		cancel()
		if !current || err == nil {
			return
		}
		detail := strings.TrimSpace(stderr.String())
		o.clock.fail(mediaerr.Wrap(mediaerr.ErrExternalTool, "preview", "ffplay exited", detail, err))
	})
	return nil
}

// stop terminates the current run without waiting for it to exit.
func (o *ffplayOutput) stop() error {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

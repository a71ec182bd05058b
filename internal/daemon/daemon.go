package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"dubsync/internal/config"
	"dubsync/internal/deps"
	"dubsync/internal/dubbing"
	"dubsync/internal/export"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/preflight"
	"dubsync/internal/store"
)

// ErrNotRunning is returned by session and export operations before Start.
var ErrNotRunning = errors.New("daemon not running")

// Dubber generates a dub track for a video.
type Dubber interface {
	Dub(ctx context.Context, req dubbing.Request) (dubbing.Result, error)
}

// Archiver re-encodes a finished export for long-term storage.
type Archiver interface {
	Archive(ctx context.Context, exportPath string) (string, error)
}

// Uploader publishes a finished export and returns a shareable link.
type Uploader interface {
	Upload(ctx context.Context, path, mimeType string) (string, error)
}

// Options carries the daemon collaborators. Store, Host and Opener are
// required; the rest enable optional features.
type Options struct {
	Store    *store.Store
	Host     export.Host
	Opener   playback.Opener
	Dubber   Dubber
	Archiver Archiver
	Uploader Uploader
	LogHub   *logging.StreamHub
	Logger   *slog.Logger
}

// Daemon owns the preview sessions and export jobs and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	host     export.Host
	pipeline *export.Pipeline
	opener   playback.Opener
	dubber   Dubber
	archiver Archiver
	uploader Uploader
	hub      *logging.StreamHub
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	sessions *registry
	watchers *exportWatchers
	outputs  sync.WaitGroup

	mu      sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	DatabasePath  string
	LockFilePath  string
	ExportHost    string
	StopPolicy    export.StopPolicy
	Sessions      int
	ActiveExports int
	Archive       bool
	Share         bool
	Dependencies  []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil || opts.Store == nil || opts.Host == nil || opts.Opener == nil {
		return nil, errors.New("daemon requires config, store, export host, and preview opener")
	}
	logger := logging.NewComponentLogger(opts.Logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    opts.Store,
		host:     opts.Host,
		opener:   opts.Opener,
		dubber:   opts.Dubber,
		archiver: opts.Archiver,
		uploader: opts.Uploader,
		hub:      opts.LogHub,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		sessions: newRegistry(),
		watchers: newExportWatchers(),
	}
	pipeline, err := export.NewPipelineFromConfig(cfg, opts.Host, export.ObserverFunc(d.jobChanged), opts.Logger)
	if err != nil {
		return nil, err
	}
	d.pipeline = pipeline
	d.api = newAPIServer(cfg, d, opts.Logger)
	return d, nil
}

// Start acquires the daemon lock, marks exports interrupted by a previous run
// as failed and starts the API server.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return mediaerr.Wrap(mediaerr.ErrConfiguration, "daemon", "start", "ensure directories", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dubsync daemon instance is already running")
	}

	if n, err := d.store.ResetInterrupted(ctx); err != nil {
		logging.WarnWithContext(d.logger, "failed to reset interrupted exports", "store_reset_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale exports may be reported as active"),
		)
	} else if n > 0 {
		d.logger.Info("marked interrupted exports as failed", logging.Int64("count", n))
	}

	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("dubsync daemon started",
		logging.String("lock", d.lockPath),
		logging.String("export_host", d.host.Name()),
		logging.String("stop_policy", string(d.pipeline.Policy())),
	)
	return nil
}

// Stop cancels active exports, closes every session and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	d.running.Store(false)
	cancel := d.cancel
	d.ctx = nil
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.api.stop()
	for _, id := range d.sessions.ids() {
		if err := d.closeSession(id); err != nil && !errors.Is(err, mediaerr.ErrNotFound) {
			d.logger.Warn("failed to close session", logging.String(logging.FieldSessionID, id), logging.Error(err))
		}
	}
	d.outputs.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("dubsync daemon stopped")
}

// Close stops the daemon and releases the export host and the store.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if closer, ok := d.host.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogStream returns the in-memory log hub, if any.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.hub
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	active := 0
	for _, id := range d.sessions.ids() {
		if _, ok := d.pipeline.Active(id); ok {
			active++
		}
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		DatabasePath:  d.store.Path(),
		LockFilePath:  d.lockPath,
		ExportHost:    d.host.Name(),
		StopPolicy:    d.pipeline.Policy(),
		Sessions:      d.sessions.len(),
		ActiveExports: active,
		Archive:       d.archiver != nil,
		Share:         d.uploader != nil,
		Dependencies:  preflight.CheckSystemDeps(d.cfg),
	}
}

func (d *Daemon) runContext() (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() || d.ctx == nil {
		return nil, ErrNotRunning
	}
	return d.ctx, nil
}

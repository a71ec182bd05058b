package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"dubsync/internal/config"
	"dubsync/internal/export"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

const (
	bindingName = "dubEvent"
	// timeslice is how often MediaRecorder emits a chunk, in milliseconds.
	timeslice = 1000
)

// Options configures a Host.
type Options struct {
	ChromePath string
	Headless   bool
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Host runs exports inside a shared headless Chrome page.
type Host struct {
	opts   Options
	logger *slog.Logger

	startMu sync.Mutex
	page    *page

	mu        sync.Mutex
	instances map[string]*instance
	recorders map[string]*recorder
}

// New returns a Host. Chrome is started on first use.
func New(opts Options) *Host {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Host{
		opts:      opts,
		logger:    logging.NewComponentLogger(opts.Logger, "browser_host"),
		instances: make(map[string]*instance),
		recorders: make(map[string]*recorder),
	}
}

// NewFromConfig returns a Host configured from cfg.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Host {
	return New(Options{
		ChromePath: cfg.Browser.ChromePath,
		Headless:   cfg.Browser.Headless,
		Timeout:    time.Duration(cfg.Browser.TimeoutSeconds) * time.Second,
		Logger:     logger,
	})
}

func (h *Host) Name() string { return "browser" }

type page struct {
	server      *mediaServer
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tab         context.Context
}

// ensurePage starts Chrome and loads the export page.
func (h *Host) ensurePage(ctx context.Context) (*page, error) {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.page != nil && h.page.tab.Err() == nil {
		return h.page, nil
	}

	server, err := startMediaServer()
	if err != nil {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "media server", Err: err}
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", h.opts.Headless),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("mute-audio", false),
	)
	if h.opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(h.opts.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	chromedp.ListenTarget(tab, func(ev any) {
		if called, ok := ev.(*runtime.EventBindingCalled); ok && called.Name == bindingName {
			h.dispatch(called.Payload)
		}
	})

	startCtx, cancel := context.WithTimeout(tab, h.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err = chromedp.Run(startCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.AddBinding(bindingName).Do(ctx)
		}),
		chromedp.Navigate(server.baseURL()+"/"),
		chromedp.WaitReady("body"),
		chromedp.Poll("window.__dub !== undefined", nil),
	)
	if err != nil {
		tabCancel()
		allocCancel()
		_ = server.close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &mediaerr.CaptureUnavailableError{Capability: "chrome", Err: err}
	}

	h.page = &page{server: server, allocCancel: allocCancel, tabCancel: tabCancel, tab: tab}
	h.logger.Info("export browser started", logging.String("url", server.baseURL()), logging.Bool("headless", h.opts.Headless))
	return h.page, nil
}

// Close shuts down Chrome and the media server.
func (h *Host) Close() error {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.page == nil {
		return nil
	}
	p := h.page
	h.page = nil
	p.tabCancel()
	p.allocCancel()
	return p.server.close()
}

// call evaluates a __dub method. A nil out discards the result.
func (h *Host) call(ctx context.Context, p *page, out any, method string, args ...any) error {
	encoded := make([]string, 0, len(args))
	for _, arg := range args {
		data, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("encode %s argument: %w", method, err)
		}
		encoded = append(encoded, string(data))
	}
	expr := fmt.Sprintf("window.__dub.%s(%s)", method, strings.Join(encoded, ","))

	runCtx, cancel := context.WithTimeout(p.tab, h.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, chromedp.Evaluate(expr, out, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// release drops page state for id on a fresh context, since callers are
// usually cleaning up after their own context ended.
func (h *Host) release(p *page, id string) error {
	if p.tab.Err() != nil {
		return nil
	}
	return h.call(context.Background(), p, nil, "release", id)
}

func (h *Host) Load(ctx context.Context, src session.Source, track mediaerr.Track, muted bool) (export.Instance, error) {
	p, err := h.ensurePage(ctx)
	if err != nil {
		return nil, err
	}
	token, url := p.server.register(src.Path)
	inst := &instance{
		host:  h,
		page:  p,
		id:    "el-" + token,
		token: token,
		track: track,
		ended: make(chan struct{}),
	}
	h.mu.Lock()
	h.instances[inst.id] = inst
	h.mu.Unlock()

	var duration float64
	if err := h.call(ctx, p, &duration, "load", inst.id, url, string(track), muted); err != nil {
		_ = inst.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &mediaerr.SourceLoadError{Track: track, Source: src.Path, Err: err}
	}
	inst.duration = duration
	h.logger.Debug("export source loaded",
		logging.String("track", string(track)),
		logging.String("source", src.Path),
		logging.Seconds("duration", duration),
	)
	return inst, nil
}

func (h *Host) CaptureVideo(ctx context.Context, inst export.Instance) (export.Stream, error) {
	in, ok := inst.(*instance)
	if !ok || in.track != mediaerr.TrackVideo {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "video capture", Err: fmt.Errorf("unsupported instance %T", inst)}
	}
	return h.newStream(ctx, in.page, "video capture", "captureVideo", in.id)
}

func (h *Host) RouteAudio(ctx context.Context, inst export.Instance) (export.Stream, error) {
	in, ok := inst.(*instance)
	if !ok || in.track != mediaerr.TrackAudio {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "audio routing", Err: fmt.Errorf("unsupported instance %T", inst)}
	}
	return h.newStream(ctx, in.page, "audio routing", "routeAudio", in.id)
}

func (h *Host) Combine(ctx context.Context, streams ...export.Stream) (export.Stream, error) {
	ids := make([]string, 0, len(streams))
	var p *page
	for _, s := range streams {
		st, ok := s.(*stream)
		if !ok {
			return nil, &mediaerr.CaptureUnavailableError{Capability: "combine", Err: fmt.Errorf("unsupported stream %T", s)}
		}
		ids = append(ids, st.id)
		p = st.page
	}
	if p == nil {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "combine", Err: errors.New("no streams")}
	}
	return h.newStream(ctx, p, "combine", "combine", ids)
}

func (h *Host) newStream(ctx context.Context, p *page, capability, method string, source any) (*stream, error) {
	st := &stream{host: h, page: p, id: "st-" + uuid.NewString()}
	var tracks []export.Track
	var raw []struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	}
	if err := h.call(ctx, p, &raw, method, source, st.id); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &mediaerr.CaptureUnavailableError{Capability: capability, Err: err}
	}
	for _, t := range raw {
		tracks = append(tracks, export.Track{Kind: export.TrackKind(t.Kind), ID: t.ID})
	}
	st.tracks = tracks
	return st, nil
}

func (h *Host) NewRecorder(_ context.Context, s export.Stream, opts export.RecorderOptions) (export.Recorder, error) {
	st, ok := s.(*stream)
	if !ok {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "recorder", Err: fmt.Errorf("unsupported stream %T", s)}
	}
	rec := &recorder{
		host:   h,
		page:   st.page,
		stream: st.id,
		id:     "rec-" + uuid.NewString(),
		mime:   opts.MIMEType,
		chunks: make(chan []byte, 1024),
	}
	h.mu.Lock()
	h.recorders[rec.id] = rec
	h.mu.Unlock()
	return rec, nil
}

type bindingEvent struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Data  string `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// dispatch routes a page notification. It runs on the DevTools event loop
// and must not block.
func (h *Host) dispatch(payload string) {
	var evt bindingEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		h.logger.Debug("ignoring malformed page event", logging.Error(err))
		return
	}
	switch evt.Type {
	case "ended":
		h.mu.Lock()
		inst := h.instances[evt.ID]
		h.mu.Unlock()
		if inst != nil {
			inst.markEnded()
		}
	case "chunk", "stop", "error":
		h.mu.Lock()
		rec := h.recorders[evt.ID]
		h.mu.Unlock()
		if rec == nil {
			return
		}
		switch evt.Type {
		case "chunk":
			data, err := base64.StdEncoding.DecodeString(evt.Data)
			if err != nil {
				rec.finish(fmt.Errorf("decode chunk: %w", err))
				return
			}
			rec.push(data)
		case "stop":
			rec.finish(nil)
		case "error":
			rec.finish(errors.New(evt.Error))
		}
	}
}

func (h *Host) forgetInstance(id string) {
	h.mu.Lock()
	delete(h.instances, id)
	h.mu.Unlock()
}

func (h *Host) forgetRecorder(id string) {
	h.mu.Lock()
	delete(h.recorders, id)
	h.mu.Unlock()
}

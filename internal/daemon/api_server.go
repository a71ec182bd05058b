package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"dubsync/internal/api"
	"dubsync/internal/config"
	"dubsync/internal/export"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/session"
	"dubsync/internal/store"
)

const (
	defaultLogLimit = 200
	followTimeout   = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon
	app    *fiber.App

	listener net.Listener
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	s := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "dubsync",
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          s.handleError,
	})
	s.routes()
	return s
}

func (s *apiServer) routes() {
	s.app.Use(recover.New())
	s.app.Use(cors.New())
	s.app.Use(s.requestLogger)

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Use(authMiddleware(s.token))

	s.app.Get("/api/status", s.handleStatus)
	s.app.Get("/api/logs", s.handleLogs)

	s.app.Get("/api/sessions", s.handleListSessions)
	s.app.Post("/api/sessions", s.handleCreateSession)
	s.app.Get("/api/sessions/:id", s.handleGetSession)
	s.app.Delete("/api/sessions/:id", s.handleDeleteSession)
	s.app.Post("/api/sessions/:id/audio", s.handleAttachAudio)
	s.app.Post("/api/sessions/:id/dub", s.handleGenerateDub)
	s.app.Post("/api/sessions/:id/toggle", s.control(func(p *playback.Synchronizer, _ *fiber.Ctx) error {
		return p.TogglePlay()
	}))
	s.app.Post("/api/sessions/:id/restart", s.control(func(p *playback.Synchronizer, _ *fiber.Ctx) error {
		return p.Restart()
	}))
	s.app.Post("/api/sessions/:id/seek", s.control(func(p *playback.Synchronizer, c *fiber.Ctx) error {
		var req api.SeekRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		_, err := p.Seek(req.Time)
		return err
	}))
	s.app.Post("/api/sessions/:id/mute", s.control(func(p *playback.Synchronizer, c *fiber.Ctx) error {
		var req api.MuteRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		return p.SetGlobalMuted(req.Muted)
	}))
	s.app.Post("/api/sessions/:id/dub-enabled", s.control(func(p *playback.Synchronizer, c *fiber.Ctx) error {
		var req api.DubEnabledRequest
		if err := parseBody(c, &req); err != nil {
			return err
		}
		return p.SetDubEnabled(req.Enabled)
	}))

	s.app.Post("/api/sessions/:id/export", s.handleStartExport)
	s.app.Get("/api/sessions/:id/export", s.handleActiveExport)
	s.app.Delete("/api/sessions/:id/export", s.handleCancelExport)

	s.app.Get("/api/exports", s.handleListExports)
	s.app.Get("/api/exports/:id", s.handleGetExport)
	s.app.Get("/api/exports/:id/download", s.handleDownloadExport)

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/sessions/:id", websocket.New(s.streamSession))
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.app.Listener(listener); err != nil {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.listener == nil {
		return
	}
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Warn("api server shutdown incomplete", logging.Error(err))
	}
	s.listener = nil
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// APIAddr returns the address the API server is listening on, or "" when the
// API is disabled.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

func (s *apiServer) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	requestID := uuid.NewString()
	c.SetUserContext(logging.WithRequestID(c.UserContext(), requestID))
	err := c.Next()
	s.logger.Debug("api request",
		logging.String("method", c.Method()),
		logging.String("path", c.Path()),
		logging.Int("status", c.Response().StatusCode()),
		logging.Duration("elapsed", time.Since(start)),
		logging.String("request_id", requestID),
	)
	return err
}

func (s *apiServer) handleStatus(c *fiber.Ctx) error {
	status := s.daemon.Status(c.UserContext())
	return c.JSON(api.DaemonStatus{
		Running:        status.Running,
		PID:            status.PID,
		DatabasePath:   status.DatabasePath,
		LockFilePath:   status.LockFilePath,
		ExportHost:     status.ExportHost,
		StopPolicy:     string(status.StopPolicy),
		Sessions:       status.Sessions,
		ActiveExports:  status.ActiveExports,
		ArchiveEnabled: status.Archive,
		ShareEnabled:   status.Share,
		Dependencies:   api.FromDependencies(status.Dependencies),
	})
}

func (s *apiServer) handleLogs(c *fiber.Ctx) error {
	hub := s.daemon.LogStream()
	if hub == nil {
		return c.JSON(api.LogStreamResponse{})
	}

	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := queryFlag(c, "follow")
	tail := queryFlag(c, "tail")
	component := strings.TrimSpace(c.Query("component"))
	sessionID := strings.TrimSpace(c.Query("session"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = hub.Tail(limit)
	} else {
		ctx, cancel := context.WithTimeout(c.UserContext(), followTimeout)
		defer cancel()
		var err error
		events, next, err = hub.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if sessionID != "" && evt.SessionID != sessionID {
			continue
		}
		filtered = append(filtered, evt)
	}
	return c.JSON(api.LogStreamResponse{Events: api.FromLogEvents(filtered), Next: next})
}

func (s *apiServer) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(api.SessionListResponse{Sessions: api.FromStatuses(s.daemon.Sessions())})
}

func (s *apiServer) handleCreateSession(c *fiber.Ctx) error {
	var req api.CreateSessionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	open := OpenRequest{Video: api.ToSource(req.Video), GlobalMuted: req.GlobalMuted}
	if req.Audio != nil {
		audio := api.ToSource(*req.Audio)
		open.Audio = &audio
	}
	status, warning, err := s.daemon.OpenSession(c.UserContext(), open)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(api.SessionResponse{Session: api.FromStatus(status), Warning: warning})
}

func (s *apiServer) handleGetSession(c *fiber.Ctx) error {
	syncer, err := s.daemon.Session(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.SessionResponse{Session: api.FromStatus(syncer.Status())})
}

func (s *apiServer) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.daemon.CloseSession(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *apiServer) handleAttachAudio(c *fiber.Ctx) error {
	var req api.AttachAudioRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Audio.Path) == "" {
		return mediaerr.Wrap(mediaerr.ErrValidation, "session", "attach audio", "audio path is required", nil)
	}
	status, err := s.daemon.AttachAudio(c.UserContext(), c.Params("id"), api.ToSource(req.Audio))
	if err != nil {
		return err
	}
	return c.JSON(api.SessionResponse{Session: api.FromStatus(status)})
}

func (s *apiServer) handleGenerateDub(c *fiber.Ctx) error {
	var req api.DubRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	status, err := s.daemon.GenerateDub(c.UserContext(), c.Params("id"), req.Language)
	if err != nil {
		return err
	}
	return c.JSON(api.SessionResponse{Session: api.FromStatus(status)})
}

// control wraps a playback command and responds with the resulting session.
func (s *apiServer) control(fn func(*playback.Synchronizer, *fiber.Ctx) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		syncer, err := s.daemon.Session(c.Params("id"))
		if err != nil {
			return err
		}
		if err := fn(syncer, c); err != nil {
			return err
		}
		return c.JSON(api.SessionResponse{Session: api.FromStatus(syncer.Status())})
	}
}

func (s *apiServer) handleStartExport(c *fiber.Ctx) error {
	snap, err := s.daemon.StartExport(c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(api.ExportResponse{Export: api.FromJobSnapshot(snap)})
}

func (s *apiServer) handleActiveExport(c *fiber.Ctx) error {
	snap, ok := s.daemon.ActiveExport(c.Params("id"))
	if !ok {
		return mediaerr.Wrap(mediaerr.ErrNotFound, "export", "lookup", "no active export", nil)
	}
	return c.JSON(api.ExportResponse{Export: api.FromJobSnapshot(snap)})
}

func (s *apiServer) handleCancelExport(c *fiber.Ctx) error {
	if !s.daemon.CancelExport(c.Params("id")) {
		return mediaerr.Wrap(mediaerr.ErrNotFound, "export", "cancel", "no active export", nil)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *apiServer) handleListExports(c *fiber.Ctx) error {
	filter := store.Filter{SessionID: strings.TrimSpace(c.Query("session"))}
	for _, raw := range c.Context().QueryArgs().PeekMulti("state") {
		if value := strings.TrimSpace(string(raw)); value != "" {
			filter.States = append(filter.States, export.JobState(value))
		}
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	rows, err := s.daemon.Exports(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(api.ExportListResponse{Exports: api.FromExports(rows)})
}

func (s *apiServer) handleGetExport(c *fiber.Ctx) error {
	row, err := s.daemon.Export(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(api.ExportResponse{Export: api.FromExport(row)})
}

func (s *apiServer) handleDownloadExport(c *fiber.Ctx) error {
	row, err := s.daemon.Export(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if row.OutputPath == "" {
		return mediaerr.Wrap(mediaerr.ErrNotFound, "export", "download", "export has no output file", nil)
	}
	return c.Download(row.OutputPath)
}

func (s *apiServer) streamSession(conn *websocket.Conn) {
	id := conn.Params("id")
	entry, ok := s.daemon.sessions.get(id)
	if !ok {
		_ = conn.WriteJSON(api.ErrorResponse{Error: "session " + id + " not found", Kind: mediaerr.Kind(mediaerr.ErrNotFound)})
		return
	}
	runCtx, err := s.daemon.runContext()
	if err != nil {
		return
	}

	statuses, release := entry.syncer.Subscribe()
	defer release()
	exports, releaseExports := s.daemon.watchers.subscribe(id)
	defer releaseExports()

	sendStatus := func(status playback.Status) bool {
		view := api.FromStatus(status)
		return conn.WriteJSON(api.StreamMessage{Type: api.StreamTypeSession, Session: &view}) == nil
	}
	if !sendStatus(entry.syncer.Status()) {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-entry.done:
			return
		case <-closed:
			return
		case status, ok := <-statuses:
			if !ok || !sendStatus(status) {
				return
			}
		case item, ok := <-exports:
			if !ok {
				return
			}
			if err := conn.WriteJSON(api.StreamMessage{Type: api.StreamTypeExport, Export: &item}); err != nil {
				return
			}
		}
	}
}

func (s *apiServer) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(api.ErrorResponse{Error: fe.Message})
	}
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("api request failed",
			logging.String("path", c.Path()),
			logging.Error(err),
		)
	}
	return c.Status(status).JSON(api.ErrorResponse{
		Error: err.Error(),
		Kind:  mediaerr.Kind(err),
		Hint:  mediaerr.Hint(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotRunning):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, mediaerr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, mediaerr.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, mediaerr.ErrExportInProgress),
		errors.Is(err, mediaerr.ErrCancelled),
		errors.Is(err, playback.ErrNotLoaded),
		errors.Is(err, playback.ErrErrored),
		errors.Is(err, playback.ErrNoDub),
		errors.Is(err, session.ErrDurationUnknown):
		return fiber.StatusConflict
	case errors.Is(err, mediaerr.ErrSourceLoad):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, mediaerr.ErrCaptureUnavailable),
		errors.Is(err, mediaerr.ErrConfiguration):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, mediaerr.ErrExternalTool):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return mediaerr.Wrap(mediaerr.ErrValidation, "api", "decode", "invalid request body", err)
	}
	return nil
}

func queryFlag(c *fiber.Ctx, key string) bool {
	value := c.Query(key)
	return value == "1" || strings.EqualFold(value, "true")
}

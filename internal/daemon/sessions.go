package daemon

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"dubsync/internal/dubbing"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/session"
)

type sessionEntry struct {
	syncer *playback.Synchronizer
	cancel context.CancelFunc
	done   chan struct{}
}

type registry struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*sessionEntry)}
}

func (r *registry) add(id string, entry *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = entry
}

func (r *registry) get(id string) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	return entry, ok
}

func (r *registry) remove(id string) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	return entry, ok
}

func (r *registry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// OpenRequest describes a new preview session.
type OpenRequest struct {
	Video       session.Source
	Audio       *session.Source
	GlobalMuted bool
}

// OpenSession loads the video and starts dispatching its playback events. A
// dub that fails to load does not fail the session; the returned warning
// describes it instead.
func (d *Daemon) OpenSession(ctx context.Context, req OpenRequest) (playback.Status, string, error) {
	runCtx, err := d.runContext()
	if err != nil {
		return playback.Status{}, "", err
	}
	sess, err := session.New(req.Video)
	if err != nil {
		return playback.Status{}, "", mediaerr.Wrap(mediaerr.ErrValidation, "session", "open", "", err)
	}
	syncer := playback.New(sess, playback.Options{
		DriftThreshold: d.cfg.Playback.DriftThresholdSeconds,
		Logger:         d.logger,
	})
	if err := syncer.Load(ctx, d.opener); err != nil {
		_ = syncer.Close()
		return playback.Status{}, "", err
	}
	if req.GlobalMuted {
		if err := syncer.SetGlobalMuted(true); err != nil {
			_ = syncer.Close()
			return playback.Status{}, "", err
		}
	}

	var warning string
	if req.Audio != nil && !req.Audio.IsZero() {
		if err := syncer.LoadAudio(ctx, d.opener, *req.Audio); err != nil {
			warning = err.Error()
			logging.WarnWithContext(d.logger, "dub audio unavailable", "dub_load_failed",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.String("source", req.Audio.Path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "session continues with original audio only"),
			)
		}
	}

	sessCtx, cancel := context.WithCancel(runCtx)
	entry := &sessionEntry{syncer: syncer, cancel: cancel, done: make(chan struct{})}
	d.sessions.add(sess.ID, entry)
	go func() {
		defer close(entry.done)
		if err := syncer.Run(sessCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(d.logger, "session playback stopped", "session_run_failed",
				logging.String(logging.FieldSessionID, sess.ID),
				logging.Error(err),
			)
		}
	}()

	d.logger.Info("session opened",
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String("video", req.Video.Path),
		logging.Bool("dub", syncer.Status().Session.Audio != nil),
	)
	return syncer.Status(), warning, nil
}

// Session returns the synchronizer of an open session.
func (d *Daemon) Session(id string) (*playback.Synchronizer, error) {
	entry, ok := d.sessions.get(strings.TrimSpace(id))
	if !ok {
		return nil, mediaerr.Wrap(mediaerr.ErrNotFound, "session", "lookup", "session "+id, nil)
	}
	return entry.syncer, nil
}

// Sessions returns the status of every open session, oldest first.
func (d *Daemon) Sessions() []playback.Status {
	ids := d.sessions.ids()
	out := make([]playback.Status, 0, len(ids))
	for _, id := range ids {
		if entry, ok := d.sessions.get(id); ok {
			out = append(out, entry.syncer.Status())
		}
	}
	slices.SortFunc(out, func(a, b playback.Status) int {
		if c := a.Session.CreatedAt.Compare(b.Session.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Session.ID, b.Session.ID)
	})
	return out
}

// CloseSession cancels any export of the session and releases its preview
// elements.
func (d *Daemon) CloseSession(id string) error {
	return d.closeSession(strings.TrimSpace(id))
}

func (d *Daemon) closeSession(id string) error {
	entry, ok := d.sessions.remove(id)
	if !ok {
		return mediaerr.Wrap(mediaerr.ErrNotFound, "session", "close", "session "+id, nil)
	}
	d.pipeline.Cancel(id)
	entry.cancel()
	<-entry.done
	err := entry.syncer.Close()
	d.logger.Info("session closed", logging.String(logging.FieldSessionID, id))
	return err
}

// AttachAudio loads a dub track into an open session, replacing any previous
// one.
func (d *Daemon) AttachAudio(ctx context.Context, id string, src session.Source) (playback.Status, error) {
	syncer, err := d.Session(id)
	if err != nil {
		return playback.Status{}, err
	}
	if err := syncer.LoadAudio(ctx, d.opener, src); err != nil {
		return syncer.Status(), err
	}
	return syncer.Status(), nil
}

// GenerateDub asks the dubbing collaborator for a track in language and
// loads the result into the session.
func (d *Daemon) GenerateDub(ctx context.Context, id, language string) (playback.Status, error) {
	syncer, err := d.Session(id)
	if err != nil {
		return playback.Status{}, err
	}
	if d.dubber == nil {
		return syncer.Status(), mediaerr.Wrap(mediaerr.ErrConfiguration, "dubbing", "generate", "dubbing is not configured", nil)
	}
	status := syncer.Status()
	if syncer.State() == playback.StateErrored {
		return status, fmt.Errorf("generate dub for session %s: %w", id, playback.ErrErrored)
	}
	video := status.Session.Video
	res, err := d.dubber.Dub(ctx, dubbing.Request{Video: video, Language: language})
	if err != nil {
		return syncer.Status(), err
	}
	d.logger.Info("dub generated",
		logging.String(logging.FieldSessionID, id),
		logging.String("language", res.Language.Code),
		logging.String("audio", res.Audio.Path),
	)
	if err := syncer.LoadAudio(ctx, d.opener, res.Audio); err != nil {
		return syncer.Status(), err
	}
	return syncer.Status(), nil
}

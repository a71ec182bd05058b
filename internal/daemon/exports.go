package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dubsync/internal/api"
	"dubsync/internal/export"
	"dubsync/internal/fileutil"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/session"
	"dubsync/internal/store"
)

const storeTimeout = 5 * time.Second

// StartExport begins a background export of the session's video and dub. The
// finished container is written to the output directory.
func (d *Daemon) StartExport(id string) (export.JobSnapshot, error) {
	runCtx, err := d.runContext()
	if err != nil {
		return export.JobSnapshot{}, err
	}
	syncer, err := d.Session(id)
	if err != nil {
		return export.JobSnapshot{}, err
	}
	status := syncer.Status()
	if syncer.State() == playback.StateErrored {
		return export.JobSnapshot{}, fmt.Errorf("export session %s: %w", id, playback.ErrErrored)
	}
	snap := status.Session
	if snap.Audio == nil {
		return export.JobSnapshot{}, mediaerr.Wrap(mediaerr.ErrValidation, "export", "start", "session has no dub audio", playback.ErrNoDub)
	}

	job, err := d.pipeline.Start(runCtx, export.Request{
		SessionID: snap.ID,
		Video:     snap.Video,
		Audio:     *snap.Audio,
	})
	if err != nil {
		return export.JobSnapshot{}, err
	}
	d.outputs.Add(1)
	go d.finalize(runCtx, job, snap.Video)
	return job.Snapshot(), nil
}

// CancelExport aborts the running export of a session.
func (d *Daemon) CancelExport(id string) bool {
	return d.pipeline.Cancel(strings.TrimSpace(id))
}

// ActiveExport returns the running export of a session, if any.
func (d *Daemon) ActiveExport(id string) (export.JobSnapshot, bool) {
	return d.pipeline.Active(strings.TrimSpace(id))
}

// Exports lists export history.
func (d *Daemon) Exports(ctx context.Context, filter store.Filter) ([]*store.Export, error) {
	return d.store.List(ctx, filter)
}

// Export returns one export history row.
func (d *Daemon) Export(ctx context.Context, id string) (*store.Export, error) {
	return d.store.Get(ctx, strings.TrimSpace(id))
}

func (d *Daemon) jobChanged(snap export.JobSnapshot) {
	d.store.JobChanged(snap)
	d.watchers.publish(snap.SessionID, api.FromJobSnapshot(snap))
}

func (d *Daemon) finalize(ctx context.Context, job *export.Job, video session.Source) {
	defer d.outputs.Done()
	<-job.Done()
	if job.Err() != nil {
		return
	}
	res := job.Result()
	snap := job.Snapshot()
	logger := d.logger.With(
		logging.String(logging.FieldJobID, job.ID()),
		logging.String(logging.FieldSessionID, snap.SessionID),
	)

	path, err := d.writeOutput(res, video)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to write export", "export_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check output_dir permissions and free space"),
		)
		return
	}
	out := store.Output{Path: path}
	logger.Info("export written", logging.String("path", path), logging.Int("bytes", len(res.Data)))

	if d.archiver != nil {
		archived, err := d.archiver.Archive(ctx, path)
		if err != nil {
			logging.WarnWithContext(logger, "archive encode failed", "archive_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "export kept without an AV1 archive copy"),
			)
		} else {
			out.ArchivePath = archived
		}
	}
	if d.uploader != nil {
		link, err := d.uploader.Upload(ctx, path, res.MIMEType)
		if err != nil {
			logging.WarnWithContext(logger, "share upload failed", "share_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "export available locally only"),
			)
		} else {
			out.ShareURL = link
		}
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := d.store.SetOutput(saveCtx, job.ID(), out); err != nil {
		logging.WarnWithContext(logger, "failed to record export output", "store_record_failed", logging.Error(err))
		return
	}
	if row, err := d.store.Get(saveCtx, job.ID()); err == nil {
		d.watchers.publish(row.SessionID, api.FromExport(row))
	}
}

func (d *Daemon) writeOutput(res *export.Result, video session.Source) (string, error) {
	if res == nil || len(res.Data) == 0 {
		return "", mediaerr.Wrap(mediaerr.ErrValidation, "export", "write", "export produced no data", nil)
	}
	name := strings.TrimSuffix(video.Name(), filepath.Ext(video.Name())) + ".dub" + containerExt(res.MIMEType, d.cfg.Export.Container)
	path := fileutil.UniquePath(filepath.Join(d.cfg.Paths.OutputDir, name))
	if err := fileutil.WriteFileAtomic(path, res.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func containerExt(mimeType, fallback string) string {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "matroska"):
		return ".mkv"
	case strings.Contains(mimeType, "mp4"):
		return ".mp4"
	case fallback != "":
		return "." + strings.TrimPrefix(fallback, ".")
	default:
		return ".webm"
	}
}

// exportWatchers fans export updates out to session stream subscribers.
type exportWatchers struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan api.ExportItem
}

func newExportWatchers() *exportWatchers {
	return &exportWatchers{subs: make(map[string]map[int]chan api.ExportItem)}
}

func (w *exportWatchers) subscribe(sessionID string) (<-chan api.ExportItem, func()) {
	ch := make(chan api.ExportItem, 8)
	w.mu.Lock()
	id := w.next
	w.next++
	if w.subs[sessionID] == nil {
		w.subs[sessionID] = make(map[int]chan api.ExportItem)
	}
	w.subs[sessionID][id] = ch
	w.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs[sessionID], id)
			if len(w.subs[sessionID]) == 0 {
				delete(w.subs, sessionID)
			}
			w.mu.Unlock()
			close(ch)
		})
	}
}

// publish never blocks; a full subscriber misses the update.
func (w *exportWatchers) publish(sessionID string, item api.ExportItem) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs[sessionID] {
		select {
		case ch <- item:
		default:
		}
	}
}

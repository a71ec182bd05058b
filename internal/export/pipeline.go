package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// finalizeTimeout bounds how long the recorder may take to flush after Stop.
const finalizeTimeout = 15 * time.Second

// Request names the sources of one export.
type Request struct {
	SessionID string
	Video     session.Source
	Audio     session.Source
}

// Result is the output of a completed export.
type Result struct {
	JobID    string
	Data     []byte
	MIMEType string
	Chunks   int
	// Duration is the media time captured, in seconds.
	Duration   float64
	Elapsed    time.Duration
	StopReason string
	// Early is set when the recording stopped before both tracks finished.
	Early *mediaerr.TerminatedEarlyError
}

// Options configures a Pipeline.
type Options struct {
	Host     Host
	Policy   StopPolicy
	Recorder RecorderOptions
	Observer Observer
	Logger   *slog.Logger
}

// Pipeline runs real-time exports through a Host.
type Pipeline struct {
	host     Host
	policy   StopPolicy
	recorder RecorderOptions
	observer Observer
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]*Job
}

// NewPipeline validates opts and returns a Pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Host == nil {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "export", "init", "host is required", nil)
	}
	policy, err := ParseStopPolicy(string(opts.Policy))
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "export", "init", "", err)
	}
	rec := opts.Recorder
	defaults := DefaultRecorderOptions()
	if rec.MIMEType == "" {
		rec.MIMEType = defaults.MIMEType
	}
	if rec.VideoCodec == "" {
		rec.VideoCodec = defaults.VideoCodec
	}
	if rec.AudioCodec == "" {
		rec.AudioCodec = defaults.AudioCodec
	}
	if rec.ChunkBytes <= 0 {
		rec.ChunkBytes = defaults.ChunkBytes
	}
	return &Pipeline{
		host:     opts.Host,
		policy:   policy,
		recorder: rec,
		observer: opts.Observer,
		logger:   logging.NewComponentLogger(opts.Logger, "export"),
		active:   make(map[string]*Job),
	}, nil
}

// Policy returns the configured stop policy.
func (p *Pipeline) Policy() StopPolicy { return p.policy }

// Active returns the running job for a session, if any.
func (p *Pipeline) Active(sessionID string) (JobSnapshot, bool) {
	p.mu.Lock()
	job, ok := p.active[sessionID]
	p.mu.Unlock()
	if !ok {
		return JobSnapshot{}, false
	}
	return job.Snapshot(), true
}

// Cancel aborts the running export of a session. It reports whether a job was
// found.
func (p *Pipeline) Cancel(sessionID string) bool {
	p.mu.Lock()
	job, ok := p.active[sessionID]
	p.mu.Unlock()
	if ok {
		job.Cancel()
	}
	return ok
}

// Export performs one real-time playthrough of req and returns the encoded
// container. It blocks for roughly the media duration. A second call for a
// session that is already exporting fails with mediaerr.ErrExportInProgress.
// Cancelling ctx stops the recorder, discards collected chunks and fails the
// job with mediaerr.ErrCancelled.
func (p *Pipeline) Export(ctx context.Context, req Request) (*Result, error) {
	job, err := p.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	<-job.Done()
	if err := job.Err(); err != nil {
		return nil, err
	}
	return job.Result(), nil
}

// Start validates req, registers its job and runs the export in the
// background. The returned job is already visible through Active; its Done
// channel closes once it is complete or failed and the session accepts a new
// export. Cancelling ctx cancels the job.
func (p *Pipeline) Start(ctx context.Context, req Request) (*Job, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	job, err := p.begin(req, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		defer cancel()
		p.execute(ctx, job, req)
	}()
	return job, nil
}

func (p *Pipeline) execute(ctx context.Context, job *Job, req Request) {
	ctx = logging.WithSessionID(ctx, req.SessionID)
	ctx = logging.WithJobID(ctx, job.ID())
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("export started",
		logging.String("host", p.host.Name()),
		logging.String("policy", string(p.policy)),
		logging.String("video", req.Video.Name()),
		logging.String("audio", req.Audio.Name()),
	)

	res := &resources{}
	result, err := p.run(ctx, job, req, res, logger)
	if relErr := res.release(); relErr != nil {
		logger.Debug("export cleanup reported errors", logging.Error(relErr))
	}
	p.finish(job)

	if err != nil {
		if errors.Is(err, mediaerr.ErrCancelled) {
			logger.Info("export cancelled", logging.String(logging.FieldErrorHint, mediaerr.Hint(err)))
		} else {
			logging.ErrorWithContext(logger, "export failed", "export_failed",
				logging.Error(err),
				logging.String("error_kind", mediaerr.Kind(err)),
				logging.String(logging.FieldErrorHint, mediaerr.Hint(err)),
			)
		}
		job.fail(err)
		return
	}

	if result.Early != nil {
		logging.WarnWithContext(logger, "export terminated early", "export_terminated_early",
			logging.String("stop_reason", result.StopReason),
			logging.Seconds("captured", result.Duration),
			logging.String(logging.FieldImpact, "the exported file is shorter than one of the tracks"),
			logging.String(logging.FieldErrorHint, mediaerr.Hint(result.Early)),
		)
	}
	if err := job.complete(result); err != nil {
		job.fail(err)
		return
	}
	logger.Info("export complete",
		logging.Int("bytes", len(result.Data)),
		logging.Int("chunks", result.Chunks),
		logging.Seconds("duration", result.Duration),
		logging.Duration("elapsed", result.Elapsed),
	)
}

func (p *Pipeline) run(ctx context.Context, job *Job, req Request, res *resources, logger *slog.Logger) (*Result, error) {
	video, err := p.host.Load(ctx, req.Video, mediaerr.TrackVideo, true)
	if err != nil {
		return nil, asLoadError(err, mediaerr.TrackVideo, req.Video)
	}
	res.add(video)

	audio, err := p.host.Load(ctx, req.Audio, mediaerr.TrackAudio, false)
	if err != nil {
		return nil, asLoadError(err, mediaerr.TrackAudio, req.Audio)
	}
	res.add(audio)

	videoStream, err := p.host.CaptureVideo(ctx, video)
	if err != nil {
		return nil, setupError("capture video", err)
	}
	res.add(videoStream)

	audioStream, err := p.host.RouteAudio(ctx, audio)
	if err != nil {
		return nil, setupError("route audio", err)
	}
	res.add(audioStream)

	combined, err := p.host.Combine(ctx, videoStream, audioStream)
	if err != nil {
		return nil, setupError("combine streams", err)
	}
	res.add(combined)
	if !hasTrack(combined, TrackKindVideo) || !hasTrack(combined, TrackKindAudio) {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "combined stream", Err: errors.New("missing video or audio track")}
	}

	recorder, err := p.host.NewRecorder(ctx, combined, p.recorder)
	if err != nil {
		return nil, setupError("create recorder", err)
	}
	if err := recorder.Start(ctx); err != nil {
		return nil, setupError("start recorder", err)
	}
	res.addFunc(recorder.Stop)
	if err := job.transition(JobCapturing); err != nil {
		return nil, err
	}

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for chunk := range recorder.Chunks() {
			job.appendChunk(chunk)
		}
	}()

	started := time.Now()
	if err := video.Play(ctx); err != nil {
		p.abortRecorder(recorder, collected, logger)
		return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "play video", "", err)
	}
	if err := audio.Play(ctx); err != nil {
		p.abortRecorder(recorder, collected, logger)
		return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "play audio", "", err)
	}
	logger.Debug("export playback started",
		logging.Seconds("video_duration", video.Duration()),
		logging.Seconds("audio_duration", audio.Duration()),
	)

	videoEndedCh, audioEndedCh := video.Ended(), audio.Ended()
	var videoEnded, audioEnded bool
	for !p.policy.shouldStop(videoEnded, audioEnded) {
		select {
		case <-ctx.Done():
			p.abortRecorder(recorder, collected, logger)
			job.discardChunks()
			return nil, mediaerr.Wrap(mediaerr.ErrCancelled, "export", "capture", "aborted", ctx.Err())
		case <-videoEndedCh:
			videoEnded = true
			videoEndedCh = nil
			logger.Debug("export video ended", logging.Duration("elapsed", time.Since(started)))
		case <-audioEndedCh:
			audioEnded = true
			audioEndedCh = nil
			logger.Debug("export audio ended", logging.Duration("elapsed", time.Since(started)))
		case <-collected:
			if err := recorder.Err(); err != nil {
				return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "record", "recorder failed", err)
			}
			return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "record", "recorder stopped before playback finished", nil)
		}
	}

	if err := recorder.Stop(); err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "stop recorder", "", err)
	}
	if err := job.transition(JobFinalizing); err != nil {
		return nil, err
	}
	select {
	case <-collected:
	case <-time.After(finalizeTimeout):
		return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "finalize", "recorder did not flush in time", nil)
	case <-ctx.Done():
		job.discardChunks()
		return nil, mediaerr.Wrap(mediaerr.ErrCancelled, "export", "finalize", "aborted", ctx.Err())
	}
	if err := recorder.Err(); err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "finalize", "recorder failed", err)
	}

	chunks := job.takeChunks()
	data := bytes.Join(chunks, nil)
	if len(data) == 0 {
		return nil, mediaerr.Wrap(mediaerr.ErrExternalTool, "export", "finalize", "recorder produced no data", nil)
	}

	result := &Result{
		JobID:      job.ID(),
		Data:       data,
		MIMEType:   recorder.MIMEType(),
		Chunks:     len(chunks),
		Elapsed:    time.Since(started),
		StopReason: stopReason(videoEnded, audioEnded),
	}
	result.Duration = capturedDuration(videoEnded, audioEnded, video.Duration(), audio.Duration())
	result.Early = earlyStop(result, videoEnded, audioEnded, video.Duration(), audio.Duration())
	return result, nil
}

// abortRecorder stops the recorder and waits briefly for its chunk channel to
// drain so the collector goroutine exits.
func (p *Pipeline) abortRecorder(rec Recorder, collected <-chan struct{}, logger *slog.Logger) {
	if err := rec.Stop(); err != nil {
		logger.Debug("recorder stop during abort failed", logging.Error(err))
	}
	select {
	case <-collected:
	case <-time.After(finalizeTimeout):
		logger.Warn("recorder did not drain after abort",
			logging.String(logging.FieldEventType, "recorder_drain_timeout"),
			logging.String(logging.FieldImpact, "a recorder process may linger"),
			logging.String(logging.FieldErrorHint, "check for stray ffmpeg or chrome processes"),
		)
	}
}

func (p *Pipeline) begin(req Request, cancel func()) (*Job, error) {
	p.mu.Lock()
	if existing, ok := p.active[req.SessionID]; ok {
		p.mu.Unlock()
		return nil, fmt.Errorf("session %s: job %s: %w", req.SessionID, existing.ID(), mediaerr.ErrExportInProgress)
	}
	job := newJob(req, p.observer, cancel)
	p.active[req.SessionID] = job
	p.mu.Unlock()
	job.notify(job.Snapshot())
	return job, nil
}

func (p *Pipeline) finish(job *Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active[job.sessionID] == job {
		delete(p.active, job.sessionID)
	}
}

func validateRequest(req Request) error {
	switch {
	case strings.TrimSpace(req.SessionID) == "":
		return mediaerr.Wrap(mediaerr.ErrValidation, "export", "request", "session id is required", nil)
	case req.Video.IsZero():
		return mediaerr.Wrap(mediaerr.ErrValidation, "export", "request", "video source is required", nil)
	case req.Audio.IsZero():
		return mediaerr.Wrap(mediaerr.ErrValidation, "export", "request", "dub audio is required", nil)
	}
	return nil
}

func capturedDuration(videoEnded, audioEnded bool, videoDuration, audioDuration float64) float64 {
	switch {
	case videoEnded && audioEnded:
		return math.Max(videoDuration, audioDuration)
	case videoEnded:
		return videoDuration
	case audioEnded:
		return audioDuration
	default:
		return 0
	}
}

func earlyStop(res *Result, videoEnded, audioEnded bool, videoDuration, audioDuration float64) *mediaerr.TerminatedEarlyError {
	if videoEnded && audioEnded {
		return nil
	}
	if math.Abs(videoDuration-audioDuration) <= endTolerance {
		return nil
	}
	return &mediaerr.TerminatedEarlyError{
		Reason:        res.StopReason,
		StoppedAt:     res.Duration,
		VideoDuration: videoDuration,
		AudioDuration: audioDuration,
	}
}

func asLoadError(err error, track mediaerr.Track, src session.Source) error {
	var loadErr *mediaerr.SourceLoadError
	if errors.As(err, &loadErr) || errors.Is(err, mediaerr.ErrCaptureUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return mediaerr.Wrap(mediaerr.ErrCancelled, "export", "load "+string(track), "aborted", err)
	}
	return &mediaerr.SourceLoadError{Track: track, Source: src.Path, Err: err}
}

func setupError(step string, err error) error {
	if errors.Is(err, mediaerr.ErrCaptureUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return mediaerr.Wrap(mediaerr.ErrCancelled, "export", step, "aborted", err)
	}
	return mediaerr.Wrap(mediaerr.ErrExternalTool, "export", step, "", err)
}

func hasTrack(stream Stream, kind TrackKind) bool {
	for _, t := range stream.Tracks() {
		if t.Kind == kind {
			return true
		}
	}
	return false
}

// resources releases everything an export acquired, newest first.
type resources struct {
	closers []func() error
}

func (r *resources) add(c io.Closer) {
	r.closers = append(r.closers, c.Close)
}

func (r *resources) addFunc(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *resources) release() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

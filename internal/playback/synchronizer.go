package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// DefaultDriftThreshold is the audio/video offset, in seconds, beyond which the
// audio is re-aligned.
const DefaultDriftThreshold = 0.3

var (
	ErrNotLoaded = errors.New("video not loaded")
	ErrErrored   = errors.New("session is in an error state")
	ErrNoDub     = errors.New("no dub audio attached")
)

// Options configures a Synchronizer.
type Options struct {
	DriftThreshold float64
	Logger         *slog.Logger
}

// Status is a point-in-time view of the synchronizer.
type Status struct {
	Session       session.Snapshot `json:"session"`
	State         string           `json:"state"`
	VideoPosition float64          `json:"video_position"`
	AudioPosition float64          `json:"audio_position"`
	AudioPlaying  bool             `json:"audio_playing"`
	Drift         float64          `json:"drift"`
	Corrections   int              `json:"corrections"`
	Error         string           `json:"error,omitempty"`
}

// Synchronizer drives a video element and an optional dub audio element as one
// timeline, correcting audio drift against the video.
type Synchronizer struct {
	mu          sync.Mutex
	sess        *session.Session
	video       Element
	audio       Element
	state       State
	loadErr     error
	threshold   float64
	corrections int
	logger      *slog.Logger

	wake   chan struct{}
	subsMu sync.Mutex
	subs   map[int]chan Status
	nextID int
}

// New creates a synchronizer for sess. No elements are attached yet.
func New(sess *session.Session, opts Options) *Synchronizer {
	threshold := opts.DriftThreshold
	if threshold <= 0 {
		threshold = DefaultDriftThreshold
	}
	logger := logging.NewComponentLogger(opts.Logger, "playback")
	if sess != nil {
		logger = logger.With(logging.String(logging.FieldSessionID, sess.ID))
	}
	return &Synchronizer{
		sess:      sess,
		threshold: threshold,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		subs:      make(map[int]chan Status),
	}
}

// Session returns the underlying session. Callers must not mutate it while the
// synchronizer is running; use Status for reads.
func (s *Synchronizer) Session() *session.Session {
	return s.sess
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load opens the session video through opener. A failure is fatal to the
// session: the synchronizer enters StateErrored and rejects further controls.
func (s *Synchronizer) Load(ctx context.Context, opener Opener) error {
	el, err := opener.OpenVideo(ctx, s.sess.Video)
	if err != nil {
		var loadErr *mediaerr.SourceLoadError
		if !errors.As(err, &loadErr) {
			err = &mediaerr.SourceLoadError{Track: mediaerr.TrackVideo, Source: s.sess.Video.Path, Err: err}
		}
		s.fail(err)
		return err
	}
	return s.AttachVideo(el)
}

// AttachVideo installs an already opened video element and moves the session to
// MetadataReady.
func (s *Synchronizer) AttachVideo(el Element) error {
	s.mu.Lock()
	if s.state != StateUnloaded {
		s.mu.Unlock()
		_ = el.Close()
		return fmt.Errorf("attach video: synchronizer is %s", s.state)
	}
	if err := s.sess.SetDuration(el.Duration()); err != nil {
		s.mu.Unlock()
		_ = el.Close()
		loadErr := &mediaerr.SourceLoadError{Track: mediaerr.TrackVideo, Source: s.sess.Video.Path, Err: err}
		s.fail(loadErr)
		return loadErr
	}
	s.video = el
	s.state = StateMetadataReady
	s.applyMutesLocked()
	s.logger.Info("video metadata ready",
		logging.String("video", s.sess.Video.Name()),
		logging.Seconds("duration", s.sess.Duration),
	)
	s.mu.Unlock()
	s.signal()
	return nil
}

// LoadAudio opens a dub source through opener and attaches it. A load failure
// degrades the session to original-audio-only playback and is returned to the
// caller; the synchronizer state is unchanged.
func (s *Synchronizer) LoadAudio(ctx context.Context, opener Opener, src session.Source) error {
	if err := s.requireLoaded(); err != nil {
		return err
	}
	el, err := opener.OpenAudio(ctx, src)
	if err != nil {
		var loadErr *mediaerr.SourceLoadError
		if !errors.As(err, &loadErr) {
			err = &mediaerr.SourceLoadError{Track: mediaerr.TrackAudio, Source: src.Path, Err: err}
		}
		s.mu.Lock()
		s.dropAudioLocked()
		s.applyMutesLocked()
		s.mu.Unlock()
		logging.WarnWithContext(s.logger, "dub audio failed to load", "audio_load_failed",
			logging.String("audio", src.Path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "preview continues with original audio only"),
			logging.String(logging.FieldErrorHint, mediaerr.Hint(err)),
		)
		s.signal()
		return err
	}
	return s.AttachAudio(src, el)
}

// AttachAudio installs an opened dub element, replacing any previous one. The
// new element is aligned to the video and started when the dub is enabled and
// the video is playing.
func (s *Synchronizer) AttachAudio(src session.Source, el Element) error {
	s.mu.Lock()
	if !s.state.loaded() {
		state := s.state
		s.mu.Unlock()
		_ = el.Close()
		if state == StateErrored {
			return ErrErrored
		}
		return session.ErrDurationUnknown
	}
	if err := s.sess.AttachAudio(src); err != nil {
		s.mu.Unlock()
		_ = el.Close()
		return err
	}
	if s.audio != nil {
		_ = s.audio.Close()
	}
	s.audio = el
	s.applyMutesLocked()
	s.alignAudioLocked()
	if s.sess.Playing && s.sess.DubEnabled {
		s.playAudioLocked()
	}
	s.logger.Info("dub audio attached",
		logging.String("audio", src.Name()),
		logging.Seconds("duration", el.Duration()),
	)
	s.mu.Unlock()
	s.signal()
	return nil
}

// DetachAudio removes the dub and returns to original-audio playback.
func (s *Synchronizer) DetachAudio() {
	s.mu.Lock()
	s.dropAudioLocked()
	s.applyMutesLocked()
	s.mu.Unlock()
	s.signal()
}

// TogglePlay starts both elements from aligned positions when paused, or pauses
// both when playing. Playing after the video ended starts again from zero.
func (s *Synchronizer) TogglePlay() error {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	if err := s.requireLoadedLocked(); err != nil {
		return err
	}

	if s.sess.Playing {
		if err := s.video.Pause(); err != nil {
			return fmt.Errorf("pause video: %w", err)
		}
		if s.audio != nil {
			if err := s.audio.Pause(); err != nil {
				s.logger.Debug("pause audio failed", logging.Error(err))
			}
		}
		s.sess.Playing = false
		s.state = StatePaused
		return nil
	}

	if s.state == StateEnded {
		if err := s.video.Seek(0); err != nil {
			return fmt.Errorf("rewind video: %w", err)
		}
		s.sess.SetCurrentTime(0)
	}
	if err := s.video.Play(); err != nil {
		return fmt.Errorf("play video: %w", err)
	}
	s.sess.Playing = true
	s.state = StatePlaying
	if s.sess.DubEnabled && s.audio != nil {
		s.alignAudioLocked()
		s.playAudioLocked()
	}
	return nil
}

// Seek moves the video to t clamped to [0, duration] and aligns the audio to
// it. The play state is unchanged.
func (s *Synchronizer) Seek(t float64) (float64, error) {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	if err := s.requireLoadedLocked(); err != nil {
		return 0, err
	}
	target := s.sess.Clamp(t)
	if err := s.video.Seek(target); err != nil {
		return s.sess.CurrentTime, fmt.Errorf("seek video: %w", err)
	}
	s.sess.CurrentTime = target
	if s.audio != nil {
		if err := s.audio.Seek(target); err != nil {
			s.logger.Debug("seek audio failed", logging.Error(err))
		}
	}
	if s.state == StateEnded && target < s.sess.Duration {
		s.state = StatePaused
	}
	return target, nil
}

// HandleTimeAdvance records the video's reported position and corrects the
// audio when it is playing and has drifted beyond the threshold. It reports
// whether a correction was applied. Correction failures are logged and retried
// on the next tick.
func (s *Synchronizer) HandleTimeAdvance(reported float64) bool {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	if !s.state.loaded() {
		return false
	}
	s.sess.CurrentTime = s.sess.Clamp(reported)
	if s.audio == nil || s.audio.Paused() {
		return false
	}
	drift := math.Abs(s.audio.Position() - reported)
	if drift <= s.threshold {
		return false
	}
	if err := s.audio.Seek(reported); err != nil {
		wrapped := mediaerr.Wrap(mediaerr.ErrDriftCorrection, "playback", "align audio", "", err)
		logging.WarnWithContext(s.logger, "drift correction failed", "drift_correction_failed",
			logging.Seconds("drift", drift),
			logging.Seconds("target", reported),
			logging.Error(wrapped),
			logging.String(logging.FieldImpact, "dub may be out of sync until the next tick"),
			logging.String(logging.FieldErrorHint, "retrying on next time update"),
		)
		return false
	}
	s.corrections++
	s.logger.Debug("audio drift corrected",
		logging.Seconds("drift", drift),
		logging.Seconds("target", reported),
	)
	return true
}

// SetDubEnabled switches between the original soundtrack and the dub. Enabling
// while playing aligns the audio and starts it; disabling pauses the audio and
// keeps its position.
func (s *Synchronizer) SetDubEnabled(on bool) error {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	if err := s.requireLoadedLocked(); err != nil {
		return err
	}
	if on && s.audio == nil {
		return ErrNoDub
	}
	s.sess.DubEnabled = on
	s.applyMutesLocked()
	if s.audio == nil {
		return nil
	}
	if on {
		if s.sess.Playing {
			s.alignAudioLocked()
			s.playAudioLocked()
		}
		return nil
	}
	if err := s.audio.Pause(); err != nil {
		s.logger.Debug("pause audio failed", logging.Error(err))
	}
	return nil
}

// SetGlobalMuted mutes or unmutes the presentation without touching play state.
func (s *Synchronizer) SetGlobalMuted(muted bool) error {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	if err := s.requireLoadedLocked(); err != nil {
		return err
	}
	s.sess.GlobalMuted = muted
	s.applyMutesLocked()
	return nil
}

// HandleVideoEnded stops playback and rewinds the audio to zero.
func (s *Synchronizer) HandleVideoEnded() {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	if !s.state.loaded() {
		return
	}
	s.sess.Playing = false
	s.sess.CurrentTime = s.sess.Duration
	s.state = StateEnded
	if s.audio != nil {
		if err := s.audio.Pause(); err != nil {
			s.logger.Debug("pause audio failed", logging.Error(err))
		}
		if err := s.audio.Seek(0); err != nil {
			s.logger.Debug("rewind audio failed", logging.Error(err))
		}
	}
	s.logger.Info("video ended", logging.Seconds("position", s.sess.Duration))
}

// HandleVideoError moves the session to the terminal error state.
func (s *Synchronizer) HandleVideoError(err error) {
	if err == nil {
		return
	}
	var loadErr *mediaerr.SourceLoadError
	if !errors.As(err, &loadErr) {
		err = &mediaerr.SourceLoadError{Track: mediaerr.TrackVideo, Source: s.sess.Video.Path, Err: err}
	}
	s.fail(err)
}

// Restart sets both positions to zero and keeps the play state. After the video
// ended the session returns to Paused.
func (s *Synchronizer) Restart() error {
	s.mu.Lock()
	defer s.signal()
	defer s.mu.Unlock()
	if err := s.requireLoadedLocked(); err != nil {
		return err
	}
	if err := s.video.Seek(0); err != nil {
		return fmt.Errorf("rewind video: %w", err)
	}
	if s.audio != nil {
		if err := s.audio.Seek(0); err != nil {
			s.logger.Debug("rewind audio failed", logging.Error(err))
		}
	}
	s.sess.CurrentTime = 0
	if s.state == StateEnded {
		s.state = StatePaused
	}
	return nil
}

// Status returns a snapshot of the session and element positions.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// Subscribe returns a channel receiving a Status after every change, and a
// function that releases it. Slow subscribers miss intermediate updates.
func (s *Synchronizer) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 8)
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

// Run dispatches element events until ctx ends or the video element closes its
// event channel.
func (s *Synchronizer) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		var videoEvents, audioEvents <-chan Event
		if s.video != nil {
			videoEvents = s.video.Events()
		}
		if s.audio != nil {
			audioEvents = s.audio.Events()
		}
		audio := s.audio
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case evt, ok := <-videoEvents:
			if !ok {
				return nil
			}
			switch evt.Type {
			case EventTimeAdvance:
				s.HandleTimeAdvance(evt.Position)
			case EventEnded:
				s.HandleVideoEnded()
			case EventError:
				s.HandleVideoError(evt.Err)
				return evt.Err
			}
		case evt, ok := <-audioEvents:
			if !ok {
				s.detachIfCurrent(audio)
				continue
			}
			if evt.Type == EventError {
				logging.WarnWithContext(s.logger, "dub audio failed during playback", "audio_playback_failed",
					logging.Error(evt.Err),
					logging.String(logging.FieldImpact, "preview continues with original audio only"),
				)
				s.detachIfCurrent(audio)
			}
		}
	}
}

// Close releases both elements.
func (s *Synchronizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.audio != nil {
		errs = append(errs, s.audio.Close())
		s.audio = nil
	}
	if s.video != nil {
		errs = append(errs, s.video.Close())
		s.video = nil
	}
	s.sess.Playing = false
	return errors.Join(errs...)
}

func (s *Synchronizer) detachIfCurrent(el Element) {
	s.mu.Lock()
	if s.audio != nil && s.audio == el {
		s.dropAudioLocked()
		s.applyMutesLocked()
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Synchronizer) fail(err error) {
	s.mu.Lock()
	s.state = StateErrored
	s.loadErr = err
	s.sess.Playing = false
	if s.video != nil {
		_ = s.video.Pause()
	}
	if s.audio != nil {
		_ = s.audio.Pause()
	}
	s.mu.Unlock()
	logging.ErrorWithContext(s.logger, "video source failed", "video_load_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, mediaerr.Hint(err)),
	)
	s.signal()
}

func (s *Synchronizer) requireLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requireLoadedLocked()
}

func (s *Synchronizer) requireLoadedLocked() error {
	switch {
	case s.state == StateErrored:
		return fmt.Errorf("%w: %w", ErrErrored, s.loadErr)
	case !s.state.loaded() || s.video == nil:
		return ErrNotLoaded
	}
	return nil
}

func (s *Synchronizer) dropAudioLocked() {
	if s.audio != nil {
		_ = s.audio.Close()
		s.audio = nil
	}
	s.sess.ClearAudio()
}

func (s *Synchronizer) alignAudioLocked() {
	if s.audio == nil || s.video == nil {
		return
	}
	if err := s.audio.Seek(s.video.Position()); err != nil {
		s.logger.Debug("align audio failed", logging.Error(err))
	}
}

func (s *Synchronizer) playAudioLocked() {
	if err := s.audio.Play(); err != nil {
		logging.WarnWithContext(s.logger, "dub audio failed to start", "audio_play_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "dub is silent until playback restarts"),
		)
	}
}

func (s *Synchronizer) applyMutesLocked() {
	if s.video != nil {
		if err := s.video.SetMuted(s.sess.OriginalMuted()); err != nil {
			s.logger.Debug("mute video failed", logging.Error(err))
		}
	}
	if s.audio != nil {
		if err := s.audio.SetMuted(s.sess.DubMuted()); err != nil {
			s.logger.Debug("mute audio failed", logging.Error(err))
		}
	}
}

func (s *Synchronizer) statusLocked() Status {
	st := Status{
		Session:     s.sess.Snapshot(),
		State:       s.state.String(),
		Corrections: s.corrections,
	}
	if s.video != nil {
		st.VideoPosition = s.video.Position()
	}
	if s.audio != nil {
		st.AudioPosition = s.audio.Position()
		st.AudioPlaying = !s.audio.Paused()
		st.Drift = st.AudioPosition - st.VideoPosition
	}
	if s.loadErr != nil {
		st.Error = s.loadErr.Error()
	}
	return st
}

// signal wakes Run and publishes the current status. It must be called without
// s.mu held.
func (s *Synchronizer) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	st := s.Status()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

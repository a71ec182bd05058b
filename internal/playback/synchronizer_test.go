package playback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/session"
)

type fixture struct {
	sync  *playback.Synchronizer
	video *fakeElement
	audio *fakeElement
}

func newFixture(t *testing.T, videoDuration, audioDuration float64) fixture {
	t.Helper()
	sess, err := session.New(session.Source{Path: "/media/talk.mp4"})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	opener := &fakeOpener{video: newFakeElement(videoDuration), audio: newFakeElement(audioDuration)}
	s := playback.New(sess, playback.Options{})
	if err := s.Load(context.Background(), opener); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.LoadAudio(context.Background(), opener, session.Source{Path: "/media/dub.wav"}); err != nil {
		t.Fatalf("LoadAudio: %v", err)
	}
	return fixture{sync: s, video: opener.video, audio: opener.audio}
}

func TestLoadReachesMetadataReady(t *testing.T) {
	f := newFixture(t, 10, 10)
	if got := f.sync.State(); got != playback.StateMetadataReady {
		t.Fatalf("expected metadata_ready, got %s", got)
	}
	if st := f.sync.Status(); st.Session.Duration != 10 || !st.Session.DurationKnown {
		t.Fatalf("expected known duration 10, got %+v", st.Session)
	}
}

func TestEffectiveMutesAppliedToElements(t *testing.T) {
	tests := []struct {
		globalMuted bool
		dubEnabled  bool
		videoMuted  bool
		audioMuted  bool
	}{
		{false, false, false, false},
		{false, true, true, false},
		{true, false, true, true},
		{true, true, true, true},
	}
	for _, tt := range tests {
		f := newFixture(t, 10, 10)
		if err := f.sync.SetDubEnabled(tt.dubEnabled); err != nil {
			t.Fatalf("SetDubEnabled: %v", err)
		}
		if err := f.sync.SetGlobalMuted(tt.globalMuted); err != nil {
			t.Fatalf("SetGlobalMuted: %v", err)
		}
		if f.video.Muted() != tt.videoMuted || f.audio.Muted() != tt.audioMuted {
			t.Errorf("global=%v dub=%v: video muted=%v audio muted=%v, want %v/%v",
				tt.globalMuted, tt.dubEnabled, f.video.Muted(), f.audio.Muted(), tt.videoMuted, tt.audioMuted)
		}
	}
}

func TestSetGlobalMutedKeepsPlayState(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if err := f.sync.SetGlobalMuted(true); err != nil {
		t.Fatalf("SetGlobalMuted: %v", err)
	}
	if !f.sync.Status().Session.Playing || f.video.Paused() {
		t.Fatal("muting must not pause playback")
	}
}

func TestSeekClampsAndAlignsAudio(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{4.25, 4.25},
		{15, 10},
	}
	for _, tt := range tests {
		f := newFixture(t, 10, 12)
		got, err := f.sync.Seek(tt.in)
		if err != nil {
			t.Fatalf("Seek(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Seek(%v) = %v, want %v", tt.in, got, tt.want)
		}
		if f.video.Position() != tt.want || f.audio.Position() != tt.want {
			t.Errorf("Seek(%v): video=%v audio=%v, want both %v", tt.in, f.video.Position(), f.audio.Position(), tt.want)
		}
		st := f.sync.Status()
		if st.Session.CurrentTime != tt.want {
			t.Errorf("Seek(%v): currentTime=%v", tt.in, st.Session.CurrentTime)
		}
		if st.Session.Playing {
			t.Errorf("Seek(%v) must not start playback", tt.in)
		}
	}
}

func TestSeekWhilePlayingKeepsPlaying(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if _, err := f.sync.Seek(3); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if !f.sync.Status().Session.Playing {
		t.Fatal("expected playback to continue after seek")
	}
}

func TestDriftThreshold(t *testing.T) {
	const eps = 0.01
	tests := []struct {
		name      string
		audioPos  float64
		corrected bool
	}{
		{"below threshold ahead", 5 + 0.3 - eps, false},
		{"below threshold behind", 5 - 0.3 + eps, false},
		{"above threshold ahead", 5 + 0.3 + eps, true},
		{"above threshold behind", 5 - 0.3 - eps, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10, 10)
			if err := f.sync.SetDubEnabled(true); err != nil {
				t.Fatalf("SetDubEnabled: %v", err)
			}
			if err := f.sync.TogglePlay(); err != nil {
				t.Fatalf("TogglePlay: %v", err)
			}
			f.audio.setPosition(tt.audioPos)
			f.video.setPosition(5)

			if got := f.sync.HandleTimeAdvance(5); got != tt.corrected {
				t.Fatalf("HandleTimeAdvance corrected=%v, want %v", got, tt.corrected)
			}
			want := tt.audioPos
			if tt.corrected {
				want = 5
			}
			if f.audio.Position() != want {
				t.Fatalf("audio position %v, want %v", f.audio.Position(), want)
			}
			if f.video.Position() != 5 {
				t.Fatalf("video must never be moved by drift correction, got %v", f.video.Position())
			}
			if f.sync.Status().Session.CurrentTime != 5 {
				t.Fatal("expected currentTime to follow the reported position")
			}
		})
	}
}

func TestDriftIgnoredWhileAudioPaused(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	f.audio.setPosition(1)
	if f.sync.HandleTimeAdvance(6) {
		t.Fatal("paused audio must not be corrected")
	}
}

func TestDriftCorrectionFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.SetDubEnabled(true); err != nil {
		t.Fatalf("SetDubEnabled: %v", err)
	}
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	f.audio.setPosition(1)
	f.audio.seekErr = errors.New("busy")
	if f.sync.HandleTimeAdvance(4) {
		t.Fatal("failed correction must not report success")
	}
	if st := f.sync.State(); st != playback.StatePlaying {
		t.Fatalf("expected playback to continue, got %s", st)
	}
	f.audio.seekErr = nil
	if !f.sync.HandleTimeAdvance(4.5) {
		t.Fatal("expected correction to be retried on the next tick")
	}
}

func TestTogglePlayStartsAlignedAudio(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.SetDubEnabled(true); err != nil {
		t.Fatalf("SetDubEnabled: %v", err)
	}
	f.video.setPosition(7)
	f.audio.setPosition(3)

	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if f.video.Paused() || f.audio.Paused() {
		t.Fatal("expected both elements playing")
	}
	if f.audio.Position() != 7 {
		t.Fatalf("expected audio aligned to 7, got %v", f.audio.Position())
	}

	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if !f.video.Paused() || !f.audio.Paused() {
		t.Fatal("expected both elements paused")
	}
	if f.sync.State() != playback.StatePaused {
		t.Fatalf("expected paused, got %s", f.sync.State())
	}
}

func TestTogglePlayWithoutDubLeavesAudioPaused(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if !f.audio.Paused() {
		t.Fatal("audio must stay paused while the dub is disabled")
	}
}

func TestSetDubEnabledWhilePlaying(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	f.video.setPosition(4)

	if err := f.sync.SetDubEnabled(true); err != nil {
		t.Fatalf("SetDubEnabled(true): %v", err)
	}
	if f.audio.Paused() || f.audio.Position() != 4 {
		t.Fatalf("expected audio playing at 4, got paused=%v pos=%v", f.audio.Paused(), f.audio.Position())
	}

	f.audio.setPosition(4.2)
	if err := f.sync.SetDubEnabled(false); err != nil {
		t.Fatalf("SetDubEnabled(false): %v", err)
	}
	if !f.audio.Paused() {
		t.Fatal("expected audio paused")
	}
	if f.audio.Position() != 4.2 {
		t.Fatalf("expected audio position preserved, got %v", f.audio.Position())
	}
	if f.video.Muted() {
		t.Fatal("original audio should be audible again")
	}
}

func TestSetDubEnabledRequiresAudio(t *testing.T) {
	sess, _ := session.New(session.Source{Path: "v.mp4"})
	s := playback.New(sess, playback.Options{})
	if err := s.AttachVideo(newFakeElement(5)); err != nil {
		t.Fatalf("AttachVideo: %v", err)
	}
	if err := s.SetDubEnabled(true); !errors.Is(err, playback.ErrNoDub) {
		t.Fatalf("expected ErrNoDub, got %v", err)
	}
}

func TestVideoEndedStopsAndRewindsAudio(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.SetDubEnabled(true); err != nil {
		t.Fatalf("SetDubEnabled: %v", err)
	}
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	f.audio.setPosition(9.8)

	f.sync.HandleVideoEnded()

	st := f.sync.Status()
	if st.Session.Playing {
		t.Fatal("expected playing=false after end")
	}
	if !f.audio.Paused() || f.audio.Position() != 0 {
		t.Fatalf("expected audio paused at 0, got paused=%v pos=%v", f.audio.Paused(), f.audio.Position())
	}
	if f.sync.State() != playback.StateEnded {
		t.Fatalf("expected ended, got %s", f.sync.State())
	}
}

func TestPlayAfterEndStartsFromZero(t *testing.T) {
	f := newFixture(t, 10, 10)
	f.video.setPosition(10)
	f.sync.HandleVideoEnded()
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	if f.video.Position() != 0 || f.sync.State() != playback.StatePlaying {
		t.Fatalf("expected playing from 0, got pos=%v state=%s", f.video.Position(), f.sync.State())
	}
}

func TestRestartIsIdempotentAndPreservesPlayState(t *testing.T) {
	for _, playing := range []bool{false, true} {
		f := newFixture(t, 10, 10)
		if playing {
			if err := f.sync.TogglePlay(); err != nil {
				t.Fatalf("TogglePlay: %v", err)
			}
		}
		f.video.setPosition(6)
		f.audio.setPosition(6.1)
		for range 2 {
			if err := f.sync.Restart(); err != nil {
				t.Fatalf("Restart: %v", err)
			}
			st := f.sync.Status()
			if f.video.Position() != 0 || f.audio.Position() != 0 || st.Session.CurrentTime != 0 {
				t.Fatalf("expected zero positions, got video=%v audio=%v current=%v", f.video.Position(), f.audio.Position(), st.Session.CurrentTime)
			}
			if st.Session.Playing != playing {
				t.Fatalf("restart changed playing from %v to %v", playing, st.Session.Playing)
			}
		}
	}
}

func TestRestartAfterEndReturnsToPaused(t *testing.T) {
	f := newFixture(t, 10, 10)
	f.sync.HandleVideoEnded()
	if err := f.sync.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if f.sync.State() != playback.StatePaused {
		t.Fatalf("expected paused, got %s", f.sync.State())
	}
}

func TestVideoLoadFailureIsFatal(t *testing.T) {
	sess, _ := session.New(session.Source{Path: "broken.mp4"})
	s := playback.New(sess, playback.Options{})
	err := s.Load(context.Background(), &fakeOpener{videoErr: errors.New("invalid data")})
	if !errors.Is(err, mediaerr.ErrSourceLoad) {
		t.Fatalf("expected source load error, got %v", err)
	}
	if s.State() != playback.StateErrored {
		t.Fatalf("expected errored, got %s", s.State())
	}
	if err := s.TogglePlay(); !errors.Is(err, playback.ErrErrored) {
		t.Fatalf("expected ErrErrored, got %v", err)
	}
	if err := s.LoadAudio(context.Background(), &fakeOpener{audio: newFakeElement(3)}, session.Source{Path: "dub.wav"}); err == nil {
		t.Fatal("dub must be unavailable after a video load failure")
	}
}

func TestAudioLoadFailureDegradesToOriginal(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.SetDubEnabled(true); err != nil {
		t.Fatalf("SetDubEnabled: %v", err)
	}

	err := f.sync.LoadAudio(context.Background(), &fakeOpener{audioErr: errors.New("corrupt")}, session.Source{Path: "bad.wav"})
	var loadErr *mediaerr.SourceLoadError
	if !errors.As(err, &loadErr) || loadErr.Track != mediaerr.TrackAudio {
		t.Fatalf("expected audio SourceLoadError, got %v", err)
	}
	st := f.sync.Status()
	if st.Session.Audio != nil || st.Session.DubEnabled {
		t.Fatalf("expected dub cleared, got %+v", st.Session)
	}
	if f.sync.State() != playback.StateMetadataReady {
		t.Fatalf("audio failure must not change state, got %s", f.sync.State())
	}
	if f.video.Muted() {
		t.Fatal("original audio must be audible after degrading")
	}
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("preview should continue: %v", err)
	}
}

func TestAttachAudioReplacesPrevious(t *testing.T) {
	f := newFixture(t, 10, 10)
	next := newFakeElement(9)
	if err := f.sync.AttachAudio(session.Source{Path: "dub2.wav"}, next); err != nil {
		t.Fatalf("AttachAudio: %v", err)
	}
	if !f.audio.isClosed() {
		t.Fatal("expected previous audio element closed")
	}
	if got := f.sync.Status().Session.Audio.Path; got != "dub2.wav" {
		t.Fatalf("unexpected audio %q", got)
	}
}

func TestRunDispatchesElementEvents(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.SetDubEnabled(true); err != nil {
		t.Fatalf("SetDubEnabled: %v", err)
	}
	if err := f.sync.TogglePlay(); err != nil {
		t.Fatalf("TogglePlay: %v", err)
	}
	updates, release := f.sync.Subscribe()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.sync.Run(ctx) }()

	f.audio.setPosition(1)
	f.video.events <- playback.Event{Type: playback.EventTimeAdvance, Position: 2}
	f.video.events <- playback.Event{Type: playback.EventEnded, Position: 10}

	for {
		select {
		case st := <-updates:
			if st.State == playback.StateEnded.String() {
				if st.Corrections != 1 {
					t.Fatalf("expected one drift correction, got %d", st.Corrections)
				}
				cancel()
				<-done
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for ended state")
		}
	}
}

func TestRunStopsOnVideoError(t *testing.T) {
	f := newFixture(t, 10, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	boom := errors.New("decoder crashed")
	f.video.events <- playback.Event{Type: playback.EventError, Err: boom}

	if err := f.sync.Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected decoder error, got %v", err)
	}
	if f.sync.State() != playback.StateErrored {
		t.Fatalf("expected errored, got %s", f.sync.State())
	}
}

func TestCloseReleasesElements(t *testing.T) {
	f := newFixture(t, 10, 10)
	if err := f.sync.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.video.isClosed() || !f.audio.isClosed() {
		t.Fatal("expected both elements closed")
	}
}

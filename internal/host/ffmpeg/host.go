package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"dubsync/internal/config"
	"dubsync/internal/export"
	"dubsync/internal/logging"
	"dubsync/internal/media/ffprobe"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// ProbeFunc reads source metadata.
type ProbeFunc func(ctx context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error)

// CommandFunc builds the recorder process.
type CommandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// Host records exports with ffmpeg.
type Host struct {
	Binary   string
	Probe    ProbeFunc
	Command  CommandFunc
	LookPath func(string) (string, error)
	Logger   *slog.Logger
}

// New returns a Host configured from cfg.
func New(cfg *config.Config, logger *slog.Logger) *Host {
	probeBinary := cfg.Export.FFprobeBinary
	return &Host{
		Binary: cfg.Export.FFmpegBinary,
		Probe: func(ctx context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error) {
			return ffprobe.Probe(ctx, probeBinary, src, track)
		},
		Logger: logging.NewComponentLogger(logger, "ffmpeg_host"),
	}
}

func (h *Host) Name() string { return "ffmpeg" }

func (h *Host) Load(ctx context.Context, src session.Source, track mediaerr.Track, muted bool) (export.Instance, error) {
	probe := h.Probe
	if probe == nil {
		probe = func(ctx context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error) {
			return ffprobe.Probe(ctx, "", src, track)
		}
	}
	meta, err := probe(ctx, src, track)
	if err != nil {
		return nil, err
	}
	return &instance{
		src:      src,
		track:    track,
		muted:    muted,
		duration: meta.Duration,
		ended:    make(chan struct{}),
	}, nil
}

func (h *Host) CaptureVideo(_ context.Context, inst export.Instance) (export.Stream, error) {
	in, err := h.instanceFor(inst, mediaerr.TrackVideo, "video capture")
	if err != nil {
		return nil, err
	}
	return &stream{
		tracks: []export.Track{{Kind: export.TrackKindVideo, ID: "v:" + in.src.Name()}},
		inputs: []input{{path: in.src.Path, kind: export.TrackKindVideo, inst: in}},
	}, nil
}

func (h *Host) RouteAudio(_ context.Context, inst export.Instance) (export.Stream, error) {
	in, err := h.instanceFor(inst, mediaerr.TrackAudio, "audio routing")
	if err != nil {
		return nil, err
	}
	return &stream{
		tracks: []export.Track{{Kind: export.TrackKindAudio, ID: "a:" + in.src.Name()}},
		inputs: []input{{path: in.src.Path, kind: export.TrackKindAudio, inst: in}},
	}, nil
}

func (h *Host) Combine(_ context.Context, streams ...export.Stream) (export.Stream, error) {
	combined := &stream{}
	for _, s := range streams {
		st, ok := s.(*stream)
		if !ok {
			return nil, &mediaerr.CaptureUnavailableError{Capability: "combine", Err: fmt.Errorf("foreign stream %T", s)}
		}
		combined.tracks = append(combined.tracks, st.tracks...)
		combined.inputs = append(combined.inputs, st.inputs...)
	}
	return combined, nil
}

func (h *Host) NewRecorder(_ context.Context, s export.Stream, opts export.RecorderOptions) (export.Recorder, error) {
	st, ok := s.(*stream)
	if !ok {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "recorder", Err: fmt.Errorf("foreign stream %T", s)}
	}
	binary, err := h.binary()
	if err != nil {
		return nil, err
	}
	args, err := recorderArgs(st.inputs, opts)
	if err != nil {
		return nil, err
	}
	command := h.Command
	if command == nil {
		command = exec.CommandContext
	}
	chunkBytes := opts.ChunkBytes
	if chunkBytes <= 0 {
		chunkBytes = export.DefaultRecorderOptions().ChunkBytes
	}
	logger := h.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	var clocks []*instance
	for _, in := range st.inputs {
		if in.inst != nil {
			in.inst.gate()
			clocks = append(clocks, in.inst)
		}
	}
	return &recorder{
		clocks:     clocks,
		binary:     binary,
		args:       args,
		command:    command,
		mime:       opts.MIMEType,
		chunkBytes: chunkBytes,
		chunks:     make(chan []byte, 16),
		exited:     make(chan struct{}),
		logger:     logger,
	}, nil
}

func (h *Host) binary() (string, error) {
	name := strings.TrimSpace(h.Binary)
	if name == "" {
		name = "ffmpeg"
	}
	lookPath := h.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(name)
	if err != nil {
		return "", &mediaerr.CaptureUnavailableError{Capability: "ffmpeg", Err: err}
	}
	return path, nil
}

func (h *Host) instanceFor(inst export.Instance, track mediaerr.Track, capability string) (*instance, error) {
	if _, err := h.binary(); err != nil {
		return nil, err
	}
	in, ok := inst.(*instance)
	if !ok {
		return nil, &mediaerr.CaptureUnavailableError{Capability: capability, Err: fmt.Errorf("foreign instance %T", inst)}
	}
	if in.track != track {
		return nil, &mediaerr.CaptureUnavailableError{Capability: capability, Err: fmt.Errorf("instance carries %s", in.track)}
	}
	return in, nil
}

// recorderArgs maps the video track of the first video input and the audio
// track of the first audio input. Both are padded so the output never ends on
// its own.
func recorderArgs(inputs []input, opts export.RecorderOptions) ([]string, error) {
	var videoPath, audioPath string
	for _, in := range inputs {
		switch in.kind {
		case export.TrackKindVideo:
			if videoPath == "" {
				videoPath = in.path
			}
		case export.TrackKindAudio:
			if audioPath == "" {
				audioPath = in.path
			}
		}
	}
	if videoPath == "" || audioPath == "" {
		return nil, &mediaerr.CaptureUnavailableError{Capability: "recorder", Err: errors.New("stream needs one video and one audio input")}
	}
	videoCodec := opts.VideoCodec
	if videoCodec == "" {
		videoCodec = export.DefaultRecorderOptions().VideoCodec
	}
	audioCodec := opts.AudioCodec
	if audioCodec == "" {
		audioCodec = export.DefaultRecorderOptions().AudioCodec
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-re", "-i", videoPath,
		"-re", "-i", audioPath,
		"-filter_complex", "[0:v:0]tpad=stop=-1:stop_mode=clone[v];[1:a:0]apad[a]",
		"-map", "[v]",
		"-map", "[a]",
		"-c:v", videoCodec,
	}
	if videoCodec == "libvpx-vp9" {
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	}
	args = append(args,
		"-c:a", audioCodec,
		"-f", "webm",
		"-cluster_time_limit", "1000",
		"pipe:1",
	)
	return args, nil
}

type input struct {
	path string
	kind export.TrackKind
	inst *instance
}

type stream struct {
	mu     sync.Mutex
	tracks []export.Track
	inputs []input
	closed bool
}

func (s *stream) Tracks() []export.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.Track(nil), s.tracks...)
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// instance tracks the real-time playthrough of one source. Once a recorder
// reads it, its end timer waits for ffmpeg's first output byte as well as
// Play, since ffmpeg only starts reading -re inputs after it has opened them.
type instance struct {
	src      session.Source
	track    mediaerr.Track
	muted    bool
	duration float64

	mu      sync.Mutex
	timer   *time.Timer
	playing bool
	gated   bool
	opened  bool
	ended   chan struct{}
	endOnce sync.Once
	closed  bool
}

func (i *instance) Duration() float64 { return i.duration }

func (i *instance) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return errors.New("instance closed")
	}
	i.playing = true
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	i.armLocked()
	return nil
}

// gate defers the end timer until inputsOpened.
func (i *instance) gate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.gated = true
}

// inputsOpened is called by the recorder when ffmpeg first produces output.
func (i *instance) inputsOpened() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.opened = true
	i.armLocked()
}

func (i *instance) armLocked() {
	if i.closed || !i.playing || i.timer != nil || (i.gated && !i.opened) {
		return
	}
	i.timer = time.AfterFunc(time.Duration(i.duration*float64(time.Second)), func() {
		i.endOnce.Do(func() { close(i.ended) })
	})
}

func (i *instance) Ended() <-chan struct{} { return i.ended }

func (i *instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.timer != nil {
		i.timer.Stop()
	}
	i.closed = true
	return nil
}

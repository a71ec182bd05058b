package player

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/media/ffprobe"
	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/session"
)

// ProbeFunc reads source metadata. Errors must be *mediaerr.SourceLoadError.
type ProbeFunc func(ctx context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error)

// Opener builds preview elements for session sources.
type Opener struct {
	Backend string
	FFplay  string
	Tick    time.Duration
	Probe   ProbeFunc
	Logger  *slog.Logger
}

// NewOpener returns an Opener configured from cfg.
func NewOpener(cfg *config.Config, logger *slog.Logger) *Opener {
	binary := cfg.Export.FFprobeBinary
	return &Opener{
		Backend: cfg.Playback.PreviewBackend,
		FFplay:  cfg.Playback.FFplayBinary,
		Tick:    time.Duration(cfg.Playback.TickIntervalMS) * time.Millisecond,
		Probe: func(ctx context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error) {
			return ffprobe.Probe(ctx, binary, src, track)
		},
		Logger: logging.NewComponentLogger(logger, "player"),
	}
}

func (o *Opener) OpenVideo(ctx context.Context, src session.Source) (playback.Element, error) {
	return o.open(ctx, src, mediaerr.TrackVideo)
}

func (o *Opener) OpenAudio(ctx context.Context, src session.Source) (playback.Element, error) {
	return o.open(ctx, src, mediaerr.TrackAudio)
}

func (o *Opener) open(ctx context.Context, src session.Source, track mediaerr.Track) (playback.Element, error) {
	if src.IsZero() {
		return nil, &mediaerr.SourceLoadError{Track: track, Err: fmt.Errorf("no source")}
	}
	probe := o.Probe
	if probe == nil {
		probe = func(ctx context.Context, src session.Source, track mediaerr.Track) (ffprobe.Metadata, error) {
			return ffprobe.Probe(ctx, "", src, track)
		}
	}
	meta, err := probe(ctx, src, track)
	if err != nil {
		return nil, err
	}

	logger := o.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger.Debug("source loaded",
		logging.String("track", string(track)),
		logging.String("source", src.Path),
		logging.Seconds("duration", meta.Duration),
	)

	switch strings.ToLower(strings.TrimSpace(o.Backend)) {
	case "", config.PreviewBackendFFplay:
		return NewFFplay(src.Path, meta.Duration, FFplayOptions{
			Binary:  o.FFplay,
			Tick:    o.Tick,
			Display: track == mediaerr.TrackVideo,
			Title:   src.Name(),
			Logger:  logger,
		}), nil
	case config.PreviewBackendVirtual:
		return NewClock(meta.Duration, o.Tick), nil
	default:
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "preview", "open element", "unknown preview backend "+o.Backend, nil)
	}
}

var _ playback.Opener = (*Opener)(nil)

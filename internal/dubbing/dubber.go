package dubbing

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dubsync/internal/config"
	langpkg "dubsync/internal/language"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// Request describes one dub generation.
type Request struct {
	Video    session.Source
	Language string
	// OutputPath is where the WAV is written. Defaults to
	// <video dir>/<video name>.<lang>.dub.wav.
	OutputPath string
}

// Result is a generated dub track.
type Result struct {
	Audio    session.Source
	Language langpkg.Target
	Analysis Analysis
	Duration time.Duration
}

// Dubber runs the analyze and generate round trip and stores the dub as WAV.
type Dubber struct {
	client     *Client
	sampleRate int
	logger     *slog.Logger
}

// NewDubber wraps client. sampleRate is the PCM rate the collaborator returns.
func NewDubber(client *Client, sampleRate int, logger *slog.Logger) *Dubber {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Dubber{client: client, sampleRate: sampleRate, logger: logging.NewComponentLogger(logger, "dubbing")}
}

// NewFromConfig builds a Dubber for cfg.Dubbing.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Dubber {
	client := NewClient(cfg.Dubbing.APIKey,
		WithBaseURL(cfg.Dubbing.BaseURL),
		WithTimeout(time.Duration(cfg.Dubbing.TimeoutSeconds)*time.Second),
	)
	return NewDubber(client, cfg.Dubbing.SampleRate, logger)
}

// Dub generates a dub track for req.Video.
func (d *Dubber) Dub(ctx context.Context, req Request) (Result, error) {
	var empty Result
	target, err := langpkg.ParseTarget(req.Language)
	if err != nil {
		return empty, mediaerr.Wrap(mediaerr.ErrValidation, "dubbing", "language", "", err)
	}
	if req.Video.IsZero() {
		return empty, mediaerr.Wrap(mediaerr.ErrValidation, "dubbing", "request", "video source is required", nil)
	}
	video, err := os.ReadFile(req.Video.Path)
	if err != nil {
		return empty, &mediaerr.SourceLoadError{Track: mediaerr.TrackVideo, Source: req.Video.Path, Err: err}
	}
	mimeType := req.Video.MIMEType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(req.Video.Path)))
	}
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	logger := d.logger.With(logging.String("language", target.Code), logging.String("video", req.Video.Name()))
	logger.Info("dubbing: analyzing script", logging.Int("video_bytes", len(video)))
	started := time.Now()
	analysis, err := d.client.AnalyzeScript(ctx, video, mimeType, target.Code)
	if err != nil {
		return empty, collaboratorError(ctx, "analyze", err)
	}
	logger.Info("dubbing: generating audio",
		logging.Int("speakers", len(analysis.Speakers)),
		logging.Int("transcript_chars", len(analysis.Transcript)),
		logging.Duration("analyze_elapsed", time.Since(started)),
	)

	pcm, err := d.client.GenerateAudio(ctx, analysis)
	if err != nil {
		return empty, collaboratorError(ctx, "generate", err)
	}

	out := req.OutputPath
	if out == "" {
		out = DefaultOutputPath(req.Video.Path, target.Code)
	}
	if err := WriteWAVFile(out, pcm, d.sampleRate); err != nil {
		return empty, mediaerr.Wrap(mediaerr.ErrExternalTool, "dubbing", "write wav", out, err)
	}
	duration := PCMDuration(pcm, d.sampleRate)
	logger.Info("dubbing: dub track written",
		logging.String("path", out),
		logging.Duration("audio_duration", duration),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Result{
		Audio:    session.Source{Path: out, MIMEType: "audio/wav"},
		Language: target,
		Analysis: analysis,
		Duration: duration,
	}, nil
}

// DefaultOutputPath places the dub next to the video.
func DefaultOutputPath(videoPath, lang string) string {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(filepath.Dir(videoPath), fmt.Sprintf("%s.%s.dub.wav", base, lang))
}

func collaboratorError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return mediaerr.Wrap(mediaerr.ErrCancelled, "dubbing", op, "aborted", ctx.Err())
	}
	return mediaerr.Wrap(mediaerr.ErrExternalTool, "dubbing", op, "collaborator request failed", err)
}

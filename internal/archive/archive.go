package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"

	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
)

// Progress is one encoder progress update.
type Progress struct {
	Percent float64
	Stage   string
	Message string
}

// Encoder turns an input file into an encoded file inside outputDir and
// returns its path.
type Encoder interface {
	Encode(ctx context.Context, inputPath, outputDir string, progress func(Progress)) (string, error)
}

// Library implements Encoder with the Drapto Go library.
type Library struct {
	logger *slog.Logger
}

// NewLibrary constructs a Library encoder.
func NewLibrary(logger *slog.Logger) *Library {
	return &Library{logger: logger}
}

// Encode runs one Drapto encode.
func (l *Library) Encode(ctx context.Context, inputPath, outputDir string, progress func(Progress)) (string, error) {
	if inputPath == "" {
		return "", errors.New("input path required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return "", errors.New("output directory required")
	}

	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", err
	}
	rep := newReporter(progress, l.logger)
	if _, err := encoder.EncodeWithReporter(ctx, inputPath, outputDir, rep); err != nil {
		return "", err
	}
	return OutputPath(inputPath, outputDir), nil
}

// OutputPath is the archive file Drapto writes for inputPath.
func OutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(strings.TrimSpace(outputDir), stem+".mkv")
}

// Archiver writes AV1 copies of exports into a fixed directory.
type Archiver struct {
	encoder Encoder
	dir     string
	logger  *slog.Logger
}

// New constructs an Archiver writing into dir.
func New(encoder Encoder, dir string, logger *slog.Logger) *Archiver {
	logger = logging.NewComponentLogger(logger, "archive")
	if encoder == nil {
		encoder = NewLibrary(logger)
	}
	return &Archiver{encoder: encoder, dir: dir, logger: logger}
}

// NewFromConfig returns an Archiver for cfg, or nil when archiving is disabled.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Archiver {
	if cfg == nil || !cfg.Export.ArchiveAV1 {
		return nil
	}
	return New(nil, cfg.ArchiveDir(), logger)
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string { return a.dir }

// Archive encodes exportPath and returns the archive file path.
func (a *Archiver) Archive(ctx context.Context, exportPath string) (string, error) {
	if _, err := os.Stat(exportPath); err != nil {
		return "", mediaerr.Wrap(mediaerr.ErrValidation, "archive", "stat export", "", err)
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	logger := logging.WithContext(ctx, a.logger)
	logger.Info("archive encode started",
		logging.String("input", exportPath),
		logging.String("output_dir", a.dir),
	)
	lastPercent := -1
	out, err := a.encoder.Encode(ctx, exportPath, a.dir, func(p Progress) {
		// Log at most once per ten percent.
		bucket := int(p.Percent) / 10
		if bucket == lastPercent {
			return
		}
		lastPercent = bucket
		logger.Debug("archive progress",
			logging.Float64("percent", p.Percent),
			logging.String("stage", p.Stage),
		)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", mediaerr.Wrap(mediaerr.ErrCancelled, "archive", "encode", "", ctx.Err())
		}
		return "", mediaerr.Wrap(mediaerr.ErrExternalTool, "archive", "encode", "drapto encode failed", err)
	}
	logger.Info("archive encode complete", logging.String("archive_path", out))
	return out, nil
}

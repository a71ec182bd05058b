package export

import (
	"log/slog"

	"dubsync/internal/config"
	"dubsync/internal/mediaerr"
)

// NewPipelineFromConfig builds a pipeline using cfg.Export for the stop policy
// and recorder settings.
func NewPipelineFromConfig(cfg *config.Config, host Host, observer Observer, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "export", "init", "configuration is required", nil)
	}
	policy, err := ParseStopPolicy(cfg.Export.StopPolicy)
	if err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "export", "init", "", err)
	}
	rec := DefaultRecorderOptions()
	if cfg.Export.VideoCodec != "" {
		rec.VideoCodec = cfg.Export.VideoCodec
	}
	if cfg.Export.AudioCodec != "" {
		rec.AudioCodec = cfg.Export.AudioCodec
	}
	if cfg.Export.ChunkBytes > 0 {
		rec.ChunkBytes = cfg.Export.ChunkBytes
	}
	return NewPipeline(Options{
		Host:     host,
		Policy:   policy,
		Recorder: rec,
		Observer: observer,
		Logger:   logger,
	})
}

// Package host selects the export host named by the configuration.
package host

import (
	"fmt"
	"log/slog"
	"strings"

	"dubsync/internal/config"
	"dubsync/internal/export"
	"dubsync/internal/host/browser"
	"dubsync/internal/host/ffmpeg"
	"dubsync/internal/mediaerr"
)

// New returns the host for cfg.Export.Host. Hosts holding resources also
// implement io.Closer.
func New(cfg *config.Config, logger *slog.Logger) (export.Host, error) {
	switch name := strings.ToLower(strings.TrimSpace(cfg.Export.Host)); name {
	case "", config.ExportHostFFmpeg:
		return ffmpeg.New(cfg, logger), nil
	case config.ExportHostBrowser:
		return browser.NewFromConfig(cfg, logger), nil
	default:
		return nil, mediaerr.Wrap(mediaerr.ErrConfiguration, "export", "host", "", fmt.Errorf("unknown export host %q", name))
	}
}

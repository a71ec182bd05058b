package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateDubbing(); err != nil {
		return err
	}
	if err := c.validateShare(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.DriftThresholdSeconds <= 0 {
		return errors.New("playback.drift_threshold_seconds must be positive")
	}
	if c.Playback.TickIntervalMS <= 0 {
		return errors.New("playback.tick_interval_ms must be positive")
	}
	switch c.Playback.PreviewBackend {
	case PreviewBackendFFplay, PreviewBackendVirtual:
	default:
		return fmt.Errorf("playback.preview_backend: unsupported value %q", c.Playback.PreviewBackend)
	}
	return nil
}

func (c *Config) validateExport() error {
	switch c.Export.Host {
	case ExportHostFFmpeg, ExportHostBrowser:
	default:
		return fmt.Errorf("export.host: unsupported value %q", c.Export.Host)
	}
	switch c.Export.StopPolicy {
	case "first", "both", "video":
	default:
		return fmt.Errorf("export.stop_policy: unsupported value %q (want first, both or video)", c.Export.StopPolicy)
	}
	if c.Export.Container != "webm" {
		return fmt.Errorf("export.container: unsupported value %q", c.Export.Container)
	}
	if c.Export.ChunkBytes <= 0 {
		return errors.New("export.chunk_bytes must be positive")
	}
	if c.Export.Host == ExportHostBrowser && c.Browser.TimeoutSeconds <= 0 {
		return errors.New("browser.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDubbing() error {
	if c.Dubbing.SampleRate <= 0 {
		return errors.New("dubbing.sample_rate must be positive")
	}
	if c.Dubbing.TimeoutSeconds <= 0 {
		return errors.New("dubbing.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateShare() error {
	if !c.Share.GDriveEnabled {
		return nil
	}
	if c.Share.TokenFile == "" {
		return errors.New("share.token_file is required when share.gdrive_enabled is true")
	}
	if c.Share.CredentialsFile == "" {
		return errors.New("share.credentials_file is required when share.gdrive_enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

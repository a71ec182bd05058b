package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePlayback()
	c.normalizeExport()
	c.normalizeDubbing()
	if err := c.normalizeShare(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("DUBSYNC_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizePlayback() {
	c.Playback.PreviewBackend = strings.ToLower(strings.TrimSpace(c.Playback.PreviewBackend))
	if c.Playback.PreviewBackend == "" {
		c.Playback.PreviewBackend = defaultPreviewBackend
	}
	c.Playback.FFplayBinary = strings.TrimSpace(c.Playback.FFplayBinary)
	if c.Playback.FFplayBinary == "" {
		c.Playback.FFplayBinary = defaultFFplayBinary
	}
}

func (c *Config) normalizeExport() {
	c.Export.Host = strings.ToLower(strings.TrimSpace(c.Export.Host))
	if c.Export.Host == "" {
		c.Export.Host = defaultExportHost
	}
	c.Export.StopPolicy = strings.ToLower(strings.TrimSpace(c.Export.StopPolicy))
	if c.Export.StopPolicy == "" {
		c.Export.StopPolicy = defaultStopPolicy
	}
	c.Export.Container = strings.ToLower(strings.TrimSpace(c.Export.Container))
	if c.Export.Container == "" {
		c.Export.Container = defaultContainer
	}
	if strings.TrimSpace(c.Export.FFmpegBinary) == "" {
		c.Export.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.Export.FFprobeBinary) == "" {
		c.Export.FFprobeBinary = defaultFFprobeBinary
	}
	if value, ok := os.LookupEnv("DUBSYNC_CHROME_PATH"); ok && strings.TrimSpace(c.Browser.ChromePath) == "" {
		c.Browser.ChromePath = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeDubbing() {
	if c.Dubbing.APIKey == "" {
		if value, ok := os.LookupEnv("DUBBING_API_KEY"); ok {
			c.Dubbing.APIKey = strings.TrimSpace(value)
		}
	}
	if value, ok := os.LookupEnv("DUBBING_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Dubbing.BaseURL = strings.TrimSpace(value)
	}
	c.Dubbing.BaseURL = strings.TrimRight(strings.TrimSpace(c.Dubbing.BaseURL), "/")
	if c.Dubbing.BaseURL == "" {
		c.Dubbing.BaseURL = defaultDubbingBaseURL
	}
	c.Dubbing.DefaultLanguage = strings.TrimSpace(c.Dubbing.DefaultLanguage)
}

func (c *Config) normalizeShare() error {
	var err error
	if c.Share.CredentialsFile, err = expandPath(c.Share.CredentialsFile); err != nil {
		return fmt.Errorf("share.credentials_file: %w", err)
	}
	if c.Share.TokenFile, err = expandPath(c.Share.TokenFile); err != nil {
		return fmt.Errorf("share.token_file: %w", err)
	}
	c.Share.FolderName = strings.TrimSpace(c.Share.FolderName)
	if c.Share.FolderName == "" {
		c.Share.FolderName = defaultShareFolder
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "pretty":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

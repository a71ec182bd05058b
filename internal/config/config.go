package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Playback contains configuration for the preview synchronizer and its elements.
type Playback struct {
	DriftThresholdSeconds float64 `toml:"drift_threshold_seconds"`
	TickIntervalMS        int     `toml:"tick_interval_ms"`
	PreviewBackend        string  `toml:"preview_backend"`
	FFplayBinary          string  `toml:"ffplay_binary"`
}

// Export contains configuration for the real-time export pipeline.
type Export struct {
	Host          string `toml:"host"`
	StopPolicy    string `toml:"stop_policy"`
	Container     string `toml:"container"`
	VideoCodec    string `toml:"video_codec"`
	AudioCodec    string `toml:"audio_codec"`
	ChunkBytes    int    `toml:"chunk_bytes"`
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	ArchiveAV1    bool   `toml:"archive_av1"`
}

// Browser contains configuration for the headless Chrome export host.
type Browser struct {
	ChromePath     string `toml:"chrome_path"`
	Headless       bool   `toml:"headless"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Dubbing contains configuration for the external dubbing collaborator.
type Dubbing struct {
	BaseURL         string `toml:"base_url"`
	APIKey          string `toml:"api_key"`
	SampleRate      int    `toml:"sample_rate"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	DefaultLanguage string `toml:"default_language"`
}

// Share contains configuration for uploading finished exports to Google Drive.
type Share struct {
	GDriveEnabled   bool   `toml:"gdrive_enabled"`
	CredentialsFile string `toml:"credentials_file"`
	TokenFile       string `toml:"token_file"`
	FolderName      string `toml:"folder_name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for dubsync.
//
// Configuration sections by subsystem:
//   - Paths: output, state and log directories plus the API bind address
//   - Playback: drift threshold, tick cadence and preview backend
//   - Export: capture host, stop policy, container and codecs
//   - Browser: headless Chrome settings for the browser export host
//   - Dubbing: collaborator endpoint, credentials and PCM sample rate
//   - Share: optional Google Drive upload
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Playback Playback `toml:"playback"`
	Export   Export   `toml:"export"`
	Browser  Browser  `toml:"browser"`
	Dubbing  Dubbing  `toml:"dubbing"`
	Share    Share    `toml:"share"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/dubsync/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A .env file in the working directory is read
// first so its variables act as environment fallbacks.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv never overrides variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("dubsync.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the export history database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "dubsync.db")
}

// LockPath returns the daemon lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "dubsync.lock")
}

// ArchiveDir returns the directory receiving AV1 archive copies of exports.
func (c *Config) ArchiveDir() string {
	return filepath.Join(c.Paths.OutputDir, "archive")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

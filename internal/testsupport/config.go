package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"dubsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Playback uses the virtual backend so no ffplay window is ever opened.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Playback.PreviewBackend = config.PreviewBackendVirtual
	cfgVal.Dubbing.APIKey = "test"
	cfgVal.Share.CredentialsFile = filepath.Join(base, "gdrive_credentials.json")
	cfgVal.Share.TokenFile = filepath.Join(base, "gdrive_token.json")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDubbingEndpoint points the dubbing client at a test server.
func WithDubbingEndpoint(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dubbing.BaseURL = baseURL
	}
}

// WithExportHost selects the export capture host.
func WithExportHost(host string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Export.Host = host
	}
}

// WithStopPolicy overrides the export stop policy.
func WithStopPolicy(policy string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Export.StopPolicy = policy
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default dubsync external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "ffplay"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

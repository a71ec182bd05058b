package preflight

import (
	"context"
	"strings"

	"dubsync/internal/config"
)

// CheckDubbingFromConfig evaluates the dubbing collaborator from config and connectivity.
func CheckDubbingFromConfig(ctx context.Context, cfg *config.Config) Result {
	const name = "Dubbing service"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Dubbing.BaseURL) == "" {
		return Result{Name: name, Detail: "Missing URL"}
	}
	check := CheckDubbing(ctx, cfg.Dubbing.BaseURL, cfg.Dubbing.APIKey)
	if check.Passed && strings.TrimSpace(cfg.Dubbing.APIKey) == "" {
		return Result{Name: name, Passed: true, Detail: "Reachable (no API key set)"}
	}
	return check
}

// CheckShareFromConfig evaluates Drive sharing status from config.
func CheckShareFromConfig(cfg *config.Config) Result {
	const name = "Google Drive"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Share.GDriveEnabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckShareCredentials(cfg.Share.CredentialsFile, cfg.Share.TokenFile)
}

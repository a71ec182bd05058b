package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"dubsync/internal/config"
	"dubsync/internal/deps"
	"dubsync/internal/dubbing"
)

// CheckDubbing verifies that the dubbing collaborator answers its health
// endpoint. It uses a 10-second timeout and a single attempt.
func CheckDubbing(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Dubbing service"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := dubbing.NewClient(apiKey, dubbing.WithBaseURL(base), dubbing.WithTimeout(10*time.Second))
	if err := client.Health(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckShareCredentials verifies the Drive OAuth client and token files exist.
func CheckShareCredentials(credentialsFile, tokenFile string) Result {
	const name = "Google Drive"
	for _, f := range []struct{ label, path string }{
		{"credentials", credentialsFile},
		{"token", tokenFile},
	} {
		if strings.TrimSpace(f.path) == "" {
			return Result{Name: name, Detail: fmt.Sprintf("missing %s file setting", f.label)}
		}
		if _, err := os.Stat(f.path); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s file %s unavailable", f.label, f.path)}
		}
	}
	return Result{Name: name, Passed: true, Detail: "credentials present"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries needed for the configured
// preview backend and export host. Both the daemon and the CLI status command
// use this to avoid duplicating the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFprobe",
			Command:     deps.ResolveBinary(cfg.Export.FFprobeBinary, "ffprobe"),
			Description: "Required for media metadata",
		},
		{
			Name:        "FFmpeg",
			Command:     deps.ResolveBinary(cfg.Export.FFmpegBinary, "ffmpeg"),
			Description: "Required for exports with the ffmpeg host",
			Optional:    cfg.Export.Host != config.ExportHostFFmpeg,
		},
		{
			Name:        "FFplay",
			Command:     deps.ResolveBinary(cfg.Playback.FFplayBinary, "ffplay"),
			Description: "Required for audible preview",
			Optional:    cfg.Playback.PreviewBackend != config.PreviewBackendFFplay,
		},
	}
	statuses := deps.CheckBinaries(requirements)

	chrome := deps.Status{
		Name:        "Chrome",
		Description: "Required for exports with the browser host",
		Optional:    cfg.Export.Host != config.ExportHostBrowser,
	}
	if path := deps.ResolveChrome(cfg.Browser.ChromePath); path != "" {
		chrome.Command = path
		checked := deps.CheckBinaries([]deps.Requirement{{Name: chrome.Name, Command: path}})
		chrome.Available = checked[0].Available
		chrome.Detail = checked[0].Detail
	} else {
		chrome.Detail = "no chrome or chromium binary found"
	}
	return append(statuses, chrome)
}

// summarizeNetworkError produces a human-readable summary for health check failures.
func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (service unreachable)"
	}
	return err.Error()
}

package deps

import (
	"os/exec"
	"strings"
)

// chromeCandidates are probed in order when no Chrome path is configured.
var chromeCandidates = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
	"headless-shell",
}

// ResolveChrome returns the Chrome executable the browser export host will
// launch. A configured path wins; otherwise the first candidate found on PATH
// is used. The empty string means none was found.
func ResolveChrome(configured string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	for _, name := range chromeCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// ResolveBinary returns the configured command or fallback when unset.
func ResolveBinary(configured, fallback string) string {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured
	}
	return fallback
}

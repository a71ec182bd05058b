package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"dubsync/internal/config"
	"dubsync/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDubbing_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckDubbing(context.Background(), srv.URL, "key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckDubbing_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := CheckDubbing(context.Background(), srv.URL, "key")
	if result.Passed {
		t.Fatal("expected failure for 503")
	}
}

func TestCheckDubbing_MissingURL(t *testing.T) {
	result := CheckDubbing(context.Background(), " ", "key")
	if result.Passed || result.Detail != "missing url" {
		t.Fatalf("unexpected result %#v", result)
	}
}

func TestCheckShareCredentials(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "creds.json")
	token := filepath.Join(dir, "token.json")

	if CheckShareCredentials(creds, token).Passed {
		t.Fatal("expected failure when files are missing")
	}
	for _, p := range []string{creds, token} {
		if err := os.WriteFile(p, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if r := CheckShareCredentials(creds, token); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if CheckShareCredentials("", token).Passed {
		t.Fatal("expected failure for empty credentials setting")
	}
}

func TestCheckShareFromConfigDisabled(t *testing.T) {
	cfg := config.Default()
	r := CheckShareFromConfig(&cfg)
	if !r.Passed || r.Detail != "Disabled" {
		t.Fatalf("unexpected result %#v", r)
	}
}

func TestCheckSystemDepsMarksOptionalByBackend(t *testing.T) {
	testsupport.StubPath(t, "ffprobe", "ffmpeg")

	cfg := config.Default()
	cfg.Playback.PreviewBackend = config.PreviewBackendVirtual
	statuses := CheckSystemDeps(&cfg)
	byName := map[string]bool{}
	optional := map[string]bool{}
	for _, s := range statuses {
		byName[s.Name] = s.Available
		optional[s.Name] = s.Optional
	}
	if !byName["FFprobe"] || !byName["FFmpeg"] {
		t.Fatalf("expected ffprobe and ffmpeg available, got %#v", statuses)
	}
	if byName["FFplay"] || byName["Chrome"] {
		t.Fatalf("expected ffplay and chrome missing, got %#v", statuses)
	}
	if !optional["FFplay"] || !optional["Chrome"] || optional["FFmpeg"] {
		t.Fatalf("unexpected optional flags %#v", optional)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsDirectoriesAndRequiredBinaries(t *testing.T) {
	testsupport.StubPath(t, "ffprobe", "ffmpeg")

	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Playback.PreviewBackend = config.PreviewBackendVirtual

	results := RunAll(context.Background(), &cfg)
	// output + state directories, ffprobe, ffmpeg
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d: %#v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures %#v", failed)
	}
}

func TestRunAll_IncludesShareWhenEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Share.GDriveEnabled = true
	cfg.Share.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")
	cfg.Share.TokenFile = filepath.Join(t.TempDir(), "missing-token.json")

	found := false
	for _, r := range RunAll(context.Background(), &cfg) {
		if r.Name == "Google Drive" {
			found = true
			if r.Passed {
				t.Fatal("expected Drive check to fail without credentials")
			}
		}
	}
	if !found {
		t.Fatal("expected Drive check in results")
	}
}

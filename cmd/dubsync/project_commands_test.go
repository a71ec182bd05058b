package main

import (
	"path/filepath"
	"testing"

	"dubsync/internal/project"
)

func TestProjectInitAndShow(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "talk.mp4")
	audio := filepath.Join(dir, "talk.es.wav")

	out, _, err := runCLI(t, []string{"project", "init", video, audio, "--language", "es", "--stop-policy", "both"}, "")
	if err != nil {
		t.Fatalf("project init: %v", err)
	}
	manifest := filepath.Join(dir, project.DefaultFileName)
	requireContains(t, out, manifest)

	p, err := project.Load(manifest)
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if p.Audio == nil || p.Audio.Path != audio || !p.DubEnabled || p.StopPolicy != "both" {
		t.Fatalf("unexpected project: %+v", p)
	}

	out, _, err = runCLI(t, []string{"project", "show", dir}, "")
	if err != nil {
		t.Fatalf("project show: %v", err)
	}
	requireContains(t, out, video)
	requireContains(t, out, filepath.Join(dir, "talk.dub.webm"))
	requireContains(t, out, "both")

	if _, _, err := runCLI(t, []string{"project", "init", video}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting an existing manifest")
	}
}

func TestProjectInitRejectsUnknownStopPolicy(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runCLI(t, []string{"project", "init", filepath.Join(dir, "a.mp4"), "--stop-policy", "never"}, "")
	if err == nil {
		t.Fatal("expected invalid stop policy to be rejected")
	}
}

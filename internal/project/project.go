package project

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dubsync/internal/export"
	"dubsync/internal/language"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// DefaultFileName is the manifest name used when a directory is given.
const DefaultFileName = "dubsync.yaml"

// Project is one manifest.
type Project struct {
	Name        string          `yaml:"name,omitempty"`
	Video       session.Source  `yaml:"video"`
	Audio       *session.Source `yaml:"audio,omitempty"`
	Language    string          `yaml:"language,omitempty"`
	DubEnabled  bool            `yaml:"dub_enabled"`
	GlobalMuted bool            `yaml:"global_muted"`
	StopPolicy  string          `yaml:"stop_policy,omitempty"`
	Output      string          `yaml:"output,omitempty"`

	// path is the manifest location; empty for unsaved projects.
	path string
}

// New starts a project for video with an optional dub.
func New(video, audio string) *Project {
	p := &Project{Video: session.Source{Path: video}}
	if strings.TrimSpace(audio) != "" {
		p.Audio = &session.Source{Path: audio}
		p.DubEnabled = true
	}
	p.Name = strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	return p
}

// ResolvePath maps a directory to the manifest inside it.
func ResolvePath(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, DefaultFileName)
	}
	return path
}

// Load reads and validates the manifest at path. Relative media paths are
// made absolute against the manifest directory.
func Load(path string) (*Project, error) {
	path = ResolvePath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, mediaerr.Wrap(mediaerr.ErrValidation, "project", "parse", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	p.path = abs
	p.resolve(filepath.Dir(abs))
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the manifest to path, creating parent directories.
func (p *Project) Save(path string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write project: %w", err)
	}
	p.path = path
	return nil
}

// Path returns the manifest location, if loaded or saved.
func (p *Project) Path() string { return p.path }

// Validate checks the manifest for obvious mistakes.
func (p *Project) Validate() error {
	var problems []string
	if p.Video.IsZero() {
		problems = append(problems, "video.path is required")
	}
	if p.Audio != nil && p.Audio.IsZero() {
		problems = append(problems, "audio.path must not be empty when audio is set")
	}
	if p.DubEnabled && p.Audio == nil {
		problems = append(problems, "dub_enabled requires audio")
	}
	if p.StopPolicy != "" {
		if _, err := export.ParseStopPolicy(p.StopPolicy); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if p.Language != "" {
		if _, err := language.ParseTarget(p.Language); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return mediaerr.Wrap(mediaerr.ErrValidation, "project", "validate", strings.Join(problems, "; "), nil)
	}
	return nil
}

// Session creates a session from the manifest. Audio is not attached because
// it requires the video duration; callers load it after the video.
func (p *Project) Session() (*session.Session, error) {
	sess, err := session.New(p.Video)
	if err != nil {
		return nil, err
	}
	sess.GlobalMuted = p.GlobalMuted
	return sess, nil
}

// AudioSource returns the dub source, or the zero Source.
func (p *Project) AudioSource() session.Source {
	if p.Audio == nil {
		return session.Source{}
	}
	return *p.Audio
}

// OutputPath returns the configured export path, or a default next to the
// video when none is set.
func (p *Project) OutputPath() string {
	if strings.TrimSpace(p.Output) != "" {
		return p.Output
	}
	return DefaultOutputPath(p.Video.Path)
}

// DefaultOutputPath names the export for a video: <dir>/<name>.dub.webm.
func DefaultOutputPath(video string) string {
	dir := filepath.Dir(video)
	stem := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	return filepath.Join(dir, stem+".dub.webm")
}

func (p *Project) resolve(dir string) {
	p.Video.Path = resolveAgainst(dir, p.Video.Path)
	if p.Audio != nil {
		p.Audio.Path = resolveAgainst(dir, p.Audio.Path)
	}
	if p.Output != "" {
		p.Output = resolveAgainst(dir, p.Output)
	}
}

func resolveAgainst(dir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(dir, path)
}

// ErrNoProject is returned by Find when no manifest exists.
var ErrNoProject = errors.New("no project manifest found")

// Find looks for DefaultFileName in dir.
func Find(dir string) (string, error) {
	candidate := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(candidate); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoProject
		}
		return "", err
	}
	return candidate, nil
}

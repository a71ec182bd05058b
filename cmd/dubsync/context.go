package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"dubsync/internal/api"
	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/project"
)

const probeTimeout = 2 * time.Second

type commandContext struct {
	configFlag *string
	apiFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, apiFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		apiFlag:    apiFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiAddress() string {
	if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
		return strings.TrimSpace(*c.apiFlag)
	}
	cfg, err := c.ensureConfig()
	if err != nil || cfg == nil {
		return ""
	}
	return cfg.Paths.APIBind
}

// daemonClient returns a client for a reachable daemon, or nil when none
// answers the health probe.
func (c *commandContext) daemonClient(ctx context.Context) *api.Client {
	addr := c.apiAddress()
	if addr == "" {
		return nil
	}
	var token string
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		token = cfg.Paths.APIToken
	}
	client := api.NewClient(addr, token)
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.Health(probeCtx); err != nil {
		return nil
	}
	return client
}

// cliLogger logs to stderr so command output on stdout stays clean.
func (c *commandContext) cliLogger(verbose bool) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// resolveProject builds a project from --project or from positional
// <video> [audio] arguments.
func resolveProject(projectPath string, args []string) (*project.Project, error) {
	projectPath = strings.TrimSpace(projectPath)
	if projectPath != "" {
		if len(args) > 0 {
			return nil, errors.New("pass either --project or media paths, not both")
		}
		expanded, err := config.ExpandPath(projectPath)
		if err != nil {
			return nil, err
		}
		return project.Load(expanded)
	}
	if len(args) == 0 {
		return nil, errors.New("a video path or --project is required")
	}
	video, err := config.ExpandPath(args[0])
	if err != nil {
		return nil, err
	}
	var audio string
	if len(args) > 1 {
		if audio, err = config.ExpandPath(args[1]); err != nil {
			return nil, err
		}
	}
	p := project.New(video, audio)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"dubsync/internal/archive"
	"dubsync/internal/config"
	"dubsync/internal/daemon"
	"dubsync/internal/dubbing"
	"dubsync/internal/host"
	"dubsync/internal/logging"
	"dubsync/internal/player"
	"dubsync/internal/share"
	"dubsync/internal/store"
)

const logHubCapacity = 4096

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dubsync daemon and its HTTP API in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logHub := logging.NewStreamHub(logHubCapacity)
	logger, err := logging.NewFromConfig(cfg, logHub)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "dubsync.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg, logger)
	if err != nil {
		logger.Error("open export store", logging.Error(err))
		return err
	}

	opts, err := daemonOptions(signalCtx, cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return err
	}
	opts.LogHub = logHub

	d, err := daemon.New(cfg, opts)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	logger.Info("dubsync daemon ready", logging.String("api", d.APIAddr()))

	<-signalCtx.Done()
	logger.Info("dubsync daemon shutting down")
	return nil
}

// daemonOptions wires the export host, preview opener and optional
// collaborators from cfg. Optional features that fail to initialize are
// logged and left disabled.
func daemonOptions(ctx context.Context, cfg *config.Config, st *store.Store, logger *slog.Logger) (daemon.Options, error) {
	exportHost, err := host.New(cfg, logger)
	if err != nil {
		return daemon.Options{}, err
	}
	opts := daemon.Options{
		Store:  st,
		Host:   exportHost,
		Opener: player.NewOpener(cfg, logger),
		Logger: logger,
	}
	if cfg.Dubbing.APIKey != "" {
		opts.Dubber = dubbing.NewFromConfig(cfg, logger)
	} else {
		logging.WarnWithContext(logger, "dubbing disabled", "dubbing_unconfigured",
			logging.String(logging.FieldImpact, "sessions can only use existing dub audio"),
			logging.String(logging.FieldErrorHint, "set dubbing.api_key or DUBBING_API_KEY"),
		)
	}
	if archiver := archive.NewFromConfig(cfg, logger); archiver != nil {
		opts.Archiver = archiver
	}
	uploader, err := share.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "share upload disabled", "share_init_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "exports stay local"),
		)
	} else if uploader != nil {
		opts.Uploader = uploader
	}
	return opts, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

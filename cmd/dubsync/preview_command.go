package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"dubsync/internal/config"
	"dubsync/internal/logging"
	"dubsync/internal/player"
	"dubsync/internal/playback"
	"dubsync/internal/project"
)

const previewHelp = "commands: play, pause, toggle, seek <seconds>, mute, unmute, dub on|off, restart, status, quit"

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var (
		projectPath string
		backend     string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "preview [video] [audio]",
		Short: "Preview a video with its dub and control playback from the terminal",
		Long: "Preview opens the video and the optional dub as one timeline. Type commands on\n" +
			"stdin to control playback:\n  " + previewHelp,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.cliLogger(verbose)
			if err != nil {
				return err
			}
			p, err := resolveProject(projectPath, args)
			if err != nil {
				return err
			}
			opener := player.NewOpener(cfg, logger)
			if strings.TrimSpace(backend) != "" {
				opener.Backend = strings.TrimSpace(backend)
			}
			syncer, err := openPreview(cmd.Context(), cfg, p, opener, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer syncer.Close()
			return runPreview(cmd.Context(), syncer, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&projectPath, "project", "", "Project manifest (file or directory)")
	cmd.Flags().StringVar(&backend, "backend", "", "Preview backend: ffplay or virtual (defaults to playback.preview_backend)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

// openPreview loads the project's video and dub into a new synchronizer. A dub
// that fails to load is reported and the preview continues without it.
func openPreview(ctx context.Context, cfg *config.Config, p *project.Project, opener playback.Opener, logger *slog.Logger, out io.Writer) (*playback.Synchronizer, error) {
	sess, err := p.Session()
	if err != nil {
		return nil, err
	}
	syncer := playback.New(sess, playback.Options{
		DriftThreshold: cfg.Playback.DriftThresholdSeconds,
		Logger:         logger,
	})
	if err := syncer.Load(ctx, opener); err != nil {
		_ = syncer.Close()
		return nil, err
	}
	if p.Audio != nil {
		if err := syncer.LoadAudio(ctx, opener, *p.Audio); err != nil {
			fmt.Fprintf(out, "Dub unavailable, previewing original audio only: %v\n", err)
		} else if p.DubEnabled {
			if err := syncer.SetDubEnabled(true); err != nil {
				logger.Debug("enable dub failed", logging.Error(err))
			}
		}
	}
	return syncer, nil
}

// runPreview drives syncer from line commands on in until quit, EOF or ctx
// cancellation.
func runPreview(ctx context.Context, syncer *playback.Synchronizer, in io.Reader, out io.Writer) error {
	out = &lockedWriter{w: out}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- syncer.Run(runCtx) }()

	updates, release := syncer.Subscribe()
	defer release()
	go reportTransitions(runCtx, updates, syncer.Status().State, out)

	fmt.Fprintln(out, describeStatus(syncer.Status()))
	fmt.Fprintln(out, previewHelp)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-runCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			command, err := parsePreviewCommand(line)
			if err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			if command.kind == cmdNone {
				continue
			}
			if command.kind == cmdQuit {
				return nil
			}
			if err := applyPreviewCommand(syncer, command); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			if command.kind == cmdStatus {
				fmt.Fprintln(out, describeStatus(syncer.Status()))
			}
		}
	}
}

func reportTransitions(ctx context.Context, updates <-chan playback.Status, last string, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-updates:
			if !ok {
				return
			}
			if status.State != last {
				last = status.State
				if last == playback.StateEnded.String() || last == playback.StateErrored.String() {
					fmt.Fprintln(out, describeStatus(status))
				}
			}
		}
	}
}

type previewCommandKind int

const (
	cmdNone previewCommandKind = iota
	cmdPlay
	cmdPause
	cmdToggle
	cmdSeek
	cmdMute
	cmdUnmute
	cmdDubOn
	cmdDubOff
	cmdRestart
	cmdStatus
	cmdQuit
)

type previewCommand struct {
	kind previewCommandKind
	time float64
}

func parsePreviewCommand(line string) (previewCommand, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return previewCommand{}, nil
	}
	simple := map[string]previewCommandKind{
		"play":    cmdPlay,
		"pause":   cmdPause,
		"toggle":  cmdToggle,
		"mute":    cmdMute,
		"unmute":  cmdUnmute,
		"restart": cmdRestart,
		"status":  cmdStatus,
		"quit":    cmdQuit,
		"exit":    cmdQuit,
		"q":       cmdQuit,
	}
	if kind, ok := simple[fields[0]]; ok {
		if len(fields) != 1 {
			return previewCommand{}, fmt.Errorf("%s takes no arguments", fields[0])
		}
		return previewCommand{kind: kind}, nil
	}
	switch fields[0] {
	case "seek":
		if len(fields) != 2 {
			return previewCommand{}, errors.New("usage: seek <seconds>")
		}
		t, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return previewCommand{}, fmt.Errorf("invalid seek time %q", fields[1])
		}
		return previewCommand{kind: cmdSeek, time: t}, nil
	case "dub":
		if len(fields) == 2 {
			switch fields[1] {
			case "on":
				return previewCommand{kind: cmdDubOn}, nil
			case "off":
				return previewCommand{kind: cmdDubOff}, nil
			}
		}
		return previewCommand{}, errors.New("usage: dub on|off")
	}
	return previewCommand{}, fmt.Errorf("unknown command %q (%s)", fields[0], previewHelp)
}

func applyPreviewCommand(syncer *playback.Synchronizer, command previewCommand) error {
	playing := syncer.Status().Session.Playing
	switch command.kind {
	case cmdPlay:
		if playing {
			return nil
		}
		return syncer.TogglePlay()
	case cmdPause:
		if !playing {
			return nil
		}
		return syncer.TogglePlay()
	case cmdToggle:
		return syncer.TogglePlay()
	case cmdSeek:
		_, err := syncer.Seek(command.time)
		return err
	case cmdMute:
		return syncer.SetGlobalMuted(true)
	case cmdUnmute:
		return syncer.SetGlobalMuted(false)
	case cmdDubOn:
		return syncer.SetDubEnabled(true)
	case cmdDubOff:
		return syncer.SetDubEnabled(false)
	case cmdRestart:
		return syncer.Restart()
	}
	return nil
}

func describeStatus(status playback.Status) string {
	snap := status.Session
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s / %s", status.State, formatClock(snap.CurrentTime), formatClock(snap.Duration))
	if snap.Audio != nil {
		fmt.Fprintf(&b, " dub=%s", onOff(snap.DubEnabled))
		if snap.DubEnabled {
			fmt.Fprintf(&b, " drift=%+.2fs", status.Drift)
		}
	} else {
		b.WriteString(" dub=none")
	}
	if snap.GlobalMuted {
		b.WriteString(" muted")
	}
	if status.Error != "" {
		fmt.Fprintf(&b, " error=%s", status.Error)
	}
	return b.String()
}

func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d.%d", total/60, total%60, int((seconds-float64(total))*10))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// lockedWriter serializes writes from the command loop and the transition
// reporter.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

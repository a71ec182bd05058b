package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dubsync/internal/api"
)

var errDaemonNotRunning = errors.New("dubsync daemon is not reachable; start it with `dubsync serve`")

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List preview sessions open in the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.daemonClient(cmd.Context())
			if client == nil {
				return errDaemonNotRunning
			}
			sessions, err := client.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, sessions)
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No open sessions")
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				dub := "-"
				if s.Audio != nil {
					dub = filepath.Base(s.Audio.Path)
					if !s.DubEnabled {
						dub += " (off)"
					}
				}
				rows = append(rows, []string{
					shortID(s.ID),
					s.State,
					filepath.Base(s.Video.Path),
					dub,
					formatClock(s.CurrentTime) + " / " + formatClock(s.Duration),
					fmt.Sprintf("%+.2f", s.Drift),
				})
			}
			fmt.Fprintln(out, renderTable([]column{
				{header: "ID"},
				{header: "State"},
				{header: "Video"},
				{header: "Dub"},
				{header: "Position", align: alignRight},
				{header: "Drift", align: alignRight},
			}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit sessions as JSON")
	return cmd
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		component string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.daemonClient(cmd.Context())
			if client == nil {
				return errDaemonNotRunning
			}
			out := cmd.OutOrStdout()
			resp, err := client.Logs(cmd.Context(), 0, lines, true, component)
			if err != nil {
				return err
			}
			printLogEvents(out, resp.Events)
			next := resp.Next
			for follow {
				if cmd.Context().Err() != nil {
					return nil
				}
				resp, err := client.Logs(cmd.Context(), next, lines, false, component)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				printLogEvents(out, resp.Events)
				if resp.Next > next {
					next = resp.Next
				}
				if len(resp.Events) == 0 {
					select {
					case <-cmd.Context().Done():
						return nil
					case <-time.After(time.Second):
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of events to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	cmd.Flags().StringVar(&component, "component", "", "Only events from this component")
	return cmd
}

func printLogEvents(out io.Writer, events []api.LogEvent) {
	for _, evt := range events {
		ts := evt.Timestamp
		if parsed, err := time.Parse(time.RFC3339, evt.Timestamp); err == nil {
			ts = parsed.Local().Format("15:04:05")
		}
		line := fmt.Sprintf("%s %-5s %s", ts, strings.ToUpper(evt.Level), evt.Message)
		if evt.Component != "" {
			line = fmt.Sprintf("%s %-5s [%s] %s", ts, strings.ToUpper(evt.Level), evt.Component, evt.Message)
		}
		fmt.Fprintln(out, line)
	}
}

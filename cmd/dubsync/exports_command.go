package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dubsync/internal/api"
	"dubsync/internal/export"
	"dubsync/internal/store"
)

func newExportsCommand(ctx *commandContext) *cobra.Command {
	var (
		sessionID  string
		states     []string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "exports",
		Short: "List export history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []api.ExportItem
			if client := ctx.daemonClient(cmd.Context()); client != nil {
				var err error
				if items, err = client.Exports(cmd.Context(), sessionID, states, limit); err != nil {
					return err
				}
			} else {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				st, err := store.Open(cfg, nil)
				if err != nil {
					return err
				}
				defer st.Close()
				filter := store.Filter{SessionID: strings.TrimSpace(sessionID), Limit: limit}
				for _, state := range states {
					filter.States = append(filter.States, export.JobState(strings.TrimSpace(state)))
				}
				rows, err := st.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				items = api.FromExports(rows)
			}

			if jsonOutput {
				return writeJSON(cmd, items)
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No exports recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable(exportColumns, exportRows(items)))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only exports of this session")
	cmd.Flags().StringSliceVar(&states, "state", nil, "Filter by state (idle, capturing, finalizing, complete, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit rows as JSON")
	return cmd
}

var exportColumns = []column{
	{header: "ID"},
	{header: "State"},
	{header: "Video"},
	{header: "Duration", align: alignRight},
	{header: "Size", align: alignRight},
	{header: "Stop"},
	{header: "Output"},
	{header: "Updated"},
}

func exportRows(items []api.ExportItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		state := item.State
		if item.State == string(export.JobFailed) && item.ErrorKind != "" {
			state += " (" + item.ErrorKind + ")"
		}
		stop := item.StopReason
		if item.EarlyStop {
			stop += " (early)"
		}
		output := item.OutputPath
		if item.ShareURL != "" {
			output = item.ShareURL
		}
		rows = append(rows, []string{
			shortID(item.ID),
			state,
			filepath.Base(item.VideoPath),
			formatSeconds(item.Duration),
			humanBytes(item.Bytes),
			dash(stop),
			dash(output),
			relativeTime(item.UpdatedAt),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func relativeTime(value string) string {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return dash(value)
	}
	age := time.Since(ts)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return ts.Local().Format("2006-01-02")
	}
}

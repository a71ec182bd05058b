package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"dubsync/internal/api"
	"dubsync/internal/config"
	"dubsync/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and configuration status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var status *api.DaemonStatus
			if client := ctx.daemonClient(cmd.Context()); client != nil {
				if status, err = client.Status(cmd.Context()); err != nil {
					return err
				}
			}
			if jsonOutput {
				if status == nil {
					status = &api.DaemonStatus{
						ExportHost:   cfg.Export.Host,
						StopPolicy:   cfg.Export.StopPolicy,
						Dependencies: api.FromDependencies(preflight.CheckSystemDeps(cfg)),
					}
				}
				return writeJSON(cmd, status)
			}

			renderSection(out, "Daemon", colorize)
			renderDaemonStatus(out, ctx.apiAddress(), status, colorize)

			fmt.Fprintln(out)
			renderSection(out, "Dependencies", colorize)
			deps := api.FromDependencies(preflight.CheckSystemDeps(cfg))
			if status != nil {
				deps = status.Dependencies
			}
			renderDependencies(out, deps, colorize)

			fmt.Fprintln(out)
			renderSection(out, "Checks", colorize)
			listed := make(map[string]bool, len(deps))
			for _, dep := range deps {
				listed[dep.Name] = true
			}
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				if listed[result.Name] {
					continue
				}
				kind := statusOK
				if !result.Passed {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(out)
			renderSection(out, "Configuration", colorize)
			renderConfigSummary(out, cfg, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit status as JSON")
	return cmd
}

func renderDaemonStatus(out io.Writer, addr string, status *api.DaemonStatus, colorize bool) {
	if status == nil {
		fmt.Fprintln(out, renderStatusLine("API", statusWarn, "not reachable at "+dash(addr)+"; run `dubsync serve`", colorize))
		return
	}
	fmt.Fprintln(out, renderStatusLine("API", statusOK, fmt.Sprintf("running at %s (pid %d)", addr, status.PID), colorize))
	fmt.Fprintln(out, renderStatusLine("Export host", statusInfo, fmt.Sprintf("%s, stop policy %s", status.ExportHost, status.StopPolicy), colorize))
	fmt.Fprintln(out, renderStatusLine("Sessions", statusInfo, fmt.Sprintf("%d open, %d exporting", status.Sessions, status.ActiveExports), colorize))
	fmt.Fprintln(out, renderStatusLine("Archive", statusInfo, yesNo(status.ArchiveEnabled), colorize))
	fmt.Fprintln(out, renderStatusLine("Share", statusInfo, yesNo(status.ShareEnabled), colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
}

func renderDependencies(out io.Writer, deps []api.DependencyStatus, colorize bool) {
	for _, dep := range deps {
		kind := statusOK
		detail := dep.Command
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			detail = dep.Detail
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, detail, colorize))
	}
}

func renderConfigSummary(out io.Writer, cfg *config.Config, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("Output dir", statusInfo, cfg.Paths.OutputDir, colorize))
	fmt.Fprintln(out, renderStatusLine("State dir", statusInfo, cfg.Paths.StateDir, colorize))
	fmt.Fprintln(out, renderStatusLine("Preview", statusInfo, cfg.Playback.PreviewBackend, colorize))
	dubbing := statusOK
	detail := cfg.Dubbing.BaseURL
	if cfg.Dubbing.APIKey == "" {
		dubbing = statusWarn
		detail = "no API key configured"
	}
	fmt.Fprintln(out, renderStatusLine("Dubbing", dubbing, detail, colorize))
}

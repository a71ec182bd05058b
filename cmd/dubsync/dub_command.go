package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dubsync/internal/config"
	"dubsync/internal/dubbing"
	"dubsync/internal/language"
	"dubsync/internal/session"
)

func newDubCommand(ctx *commandContext) *cobra.Command {
	var (
		lang    string
		output  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "dub <video>",
		Short: "Generate a dub track for a video through the dubbing service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.cliLogger(verbose)
			if err != nil {
				return err
			}
			video, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(lang) == "" {
				lang = cfg.Dubbing.DefaultLanguage
			}
			if output != "" {
				if output, err = config.ExpandPath(output); err != nil {
					return err
				}
			}

			res, err := dubbing.NewFromConfig(cfg, logger).Dub(cmd.Context(), dubbing.Request{
				Video:      session.Source{Path: video},
				Language:   lang,
				OutputPath: output,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s dub to %s (%s, %d speakers)\n",
				res.Language.Name, res.Audio.Path, res.Duration.Round(100*time.Millisecond), len(res.Analysis.Speakers))
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "language", "l", "", "Target language (defaults to dubbing.default_language)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "WAV output path (defaults to <video>.<lang>.dub.wav)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.AddCommand(newDubLanguagesCommand())
	return cmd
}

func newDubLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "languages",
		Short:       "List supported dub languages",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := language.Supported()
			rows := make([][]string, 0, len(targets))
			for _, t := range targets {
				rows = append(rows, []string{t.Code, t.Name})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{{header: "Code"}, {header: "Language"}}, rows))
			return nil
		},
	}
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dubsync/internal/config"
	"dubsync/internal/project"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Create and inspect project manifests",
	}
	projectCmd.AddCommand(newProjectInitCommand())
	projectCmd.AddCommand(newProjectShowCommand())
	return projectCmd
}

func newProjectInitCommand() *cobra.Command {
	var (
		targetPath string
		lang       string
		output     string
		stopPolicy string
		muted      bool
		overwrite  bool
	)

	cmd := &cobra.Command{
		Use:         "init <video> [audio]",
		Short:       "Write a project manifest for a video and optional dub",
		Args:        cobra.RangeArgs(1, 2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := resolveProject("", args)
			if err != nil {
				return err
			}
			p.Language = strings.TrimSpace(lang)
			p.StopPolicy = strings.TrimSpace(stopPolicy)
			p.GlobalMuted = muted
			if strings.TrimSpace(output) != "" {
				if p.Output, err = config.ExpandPath(output); err != nil {
					return err
				}
			}

			target := strings.TrimSpace(targetPath)
			if target == "" {
				target = filepath.Join(filepath.Dir(p.Video.Path), project.DefaultFileName)
			} else if target, err = config.ExpandPath(target); err != nil {
				return err
			}
			target = project.ResolvePath(target)
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("project already exists at %s (use --overwrite to replace it)", target)
				}
			}
			if err := p.Save(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote project manifest to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Manifest path or directory (defaults to the video directory)")
	cmd.Flags().StringVar(&lang, "language", "", "Dub target language (ISO 639-1)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Export output path")
	cmd.Flags().StringVar(&stopPolicy, "stop-policy", "", "Export stop policy: first, both or video")
	cmd.Flags().BoolVar(&muted, "muted", false, "Start sessions globally muted")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing manifest")
	return cmd
}

func newProjectShowCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:         "show [path]",
		Short:       "Show a project manifest",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}
			p, err := project.Load(expanded)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, p)
			}
			audio := "-"
			if p.Audio != nil {
				audio = p.Audio.Path
			}
			pairs := [][2]string{
				{"Manifest", p.Path()},
				{"Name", p.Name},
				{"Video", p.Video.Path},
				{"Dub audio", audio},
				{"Dub enabled", yesNo(p.DubEnabled)},
				{"Muted", yesNo(p.GlobalMuted)},
				{"Output", p.OutputPath()},
			}
			if p.Language != "" {
				pairs = append(pairs, [2]string{"Language", p.Language})
			}
			if p.StopPolicy != "" {
				pairs = append(pairs, [2]string{"Stop policy", p.StopPolicy})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(pairs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the manifest as JSON")
	return cmd
}

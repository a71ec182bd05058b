package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"dubsync/internal/config"
	"dubsync/internal/deps"
	"dubsync/internal/media/ffprobe"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "probe <media>...",
		Short: "Inspect media sources with ffprobe",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			binary := deps.ResolveBinary(cfg.Export.FFprobeBinary, "ffprobe")

			rows := make([][]string, 0, len(args))
			metas := make([]ffprobe.Metadata, 0, len(args))
			for _, arg := range args {
				path, err := config.ExpandPath(arg)
				if err != nil {
					return err
				}
				result, err := ffprobe.Inspect(cmd.Context(), binary, path)
				if err != nil {
					return fmt.Errorf("probe %s: %w", path, err)
				}
				meta := result.Metadata()
				meta.Path = path
				metas = append(metas, meta)
				rows = append(rows, probeRow(meta, result.SizeBytes()))
			}
			if jsonOutput {
				return writeJSON(cmd, metas)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
				{header: "Source"},
				{header: "Duration", align: alignRight},
				{header: "Video"},
				{header: "Audio"},
				{header: "Lang"},
				{header: "Type"},
				{header: "Size", align: alignRight},
			}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit metadata as JSON")
	return cmd
}

func probeRow(meta ffprobe.Metadata, size int64) []string {
	video := "-"
	if meta.HasVideo {
		video = fmt.Sprintf("%dx%d", meta.Width, meta.Height)
		if meta.FrameRate > 0 {
			video += fmt.Sprintf(" @%.3g", meta.FrameRate)
		}
	}
	audio := "-"
	if meta.HasAudio {
		audio = fmt.Sprintf("%d Hz/%dch", meta.SampleRate, meta.Channels)
	}
	lang := meta.AudioLanguage
	if lang == "" {
		lang = "-"
	}
	return []string{
		meta.Path,
		formatSeconds(meta.Duration),
		video,
		audio,
		lang,
		meta.MIMEType,
		humanBytes(size),
	}
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d:%02d.%d", total/3600, (total/60)%60, total%60, int((seconds-float64(total))*10))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dubsync/internal/archive"
	"dubsync/internal/config"
	"dubsync/internal/dubbing"
	"dubsync/internal/export"
	"dubsync/internal/fileutil"
	"dubsync/internal/host"
	"dubsync/internal/logging"
	"dubsync/internal/project"
	"dubsync/internal/session"
	"dubsync/internal/share"
	"dubsync/internal/store"
)

const storeTimeout = 5 * time.Second

type exportOptions struct {
	project    string
	output     string
	stopPolicy string
	language   string
	overwrite  bool
	share      bool
	verbose    bool
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export [video] [audio]",
		Short: "Record the video with its dub into a single file",
		Long: "Export plays the video and the dub in real time, records the combined output and\n" +
			"writes it next to the video (or to --output). The recording stops according to the\n" +
			"stop policy; a dub shorter than the video truncates the export by default.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.cliLogger(opts.verbose)
			if err != nil {
				return err
			}
			p, err := resolveProject(opts.project, args)
			if err != nil {
				return err
			}
			return runExport(cmd, cfg, p, opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.project, "project", "", "Project manifest (file or directory)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path (defaults to <video>.dub.webm)")
	cmd.Flags().StringVar(&opts.stopPolicy, "stop-policy", "", "Stop policy: first, both or video")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Generate a dub in this language when none is given")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "Replace an existing output file")
	cmd.Flags().BoolVar(&opts.share, "share", false, "Upload the export to Google Drive even if share.gdrive_enabled is off")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func runExport(cmd *cobra.Command, cfg *config.Config, p *project.Project, opts exportOptions, logger *slog.Logger) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if policy := firstNonEmpty(opts.stopPolicy, p.StopPolicy); policy != "" {
		local := *cfg
		local.Export.StopPolicy = policy
		cfg = &local
	}

	if p.Audio == nil {
		lang := firstNonEmpty(opts.language, p.Language)
		if lang == "" {
			return errors.New("no dub audio: pass an audio path or --language to generate one")
		}
		fmt.Fprintf(out, "Generating %s dub for %s\n", lang, p.Video.Name())
		res, err := dubbing.NewFromConfig(cfg, logger).Dub(ctx, dubbing.Request{Video: p.Video, Language: lang})
		if err != nil {
			return err
		}
		audio := res.Audio
		p.Audio = &audio
	}

	sess, err := session.New(p.Video)
	if err != nil {
		return err
	}

	exportHost, err := host.New(cfg, logger)
	if err != nil {
		return err
	}
	if closer, ok := exportHost.(io.Closer); ok {
		defer closer.Close()
	}

	st, err := store.Open(cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "export history unavailable", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "export will not appear in `dubsync exports`"),
		)
	} else {
		defer st.Close()
	}
	var observer export.Observer
	if st != nil {
		observer = st
	}

	pipeline, err := export.NewPipelineFromConfig(cfg, exportHost, observer, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Exporting %s with %s (%s host, stop policy %s)\n",
		p.Video.Name(), p.Audio.Name(), exportHost.Name(), pipeline.Policy())
	res, err := pipeline.Export(ctx, export.Request{
		SessionID: sess.ID,
		Video:     p.Video,
		Audio:     *p.Audio,
	})
	if err != nil {
		return err
	}

	target := strings.TrimSpace(opts.output)
	if target == "" {
		target = p.OutputPath()
	} else if target, err = config.ExpandPath(target); err != nil {
		return err
	}
	if !opts.overwrite {
		target = fileutil.UniquePath(target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(target, res.Data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	fmt.Fprintf(out, "Wrote %s (%s, %s of media, %s)\n",
		target, humanBytes(int64(len(res.Data))), formatSeconds(res.Duration), res.StopReason)
	if res.Early != nil {
		fmt.Fprintf(out, "Warning: %v\n", res.Early)
	}

	output := store.Output{Path: target}
	if archiver := archive.NewFromConfig(cfg, logger); archiver != nil {
		if archived, err := archiver.Archive(ctx, target); err != nil {
			fmt.Fprintf(out, "Archive encode failed: %v\n", err)
		} else {
			output.ArchivePath = archived
			fmt.Fprintf(out, "Archived AV1 copy to %s\n", archived)
		}
	}
	if link, err := shareExport(ctx, cfg, opts.share, target, res.MIMEType, logger); err != nil {
		fmt.Fprintf(out, "Share upload failed: %v\n", err)
	} else if link != "" {
		output.ShareURL = link
		fmt.Fprintf(out, "Shared at %s\n", link)
	}

	if st != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := st.SetOutput(saveCtx, res.JobID, output); err != nil {
			logging.WarnWithContext(logger, "failed to record export output", "store_record_failed", logging.Error(err))
		}
	}
	return nil
}

func shareExport(ctx context.Context, cfg *config.Config, force bool, path, mimeType string, logger *slog.Logger) (string, error) {
	if force && !cfg.Share.GDriveEnabled {
		local := *cfg
		local.Share.GDriveEnabled = true
		cfg = &local
	}
	uploader, err := share.NewFromConfig(ctx, cfg, logger)
	if err != nil || uploader == nil {
		return "", err
	}
	return uploader.Upload(ctx, path, mimeType)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podmirror/internal/config"
	"podmirror/internal/history"
	"podmirror/internal/logging"
	"podmirror/internal/preflight"
	"podmirror/internal/runlock"
	"podmirror/internal/staging"
	"podmirror/internal/watermark"
)

const statusRecentRuns = 5

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show watermark, media, recent runs and readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Sync", colorize)
			lines = append(lines, syncStatusLines(cmd.Context(), cfg, colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if cfg.History.Enabled {
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.Join(renderSectionHeader("Recent runs", colorize), "\n"))
				if err := printRecentRuns(cmd.Context(), out, cfg, statusRecentRuns); err != nil {
					fmt.Fprintln(out, renderStatusLine("History", statusWarn, err.Error(), colorize))
				}
			}

			fmt.Fprintln(out)
			lines = renderSectionHeader("Readiness", colorize)
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				lines = append(lines, resultLine(result, colorize))
			}
			if offline {
				lines = append(lines, renderStatusLine("Network checks", statusInfo, "skipped (--offline)", colorize))
			} else {
				lines = append(lines,
					resultLine(preflight.CheckSourceFromConfig(cmd.Context(), cfg), colorize),
					resultLine(preflight.CheckPublishFromConfig(cmd.Context(), cfg), colorize),
				)
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip playlist source and publish remote probes")
	return cmd
}

func syncStatusLines(ctx context.Context, cfg *config.Config, colorize bool) []string {
	var lines []string

	value, err := watermark.NewStore(cfg.WatermarkPath()).Load(ctx)
	if err != nil {
		lines = append(lines, renderStatusLine("Watermark", statusError, err.Error(), colorize))
	} else {
		lines = append(lines, renderStatusLine("Watermark", statusInfo, formatWatermark(value), colorize))
	}

	reg, err := openRegistry(cfg, logging.NewNop())
	if err == nil {
		artifacts, scanErr := reg.Artifacts()
		if scanErr != nil {
			lines = append(lines, renderStatusLine("Media files", statusError, scanErr.Error(), colorize))
		} else {
			lines = append(lines, renderStatusLine("Media files", statusInfo, strconv.Itoa(len(artifacts))+" in "+cfg.Paths.WorkDir, colorize))
		}
	} else {
		lines = append(lines, renderStatusLine("Media files", statusError, err.Error(), colorize))
	}

	if info, err := os.Stat(cfg.FeedPath()); err == nil {
		lines = append(lines, renderStatusLine("Feed", statusOK, fmt.Sprintf("%s (updated %s)", cfg.FeedPath(), info.ModTime().Format(time.RFC3339)), colorize))
	} else {
		lines = append(lines, renderStatusLine("Feed", statusWarn, "not generated yet", colorize))
	}

	held, err := runlock.Held(cfg.LockPath())
	switch {
	case err != nil:
		lines = append(lines, renderStatusLine("Run lock", statusWarn, err.Error(), colorize))
	case held:
		lines = append(lines, renderStatusLine("Run lock", statusInfo, "sync in progress", colorize))
	default:
		lines = append(lines, renderStatusLine("Run lock", statusOK, "idle", colorize))
	}

	dirs, err := staging.ListDirectories(cfg.StagingDir())
	if err == nil && len(dirs) > 0 {
		var size int64
		for _, dir := range dirs {
			size += dir.Size
		}
		lines = append(lines, renderStatusLine("Staging", statusWarn, fmt.Sprintf("%d run directories (%s)", len(dirs), formatBytes(size)), colorize))
	}
	return lines
}

func printRecentRuns(ctx context.Context, out io.Writer, cfg *config.Config, limit int) error {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, statusIndent+"No runs recorded")
		return nil
	}
	fmt.Fprintln(out, renderRunsTable(runs))
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

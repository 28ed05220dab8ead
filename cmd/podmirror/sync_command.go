package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"podmirror/internal/history"
	"podmirror/internal/logging"
	"podmirror/internal/preflight"
	"podmirror/internal/services"
	"podmirror/internal/syncer"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var skipChecks bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one incremental playlist sync",
		Long: "Fetch the playlist, acquire entries above the watermark, rebuild the feed,\n" +
			"advance the watermark, and publish. Safe to run from cron; a second\n" +
			"invocation while one is active exits immediately.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if !skipChecks {
				if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
					names := make([]string, 0, len(failed))
					for _, result := range failed {
						names = append(names, fmt.Sprintf("%s (%s)", result.Name, result.Detail))
					}
					return services.Wrap(services.ErrConfiguration, "preflight", "", strings.Join(names, "; "), errors.New("readiness checks failed"))
				}
			}

			hist, err := openHistory(cfg)
			if err != nil {
				return err
			}
			if hist != nil {
				defer func() {
					if err := hist.Close(); err != nil {
						logger.Warn("failed to close history", logging.Error(err))
					}
				}()
			}

			engine, err := buildEngine(cfg, logger, hist)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "sync", "build engine", "", err)
			}
			report, runErr := engine.Run(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			return runErr
		},
	}

	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip directory and binary readiness checks")
	return cmd
}

func printReport(out io.Writer, report syncer.Report) {
	if report.RunID == "" {
		return
	}
	if report.NoNewItems() {
		fmt.Fprintf(out, "No new items (watermark %s, %d in playlist)\n", formatWatermark(report.WatermarkAfter), report.SnapshotSize)
		return
	}
	fmt.Fprintf(out, "Run %s: %s\n", report.RunID, report.Status)
	fmt.Fprintf(out, "  Acquired: %d  Existing: %d  Failed: %d  Skipped: %d\n",
		report.Count(history.OutcomeAcquired),
		report.Count(history.OutcomeExisting),
		report.Count(history.OutcomeFailed),
		report.Count(history.OutcomeSkipped),
	)
	if report.Deferred > 0 {
		fmt.Fprintf(out, "  Deferred beyond max_items: %d\n", report.Deferred)
	}
	fmt.Fprintf(out, "  Watermark: %s -> %s\n", formatWatermark(report.WatermarkBefore), formatWatermark(report.WatermarkAfter))
	fmt.Fprintf(out, "  Feed items: %d  Published: %s\n", report.Artifacts, yesNo(report.Published))
	for _, item := range report.Items {
		if item.Outcome != history.OutcomeFailed {
			continue
		}
		fmt.Fprintf(out, "  Failed: %s %q: %v\n", item.Entry.ID, item.Entry.Title, item.Err)
	}
}

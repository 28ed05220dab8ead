package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"podmirror/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		failed  bool
		limit   int
		runID   string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs or items that failed acquisition",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled (set history.enabled = true)")
			}
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			out := cmd.OutOrStdout()

			switch {
			case failed || runID != "":
				var attempts []history.Attempt
				if failed {
					attempts, err = store.FailedItems(cmd.Context())
				} else {
					attempts, err = store.Attempts(cmd.Context(), runID)
				}
				if err != nil {
					return err
				}
				if limit > 0 && len(attempts) > limit {
					attempts = attempts[:limit]
				}
				if jsonOut {
					return writeJSON(cmd, attempts)
				}
				if len(attempts) == 0 {
					fmt.Fprintln(out, "No items")
					return nil
				}
				fmt.Fprintln(out, renderAttemptsTable(attempts))
			default:
				runs, err := store.RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderRunsTable(runs))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&failed, "failed", false, "List items whose latest attempt failed")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show")
	cmd.Flags().StringVar(&runID, "run", "", "Show item outcomes of one run")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func renderRunsTable(runs []history.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Status,
			strconv.Itoa(run.Acquired),
			strconv.Itoa(run.Existing),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Skipped),
			formatWatermark(run.WatermarkBefore) + " -> " + formatWatermark(run.WatermarkAfter),
			yesNo(run.Published),
			truncate(run.Error, 48),
		})
	}
	return renderTable([]column{
		col("Run"), col("Started"), col("Status"),
		numCol("New"), numCol("Existing"), numCol("Failed"), numCol("Skipped"),
		col("Watermark"), col("Published"), col("Error"),
	}, rows)
}

func renderAttemptsTable(attempts []history.Attempt) string {
	rows := make([][]string, 0, len(attempts))
	for _, attempt := range attempts {
		rows = append(rows, []string{
			attempt.ItemID,
			strconv.Itoa(attempt.Position),
			truncate(attempt.Title, 40),
			string(attempt.Outcome),
			attempt.Artifact,
			attempt.RecordedAt.Local().Format(time.DateTime),
			truncate(attempt.Error, 48),
		})
	}
	return renderTable([]column{
		col("Item"), numCol("Pos"), col("Title"), col("Outcome"), col("File"), col("Recorded"), col("Error"),
	}, rows)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"podmirror/internal/preflight"
	"podmirror/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify directories, binaries, playlist source and publish remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			results = append(results,
				preflight.CheckSourceFromConfig(cmd.Context(), cfg),
				preflight.CheckPublishFromConfig(cmd.Context(), cfg),
			)
			lines := renderSectionHeader("Readiness", colorize)
			for _, result := range results {
				lines = append(lines, resultLine(result, colorize))
			}
			lines = append(lines, renderSectionHeader("Binaries", colorize)...)
			lines = append(lines, dependencyLines(preflight.CheckSystemDeps(cmd.Context(), cfg), colorize)...)
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, result := range failed {
					names = append(names, result.Name)
				}
				return services.Wrap(services.ErrConfiguration, "check", "", strings.Join(names, ", "), errors.New("readiness checks failed"))
			}
			return nil
		},
	}
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"podmirror/internal/services"
)

func newPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Commit and push the work directory without syncing",
		Long:  "Run only the publish step. Use it to retry after a run ended with a\npublish failure; the playlist and watermark are not touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Publish.Enabled {
				return services.Wrap(services.ErrConfiguration, "publish", "", "publish.enabled is false", errors.New("publishing disabled"))
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			publisher, err := newPublisher(cfg, logger)
			if err != nil {
				return err
			}
			if err := publisher.Publish(cmd.Context(), cfg.Paths.WorkDir); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s (%s)\n", cfg.Paths.WorkDir, redactedRemote(cfg.Publish.RemoteURL), cfg.Publish.Branch)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"podmirror/internal/feed"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Feed maintenance",
	}
	cmd.AddCommand(newFeedRebuildCommand(ctx))
	return cmd
}

func newFeedRebuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Regenerate the feed from the media files on disk",
		Long:  "Rebuild feed.xml from the work directory without contacting the playlist\nsource or touching the watermark.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cfg, logger)
			if err != nil {
				return err
			}
			builder, err := newFeedBuilder(cfg)
			if err != nil {
				return err
			}
			artifacts, err := reg.Artifacts()
			if err != nil {
				return err
			}
			doc, err := builder.Build(artifacts, reg.Mapping())
			if err != nil {
				return err
			}
			if err := feed.Write(cfg.FeedPath(), doc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d items)\n", cfg.FeedPath(), len(artifacts))
			return nil
		},
	}
}

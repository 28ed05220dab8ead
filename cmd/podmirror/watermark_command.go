package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"podmirror/internal/watermark"
)

func newWatermarkCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Inspect or override the last processed playlist position",
	}
	cmd.AddCommand(newWatermarkShowCommand(ctx))
	cmd.AddCommand(newWatermarkSetCommand(ctx))
	return cmd
}

func newWatermarkShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			value, err := watermark.NewStore(cfg.WatermarkPath()).Load(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatWatermark(value))
			return nil
		},
	}
}

func newWatermarkSetCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "set <position>",
		Short: "Set the watermark (-1 reprocesses the whole playlist)",
		Long: "Set the last processed playlist position. Lowering the watermark requires\n" +
			"--force; use it after the upstream playlist was reordered.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			value, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid position %q: %w", args[0], err)
			}
			store := watermark.NewStore(cfg.WatermarkPath())
			if err := store.Set(cmd.Context(), value, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watermark set to %s\n", formatWatermark(value))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Allow lowering the watermark")
	return cmd
}

func formatWatermark(value int) string {
	if value == watermark.None {
		return "none"
	}
	return strconv.Itoa(value)
}

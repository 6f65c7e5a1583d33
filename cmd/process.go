package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/airshed-analytics/exposure-cli/internal/pipeline"
)

var (
	processForce bool
	processLimit int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Compute person-exposure rasters for all input pairs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if processForce {
			cfg.Process.Force = true
		}
		if err := cfg.Validate("process"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pairs, err := pipeline.Discover(cfg.Paths.InputDir)
		if err != nil {
			return err
		}
		if processLimit > 0 && len(pairs) > processLimit {
			pairs = pairs[:processLimit]
		}

		p := pipeline.New(st, cfg)
		if _, err := p.Run(ctx, pairs); err != nil {
			return err
		}

		_, err = p.WriteManifest(ctx)
		return err
	},
}

func init() {
	processCmd.Flags().BoolVar(&processForce, "force", false, "reprocess assets even when up to date")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "max number of pairs to process (0 = all)")
	rootCmd.AddCommand(processCmd)
}

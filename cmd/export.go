package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/airshed-analytics/exposure-cli/internal/pipeline"
)

var exportForce bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export downsampled raw-data JSON for canvas rendering",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if exportForce {
			cfg.Process.Force = true
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

		p := pipeline.New(st, cfg)
		if _, err := p.ExportRaw(ctx, pairs, cfg.Overlay.UniformMaxDim); err != nil {
			return err
		}

		_, err = p.WriteManifest(ctx)
		return err
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportForce, "force", false, "re-export existing raw data files")
	rootCmd.AddCommand(exportCmd)
}

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/airshed-analytics/exposure-cli/internal/overlay"
	"github.com/airshed-analytics/exposure-cli/internal/pipeline"
)

var (
	overlayStyle string
	overlayForce bool
)

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Render PNG map overlays for processed assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if overlayStyle != "" {
			cfg.Overlay.Style = overlayStyle
		}
		if overlayForce {
			cfg.Process.Force = true
		}
		if err := cfg.Validate("overlay"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rd, err := overlay.NewRenderer(cfg.Overlay)
		if err != nil {
			return err
		}

		pairs, err := pipeline.Discover(cfg.Paths.InputDir)
		if err != nil {
			return err
		}

		p := pipeline.New(st, cfg)
		if _, err := p.GenerateOverlays(ctx, rd, pairs); err != nil {
			return err
		}

		_, err = p.WriteManifest(ctx)
		return err
	},
}

func init() {
	overlayCmd.Flags().StringVar(&overlayStyle, "style", "", "colormap style: uniform or heat (default from config)")
	overlayCmd.Flags().BoolVar(&overlayForce, "force", false, "re-render existing overlays")
	rootCmd.AddCommand(overlayCmd)
}

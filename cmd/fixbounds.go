package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airshed-analytics/exposure-cli/internal/overlay"
)

var fixBoundsCmd = &cobra.Command{
	Use:   "fix-bounds",
	Short: "Repair degenerate bounds in overlay data files from raw exports",
	RunE: func(cmd *cobra.Command, args []string) error {
		fixed, err := overlay.FixBounds(cfg.Paths.RawDataDir, cfg.Paths.OverlaysDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "repaired %d overlay data files\n", fixed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fixBoundsCmd)
}

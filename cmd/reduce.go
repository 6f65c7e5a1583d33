package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/airshed-analytics/exposure-cli/internal/overlay"
)

var reduceSigDigits int

var reduceCmd = &cobra.Command{
	Use:   "reduce",
	Short: "Round overlay data files to fewer significant digits",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reduceSigDigits < 1 || reduceSigDigits > 15 {
			return eris.Errorf("sig-digits must be between 1 and 15, got %d", reduceSigDigits)
		}

		files, err := filepath.Glob(filepath.Join(cfg.Paths.OverlaysDir, "*_data.json"))
		if err != nil {
			return eris.Wrapf(err, "list %s", cfg.Paths.OverlaysDir)
		}

		var reduced, failed int
		var before, after int64
		for _, path := range files {
			if fi, err := os.Stat(path); err == nil {
				before += fi.Size()
			}
			if err := overlay.ReduceFile(path, reduceSigDigits); err != nil {
				failed++
				zap.L().Error("precision reduction failed",
					zap.String("file", path),
					zap.Error(err),
				)
				continue
			}
			if fi, err := os.Stat(path); err == nil {
				after += fi.Size()
			}
			reduced++
		}

		fmt.Fprintf(cmd.OutOrStdout(), "reduced %d files to %d significant digits, %d -> %d bytes (%d failed)\n",
			reduced, reduceSigDigits, before, after, failed)
		return nil
	},
}

func init() {
	reduceCmd.Flags().IntVar(&reduceSigDigits, "sig-digits", 4, "significant digits to keep")
	rootCmd.AddCommand(reduceCmd)
}

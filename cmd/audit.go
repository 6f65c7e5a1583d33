package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/airshed-analytics/exposure-cli/internal/pipeline"
)

var auditCountry string

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan input rasters for edge artifacts and clipped data",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("audit"); err != nil {
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
		if auditCountry != "" {
			var filtered []pipeline.Pair
			for _, p := range pairs {
				if p.Country == auditCountry {
					filtered = append(filtered, p)
				}
			}
			pairs = filtered
		}

		a := pipeline.NewAuditor(cfg.Audit.ZeroThreshold, cfg.Process.Workers)
		entries, err := a.Scan(ctx, pairs)
		if err != nil {
			return err
		}
		if err := st.ReplaceAuditEntries(ctx, entries); err != nil {
			return err
		}

		suspicious := make(map[string]int)
		var errored int
		for _, e := range entries {
			if e.Suspicious() {
				suspicious[e.FileType]++
				fmt.Fprintf(cmd.OutOrStdout(), "SUSPICIOUS %s %s (%s): top=%d bottom=%d left=%d right=%d\n",
					e.Country, e.AssetID, e.FileType,
					e.Report.Patterns.TopZeroRows, e.Report.Patterns.BottomZeroRows,
					e.Report.Patterns.LeftZeroCols, e.Report.Patterns.RightZeroCols)
			}
			if e.Err != "" {
				errored++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d files: %d suspicious concentration, %d suspicious population, %d unreadable\n",
			len(entries), suspicious[string(pipeline.KindConcentration)],
			suspicious[string(pipeline.KindPopulation)], errored)
		return nil
	},
}

func init() {
	auditCmd.Flags().StringVar(&auditCountry, "country", "", "limit the scan to one country code")
	rootCmd.AddCommand(auditCmd)
}

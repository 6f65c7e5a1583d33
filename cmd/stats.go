package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/airshed-analytics/exposure-cli/internal/report"
	"github.com/airshed-analytics/exposure-cli/internal/store"
)

var (
	statsCountry string
	statsXLSX    string
	statsHTML    string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize processed assets by country",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListAssets(ctx, store.AssetFilter{Country: statsCountry})
		if err != nil {
			return err
		}

		s := report.Build(records)
		s.WriteText(cmd.OutOrStdout())

		if statsXLSX != "" {
			if err := report.WriteXLSX(statsXLSX, records, s); err != nil {
				return err
			}
		}
		if statsHTML != "" {
			if err := report.WriteHTML(statsHTML, s); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsCountry, "country", "", "limit to one country code")
	statsCmd.Flags().StringVar(&statsXLSX, "xlsx", "", "also write a spreadsheet to this path")
	statsCmd.Flags().StringVar(&statsHTML, "html", "", "also write a bar chart to this path")
	rootCmd.AddCommand(statsCmd)
}

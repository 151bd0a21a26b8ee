package main

import (
	"github.com/spf13/cobra"

	"github.com/warp/attainment-dashboard/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Load the sheet once and print projections and totals",
	RunE:  runReport,
}

func runReport(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	table, err := a.tables.Get(cmd.Context())
	if err != nil {
		return err
	}

	set := a.engine.ComputeProjections(table, a.daysRemaining())
	totals, totalsErr := a.engine.ComputeTotals(table)

	return report.Render(cmd.OutOrStdout(), report.Input{
		Source:      a.cfg.SourceURL,
		Layout:      a.layout,
		Summary:     a.engine.Summarize(totals, set),
		Projections: set,
		Totals:      totals,
		TotalsErr:   totalsErr,
	})
}

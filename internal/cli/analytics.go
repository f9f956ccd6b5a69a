package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// addAnalyticsCommands adds the realized PnL summary command.
func addAnalyticsCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "analytics",
		Short: "Realized PnL summary",
		Long: `Summarize realized PnL across the journal: open and closed trade
counts, totals, and PnL by exit month.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			summary, err := app.Journal.Analytics(ctx)
			if err != nil {
				output.Error("Failed to compute analytics: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(summary)
			}

			output.Bold("Trades")
			output.Printf("  Open:    %s\n", strconv.Itoa(summary.TotalOpenTrades))
			output.Printf("  Closed:  %s\n", strconv.Itoa(summary.TotalClosedTrades))
			output.Println()

			output.Bold("Realized P&L")
			output.Printf("  Overall:        %s\n", output.FormatPnL(summary.OverallPnL))
			output.Printf("  Closed trades:  %s\n", output.FormatPnL(summary.ClosedTradesPnL))
			output.Printf("  Open trades:    %s\n", output.FormatPnL(summary.OpenTradesPnL))

			if len(summary.PnLOverTime) == 0 {
				return nil
			}
			output.Println()
			table := NewTable(output, "Month", "P&L")
			for _, m := range summary.PnLOverTime {
				table.AddRow(m.Month, output.FormatPnL(m.PnL))
			}
			table.Render()
			return nil
		},
	})
}

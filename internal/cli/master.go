package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// addMasterCommands adds contract master commands.
func addMasterCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Contract master cache",
		Long: `Manage the cached contract master used for expiry dates and for
finding the nearest futures contract of a snapshot basket.`,
	}

	cmd.AddCommand(newMasterRefreshCmd(app))
	cmd.AddCommand(newMasterImportCmd(app))
	cmd.AddCommand(newMasterShowCmd(app))

	rootCmd.AddCommand(cmd)
}

func newMasterRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Download the contract master from Kite",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			if !output.IsJSON() {
				output.Info("Downloading instruments...")
			}
			n, err := app.Master.Refresh(ctx)
			if err != nil {
				output.Error("Master refresh failed: %v", err)
				return err
			}
			app.Metrics.SetMasterRecords(n)

			if output.IsJSON() {
				return output.JSON(map[string]int{"records": n})
			}
			output.Success("✓ Cached %d contracts", n)
			return nil
		},
	}
}

func newMasterImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Load the contract master from a CSV file",
		Long: `Replace the cached contracts of every exchange present in the file.

Columns: exchange_symbol, underlying, exchange, segment, instrument_type,
symbol_details, expiry_epoch, lot_size, tick_size, instrument_key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			f, err := os.Open(args[0])
			if err != nil {
				output.Error("Cannot open %s: %v", args[0], err)
				return err
			}
			defer f.Close()

			n, err := app.Master.ImportCSV(ctx, f)
			if err != nil {
				output.Error("Import failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{"records": n})
			}
			output.Success("✓ Imported %d contracts", n)
			return nil
		},
	}
}

func newMasterShowCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show <underlying>",
		Short:   "Show cached contracts on an underlying",
		Example: "  journal master show GOLDM\n  journal master show SILVERM --csv > silverm.csv",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			underlying := strings.ToUpper(args[0])

			if asCSV, _ := cmd.Flags().GetBool("csv"); asCSV {
				return app.Master.ExportCSV(ctx, underlying, cmd.OutOrStdout())
			}

			futures, err := app.Master.ByUnderlying(ctx, underlying)
			if err != nil {
				output.Error("Lookup failed: %v", err)
				return err
			}
			if len(futures) == 0 {
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{"underlying": underlying, "futures": []string{}})
				}
				output.Warning("No live futures cached for %s. Run 'journal master refresh' first.", underlying)
				return nil
			}

			records, err := app.Master.BySymbols(ctx, futures)
			if err != nil {
				output.Error("Lookup failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"underlying": underlying, "futures": futures, "records": records})
			}

			table := NewTable(output, "Contract", "Segment", "Expiry", "Lot")
			for _, ticker := range futures {
				rec := records[ticker]
				table.AddRow(ticker, rec.Segment, FormatOptionalDate(rec.ExpiryDate()), FormatQuantity(rec.LotSize))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().Bool("csv", false, "write every cached contract as CSV")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trade-journal/internal/enrich"
	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// addTradeCommands adds trade management commands.
func addTradeCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Trade management",
		Long:  "Record, review and price multi-leg trades.",
	}

	cmd.AddCommand(newTradeListCmd(app))
	cmd.AddCommand(newTradeShowCmd(app))
	cmd.AddCommand(newTradeAddCmd(app))
	cmd.AddCommand(newTradeDeleteCmd(app))
	cmd.AddCommand(newTradeLiveCmd(app))
	cmd.AddCommand(newTradeSeedCmd(app))

	rootCmd.AddCommand(cmd)
}

// commandContext bounds a command by the broker request timeout.
func commandContext(cmd *cobra.Command, app *App) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	timeout := 30 * time.Second
	if app.Config != nil && app.Config.Broker.RequestTimeout > 0 {
		timeout = app.Config.Broker.RequestTimeout
	}
	return context.WithTimeout(base, timeout)
}

func parseIDArg(arg, entity string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.NewValidationError(entity+"_id", arg, "must be a positive integer")
	}
	return id, nil
}

func newTradeListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades",
		Long:  "List trades newest first with their stored PnL.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			page, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("page-size")

			views, p, err := app.Journal.ListTrades(ctx, page, size)
			if err != nil {
				output.Error("Failed to list trades: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"pagination": p, "results": views})
			}

			if len(views) == 0 {
				output.Info("No trades recorded.")
				output.Dim("Tip: add one with 'journal trade add' or load samples with 'journal trade seed'.")
				return nil
			}

			table := NewTable(output, "ID", "Name", "Status", "Legs", "Entry", "Tickers", "P&L")
			for _, v := range views {
				table.AddRow(
					strconv.FormatInt(v.Trade.TradeID, 10),
					TruncateString(v.Trade.Name, 30),
					statusText(output, v.Summary.IsOpen),
					strconv.Itoa(v.Summary.LegCount),
					FormatOptionalDate(v.Summary.EntryDate),
					TruncateString(strings.Join(v.Summary.Tickers, ", "), 40),
					output.FormatPnL(v.Summary.PnL),
				)
			}
			table.Render()
			output.Dim("Page %d of %d (%d trades)", p.CurrentPage, max(p.TotalPages, 1), p.Count)
			return nil
		},
	}

	cmd.Flags().Int("page", models.DefaultPage, "page number")
	cmd.Flags().Int("page-size", models.DefaultPageSize, "trades per page")
	return cmd
}

func statusText(output *Output, open bool) string {
	if open {
		return output.Yellow("OPEN")
	}
	return output.DimText("CLOSED")
}

func newTradeShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "show <trade-id>",
		Short:   "Show a trade with live PnL",
		Long:    "Show a trade's legs enriched with live quotes and contract expiries.",
		Example: "  journal trade show 4",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			id, err := parseIDArg(args[0], "trade")
			if err != nil {
				return err
			}
			et, err := app.Journal.GetTrade(ctx, id)
			if err != nil {
				output.Error("Failed to load trade: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(et)
			}
			printEnrichedTrade(output, et)
			return nil
		},
	}
}

func printEnrichedTrade(output *Output, et *enrich.EnrichedTrade) {
	output.Bold("Trade #%d: %s", et.Trade.TradeID, et.Trade.Name)
	if et.Trade.Description != nil && *et.Trade.Description != "" {
		output.Dim("%s", *et.Trade.Description)
	}
	output.Println()
	output.Printf("  Status:       %s\n", statusText(output, et.Summary.IsOpen))
	output.Printf("  Entry Date:   %s\n", FormatOptionalDate(et.Summary.EntryDate))
	output.Printf("  Realized P&L: %s\n", output.FormatPnL(et.Summary.PnL))
	output.Printf("  Live P&L:     %s\n", output.FormatOptionalPnL(et.EnrichedPnL))
	output.Println()

	table := NewTable(output, "Leg", "Ticker", "Qty", "Entry", "Exit", "LTP", "Expiry", "Days", "P&L", "P&L %")
	for _, l := range et.Legs {
		exit := "-"
		if !l.IsOpen() {
			exit = fmt.Sprintf("%s @ %s", FormatPrice(*l.ExitPrice), FormatDate(*l.ExitDate))
		}
		days := "-"
		if l.DaysLeftForExpiry != nil {
			days = strconv.Itoa(*l.DaysLeftForExpiry)
		}
		table.AddRow(
			strconv.FormatInt(l.ID, 10),
			l.Ticker,
			FormatQuantity(l.Quantity),
			fmt.Sprintf("%s @ %s", FormatPrice(l.EntryPrice), FormatDate(l.EntryDate)),
			exit,
			FormatOptionalPrice(l.LTP),
			FormatOptionalDate(l.ExpiryDate),
			days,
			output.FormatOptionalPnL(l.PnL),
			output.FormatPercent(l.PnLPercentage),
		)
	}
	table.Render()

	if et.QuoteError != "" {
		output.Println()
		output.Warning("Live quotes unavailable: %s", et.QuoteError)
	}
	if et.MasterError != "" {
		output.Warning("Contract master unavailable: %s", et.MasterError)
	}
}

func newTradeAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a trade",
		Long: `Record a trade with one or more legs.

Each --leg is TICKER,ENTRY_DATE,ENTRY_PRICE,QTY for an open leg, or
TICKER,ENTRY_DATE,ENTRY_PRICE,QTY,EXIT_DATE,EXIT_PRICE for a closed one.
Dates are YYYY-MM-DD; a negative quantity is a short leg.`,
		Example: `  journal trade add --name "Gold carry" \
    --leg NSE:GOLDBEES-EQ,2025-01-06,62.40,500 \
    --leg MCX:GOLDM25MARFUT,2025-01-06,83950,-1,2025-03-14,86120`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			name, _ := cmd.Flags().GetString("name")
			specs, _ := cmd.Flags().GetStringArray("leg")

			in := models.NewTrade{Name: name}
			if cmd.Flags().Changed("description") {
				desc, _ := cmd.Flags().GetString("description")
				in.Description = &desc
			}
			for _, spec := range specs {
				leg, err := parseLegSpec(spec)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				in.Legs = append(in.Legs, leg)
			}

			view, err := app.Journal.CreateTrade(ctx, in)
			if err != nil {
				output.Error("Failed to record trade: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(view)
			}
			output.Success("✓ Trade #%d recorded (%d legs, realized %s)",
				view.Trade.TradeID, view.Summary.LegCount, FormatPnL(view.Summary.PnL))
			return nil
		},
	}

	cmd.Flags().String("name", "", "trade name (required)")
	cmd.Flags().String("description", "", "trade description")
	cmd.Flags().StringArray("leg", nil, "leg spec, repeatable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("leg")
	return cmd
}

// parseLegSpec parses TICKER,ENTRY_DATE,ENTRY_PRICE,QTY[,EXIT_DATE,EXIT_PRICE].
func parseLegSpec(spec string) (models.LegInput, error) {
	parts := strings.Split(spec, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) != 4 && len(parts) != 6 {
		return models.LegInput{}, errors.NewValidationError("leg", spec,
			"expected TICKER,ENTRY_DATE,ENTRY_PRICE,QTY[,EXIT_DATE,EXIT_PRICE]")
	}

	entryDate, err := models.ParseDate(parts[1])
	if err != nil {
		return models.LegInput{}, errors.NewValidationError("entry_date", parts[1], err.Error())
	}
	entryPrice, err := decimal.NewFromString(parts[2])
	if err != nil {
		return models.LegInput{}, errors.NewValidationError("entry_price", parts[2], "not a number")
	}
	qty, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return models.LegInput{}, errors.NewValidationError("quantity", parts[3], "not an integer")
	}

	leg := models.LegInput{
		Ticker:     strings.ToUpper(parts[0]),
		EntryDate:  entryDate,
		EntryPrice: entryPrice,
		Quantity:   qty,
	}
	if len(parts) == 6 {
		exitDate, err := models.ParseDate(parts[4])
		if err != nil {
			return models.LegInput{}, errors.NewValidationError("exit_date", parts[4], err.Error())
		}
		exitPrice, err := decimal.NewFromString(parts[5])
		if err != nil {
			return models.LegInput{}, errors.NewValidationError("exit_price", parts[5], "not a number")
		}
		leg.ExitDate = &exitDate
		leg.ExitPrice = &exitPrice
	}
	return leg, leg.Validate()
}

func newTradeDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <trade-id>",
		Short: "Delete a trade and its legs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			id, err := parseIDArg(args[0], "trade")
			if err != nil {
				return err
			}
			if err := app.Journal.DeleteTrade(ctx, id); err != nil {
				output.Error("Failed to delete trade: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"deleted": id})
			}
			output.Success("✓ Trade #%d deleted", id)
			return nil
		},
	}
}

func newTradeLiveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Unrealized PnL of open trades",
		Long:  "Price every open leg with its last traded price.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			view, err := app.Journal.LivePrices(ctx)
			if err != nil {
				output.Error("Failed to price open trades: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(view)
			}
			printLiveView(output, view)
			return nil
		},
	}
}

func printLiveView(output *Output, view enrich.LiveView) {
	if !view.BrokerConfigured {
		output.Warning("Broker not configured; add Kite credentials to credentials.toml for live prices.")
	} else if view.BrokerError != "" {
		output.Warning("Live quotes unavailable: %s", view.BrokerError)
	}
	if len(view.OpenTrades) == 0 {
		output.Info("No open trades.")
		return
	}

	table := NewTable(output, "Trade", "Ticker", "Qty", "Entry", "LTP", "Change", "Change %", "Unrealized")
	for _, t := range view.OpenTrades {
		for _, l := range t.Legs {
			if !l.IsOpen() {
				continue
			}
			change := "-"
			if l.PriceChange != nil {
				change = FormatPrice(*l.PriceChange)
			}
			table.AddRow(
				fmt.Sprintf("#%d %s", t.TradeID, TruncateString(t.Name, 24)),
				l.Ticker,
				FormatQuantity(l.Quantity),
				FormatPrice(l.EntryPrice),
				FormatOptionalPrice(l.CurrentPrice),
				change,
				output.FormatPercent(l.PriceChangePercent),
				output.FormatOptionalPnL(l.UnrealizedPnL),
			)
		}
	}
	table.Render()
	output.Println()
	output.Printf("Total unrealized P&L: %s\n", output.FormatPnL(view.TotalUnrealizedPnL))
}

func newTradeSeedCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert sample trades",
		Long:  "Insert a set of sample gold and silver trades for trying the journal out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			clear, _ := cmd.Flags().GetBool("clear")
			n, err := app.Journal.Seed(ctx, clear)
			if err != nil {
				output.Error("Failed to seed trades: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]int{"created": n})
			}
			output.Success("✓ Seeded %d trades", n)
			return nil
		},
	}

	cmd.Flags().Bool("clear", false, "delete every existing trade first")
	return cmd
}

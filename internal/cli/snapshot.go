package cli

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trade-journal/internal/enrich"
	"trade-journal/internal/errors"
	"trade-journal/internal/journal"
	"trade-journal/internal/models"
)

// addSnapshotCommands adds price snapshot commands.
func addSnapshotCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Price snapshots",
		Long: `Record basket prices at a point in time and track how far each
instrument has moved since.`,
	}

	cmd.AddCommand(newSnapshotListCmd(app))
	cmd.AddCommand(newSnapshotShowCmd(app))
	cmd.AddCommand(newSnapshotCreateCmd(app))
	cmd.AddCommand(newSnapshotDeleteCmd(app))

	rootCmd.AddCommand(cmd)
}

func newSnapshotListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			page, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("page-size")

			snaps, p, err := app.Journal.ListSnapshots(ctx, page, size)
			if err != nil {
				output.Error("Failed to list snapshots: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"pagination": p, "results": snaps})
			}
			if len(snaps) == 0 {
				output.Info("No snapshots recorded.")
				return nil
			}

			table := NewTable(output, "ID", "Name", "Legs", "Tickers", "Created")
			for _, s := range snaps {
				table.AddRow(
					strconv.FormatInt(s.Snapshot.SnapshotID, 10),
					TruncateString(s.Snapshot.Name, 30),
					strconv.Itoa(s.LegCount),
					TruncateString(strings.Join(s.Tickers, ", "), 50),
					FormatDateTime(s.Snapshot.CreatedAt),
				)
			}
			table.Render()
			output.Dim("Page %d of %d (%d snapshots)", p.CurrentPage, max(p.TotalPages, 1), p.Count)
			return nil
		},
	}

	cmd.Flags().Int("page", models.DefaultPage, "page number")
	cmd.Flags().Int("page-size", models.DefaultPageSize, "snapshots per page")
	return cmd
}

func newSnapshotShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Show a snapshot with movement since recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			id, err := parseIDArg(args[0], "snapshot")
			if err != nil {
				return err
			}
			snap, err := app.Journal.GetSnapshot(ctx, id)
			if err != nil {
				output.Error("Failed to load snapshot: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(snap)
			}
			printSnapshot(output, snap)
			return nil
		},
	}
}

func printSnapshot(output *Output, es *enrich.EnrichedSnapshot) {
	output.Bold("Snapshot #%d: %s", es.Snapshot.SnapshotID, es.Snapshot.Name)
	if es.Snapshot.Description != nil && *es.Snapshot.Description != "" {
		output.Dim("%s", *es.Snapshot.Description)
	}
	output.Println()

	table := NewTable(output, "Ticker", "Date", "Price", "Qty", "Now", "Points", "Move %", "Days")
	for _, l := range es.Legs {
		points := "-"
		if l.PointsMoved != nil {
			points = output.signColor(*l.PointsMoved, FormatPrice(*l.PointsMoved))
		}
		table.AddRow(
			l.Ticker,
			FormatDate(l.Date),
			FormatPrice(l.Price),
			FormatQuantity(l.Quantity),
			FormatOptionalPrice(l.CurrentPrice),
			points,
			output.FormatPercent(l.PercentageMoved),
			strconv.Itoa(l.DaysSinceSnapshot),
		)
	}
	table.Render()

	if es.QuoteError != "" {
		output.Println()
		output.Warning("Live quotes unavailable: %s", es.QuoteError)
	}
}

func newSnapshotCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a snapshot",
		Long: `Record a snapshot from explicit legs, or from live prices of a basket.

With --type and no --leg, the basket's ETFs and its nearest futures contract
are priced from Kite. Each --leg is TICKER,DATE,PRICE,QTY.`,
		Example: `  journal snapshot create --name "Gold open" --type goldm
  journal snapshot create --name "Manual" --leg NSE:GOLDBEES-EQ,2025-11-10,98.50,100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			req := journal.BasketSnapshotRequest{}
			req.Name, _ = cmd.Flags().GetString("name")
			req.SnapshotType, _ = cmd.Flags().GetString("type")
			if cmd.Flags().Changed("description") {
				desc, _ := cmd.Flags().GetString("description")
				req.Description = &desc
			}

			specs, _ := cmd.Flags().GetStringArray("leg")
			for _, spec := range specs {
				leg, err := parseSnapshotLegSpec(spec)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				req.Legs = append(req.Legs, leg)
			}
			if len(req.Legs) == 0 && req.SnapshotType == "" {
				err := errors.NewValidationError("leg", "", "give --leg entries or a basket --type")
				output.Error("%v", err)
				return err
			}

			snap, err := app.Journal.CreateSnapshot(ctx, req)
			if err != nil {
				output.Error("Failed to record snapshot: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(snap)
			}
			output.Success("✓ Snapshot #%d recorded with %d legs", snap.Snapshot.SnapshotID, snap.LegCount)
			return nil
		},
	}

	cmd.Flags().String("name", "", "snapshot name (required)")
	cmd.Flags().String("description", "", "snapshot description")
	cmd.Flags().String("type", "", "basket to price, e.g. goldm")
	cmd.Flags().StringArray("leg", nil, "leg spec, repeatable")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// parseSnapshotLegSpec parses TICKER,DATE,PRICE,QTY.
func parseSnapshotLegSpec(spec string) (models.SnapshotLegInput, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 4 {
		return models.SnapshotLegInput{}, errors.NewValidationError("leg", spec, "expected TICKER,DATE,PRICE,QTY")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	date, err := models.ParseDate(parts[1])
	if err != nil {
		return models.SnapshotLegInput{}, errors.NewValidationError("date", parts[1], err.Error())
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return models.SnapshotLegInput{}, errors.NewValidationError("price", parts[2], "not a number")
	}
	qty, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return models.SnapshotLegInput{}, errors.NewValidationError("quantity", parts[3], "not an integer")
	}

	leg := models.SnapshotLegInput{
		Ticker:   strings.ToUpper(parts[0]),
		Date:     date,
		Price:    price,
		Quantity: qty,
	}
	return leg, leg.Validate()
}

func newSnapshotDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a snapshot and its legs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, app)
			defer cancel()

			id, err := parseIDArg(args[0], "snapshot")
			if err != nil {
				return err
			}
			if err := app.Journal.DeleteSnapshot(ctx, id); err != nil {
				output.Error("Failed to delete snapshot: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"deleted": id})
			}
			output.Success("✓ Snapshot #%d deleted", id)
			return nil
		},
	}
}

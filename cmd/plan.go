package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trip-planner/internal/export"
	"github.com/sells-group/trip-planner/internal/model"
	"github.com/sells-group/trip-planner/internal/recovery"
)

var (
	planReq  model.Request
	planXLSX string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a single trip",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx, "plan")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Planner.Plan(ctx, planReq)
		if err != nil {
			var execErr *recovery.ExecutionError
			if errors.As(err, &execErr) {
				fmt.Fprintf(os.Stderr, "%s; see %s for details\n", execErr.Error(), cfg.Diagnostics.Path)
			}
			return err
		}

		zap.L().Info("plan finished",
			zap.String("run_id", out.RunID),
			zap.String("status", string(out.Status)),
			zap.String("source", out.Source),
		)

		body, err := out.Body()
		if err != nil {
			return err
		}
		var pretty any
		if err := json.Unmarshal(body, &pretty); err != nil {
			return eris.Wrap(err, "plan: decode body")
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(pretty); err != nil {
			return err
		}

		if planXLSX != "" && out.Itinerary != nil {
			if err := export.WriteXLSX(planXLSX, out.Itinerary); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", planXLSX)
		}
		return nil
	},
}

func init() {
	f := planCmd.Flags()
	f.StringVar(&planReq.Destination, "destination", "", "trip destination (required)")
	f.StringVar(&planReq.Origin, "origin", "", "departure city")
	f.IntVar(&planReq.Days, "days", 3, "trip length in days")
	f.Float64Var(&planReq.Budget, "budget", 0, "total budget (required)")
	f.IntVar(&planReq.Travelers, "travelers", 1, "number of travelers")
	f.StringVar(&planReq.TravelStyle, "style", "", "travel style (balanced, luxury, backpacker, ...)")
	f.StringVar(&planReq.Currency, "currency", "", "ISO currency code (default INR)")
	f.StringVar(&planReq.ReferenceDate, "date", "", "reference date YYYY-MM-DD (default today)")
	f.BoolVar(&planReq.ForceRefresh, "force", false, "ignore cached plans")
	f.StringVar(&planXLSX, "xlsx", "", "also write the itinerary to this .xlsx file")
	_ = planCmd.MarkFlagRequired("destination")
	_ = planCmd.MarkFlagRequired("budget")
	rootCmd.AddCommand(planCmd)
}

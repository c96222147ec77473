package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/trip-planner/internal/model"
)

var tripsCmd = &cobra.Command{
	Use:   "trips",
	Short: "Inspect stored trips",
}

// -- trips list --

var tripsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored trips",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("trips"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		destination, _ := cmd.Flags().GetString("destination")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		trips, err := st.ListTrips(ctx, model.TripFilter{
			Destination: destination,
			Status:      model.RunStatus(status),
			Limit:       limit,
			Offset:      offset,
		})
		if err != nil {
			return eris.Wrap(err, "trips list")
		}

		if len(trips) == 0 {
			fmt.Fprintln(os.Stderr, "No trips found.")
			return nil
		}
		formatTripsList(os.Stdout, trips)
		return nil
	},
}

// -- trips get --

var tripsGetCmd = &cobra.Command{
	Use:   "get <trip-id>",
	Short: "Show a stored trip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("trips"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		trip, err := st.GetTrip(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "trips get")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(trip)
	},
}

func init() {
	tripsListCmd.Flags().String("status", "", "filter by status (completed, rejected)")
	tripsListCmd.Flags().String("destination", "", "filter by destination (case-insensitive)")
	tripsListCmd.Flags().Int("limit", 50, "max number of trips to display")
	tripsListCmd.Flags().Int("offset", 0, "skip this many trips")

	tripsCmd.AddCommand(tripsListCmd)
	tripsCmd.AddCommand(tripsGetCmd)
	rootCmd.AddCommand(tripsCmd)
}

// formatTripsList writes a tabular list of trips to out.
func formatTripsList(out io.Writer, trips []model.Trip) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDESTINATION\tDAYS\tBUDGET\tSTATUS\tCOST_USD\tCREATED")
	for _, t := range trips {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.0f %s\t%s\t%.4f\t%s\n",
			t.ID,
			t.Request.Destination,
			t.Request.Days,
			t.Request.Budget,
			t.Request.Currency,
			t.Status,
			t.CostUSD,
			t.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

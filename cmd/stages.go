package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/trip-planner/internal/stage"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Print the stage graph grouped by dependency level",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := stage.LoadCatalog(cfg.Pipeline.CatalogPath)
		if err != nil {
			return err
		}
		formatStages(os.Stdout, catalog.Graph())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stagesCmd)
}

// formatStages writes one row per stage: its group, name, dependencies and
// whether it gates the run.
func formatStages(out io.Writer, g *stage.Graph) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GROUP\tSTAGE\tDEPENDS_ON\tGATE")
	for i, grp := range g.Groups() {
		for _, s := range grp {
			deps := strings.Join(s.DependsOn, ",")
			if deps == "" {
				deps = "-"
			}
			gate := ""
			if s.AbortOnNegative {
				gate = "yes"
			}
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, s.Name, deps, gate)
		}
	}
	_ = w.Flush()
}

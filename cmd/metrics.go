package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dealsense/internal/metrics"
	"github.com/sells-group/dealsense/internal/report"
)

var (
	metricsOpportunity string
	metricsJSON        bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show per-agent execution metrics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		snapshots, err := metrics.NewCollector(st).Collect(ctx, metricsOpportunity)
		if err != nil {
			return eris.Wrap(err, "collect metrics")
		}

		if metricsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshots)
		}

		fmt.Println(report.FormatMetrics(snapshots))
		return nil
	},
}

func init() {
	metricsCmd.Flags().StringVar(&metricsOpportunity, "opportunity", "", "scope metrics to one opportunity")
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "emit metrics as JSON")
	rootCmd.AddCommand(metricsCmd)
}

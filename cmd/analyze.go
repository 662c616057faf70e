package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealsense/internal/pipeline"
	"github.com/sells-group/dealsense/internal/report"
)

var (
	analyzeForce bool
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <opportunity-id>",
	Short: "Run the full agent pipeline against one opportunity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opportunityID := args[0]

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, opportunityID, analyzeForce)
		if err != nil {
			if errors.Is(err, pipeline.ErrContextUnavailable) {
				return eris.Wrapf(err, "opportunity %s cannot be analyzed", opportunityID)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("analysis complete",
			zap.String("opportunity", opportunityID),
			zap.String("status", string(result.Status)),
			zap.Int("total_tokens", result.TotalTokens),
		)

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Println(report.FormatRun(result))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "re-run every agent even if recent extractions exist")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "emit the run report as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

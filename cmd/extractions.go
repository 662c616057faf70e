package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/dealsense/internal/agent"
	"github.com/sells-group/dealsense/internal/model"
)

var (
	extractionsAgent   string
	extractionsLimit   int
	extractionsHistory bool
)

var extractionsCmd = &cobra.Command{
	Use:   "extractions <opportunity-id>",
	Short: "Show stored extractions for an opportunity",
	Long:  "Without flags, prints the latest succeeded extraction per agent type. With --history, prints the full version history (newest first).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opportunityID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if extractionsHistory {
			if extractionsAgent == "" {
				return eris.New("--history requires --agent")
			}
			def, err := agent.Lookup(model.AgentType(extractionsAgent))
			if err != nil {
				return err
			}
			history, err := st.History(ctx, opportunityID, def.Type, extractionsLimit)
			if err != nil {
				return eris.Wrap(err, "load history")
			}
			return enc.Encode(history)
		}

		latest, err := st.LatestPerType(ctx, opportunityID)
		if err != nil {
			return eris.Wrap(err, "load latest extractions")
		}
		if extractionsAgent != "" {
			e, ok := latest[model.AgentType(extractionsAgent)]
			if !ok {
				return eris.Errorf("no succeeded extraction for agent %s", extractionsAgent)
			}
			return enc.Encode(e)
		}

		// Emit in canonical agent order rather than map order.
		out := make([]model.Extraction, 0, len(latest))
		for _, def := range agent.All() {
			if e, ok := latest[def.Type]; ok {
				out = append(out, e)
			}
		}
		return enc.Encode(out)
	},
}

func init() {
	extractionsCmd.Flags().StringVar(&extractionsAgent, "agent", "", "filter to one agent type")
	extractionsCmd.Flags().IntVar(&extractionsLimit, "limit", 20, "max versions to show with --history")
	extractionsCmd.Flags().BoolVar(&extractionsHistory, "history", false, "show full version history for --agent")
	rootCmd.AddCommand(extractionsCmd)
}

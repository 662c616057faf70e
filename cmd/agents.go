package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dealsense/internal/agent"
	"github.com/sells-group/dealsense/internal/model"
)

var agentsLoadPath string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and manage agent configurations",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents and their stored configuration",
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

		configs, err := st.ListAgentConfigs(ctx)
		if err != nil {
			return eris.Wrap(err, "list agent configs")
		}
		byType := make(map[model.AgentType]model.AgentRunConfig, len(configs))
		for _, c := range configs {
			byType[c.AgentType] = c
		}

		fmt.Printf("%-22s %-12s %-24s %s\n", "AGENT", "CATEGORY", "MODEL", "STATUS")
		for _, def := range agent.All() {
			c, ok := byType[def.Type]
			switch {
			case !ok:
				fmt.Printf("%-22s %-12s %-24s not configured\n", def.Type, def.Category, "-")
			case !c.Active:
				fmt.Printf("%-22s %-12s %-24s inactive\n", def.Type, def.Category, c.Model)
			default:
				fmt.Printf("%-22s %-12s %-24s active\n", def.Type, def.Category, c.Model)
			}
		}
		return nil
	},
}

var agentsLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load agent configurations from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(agentsLoadPath)
		if err != nil {
			return eris.Wrap(err, "read agents file")
		}

		var doc struct {
			Agents []model.AgentRunConfig `yaml:"agents"`
		}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return eris.Wrap(err, "parse agents file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		loaded := 0
		for _, c := range doc.Agents {
			if _, err := agent.Lookup(c.AgentType); err != nil {
				zap.L().Warn("skipping unknown agent type", zap.String("agent", string(c.AgentType)))
				continue
			}
			if err := st.UpsertAgentConfig(ctx, c); err != nil {
				return eris.Wrapf(err, "upsert config for %s", c.AgentType)
			}
			loaded++
		}

		zap.L().Info("agent configs loaded",
			zap.Int("loaded", loaded),
			zap.String("file", agentsLoadPath),
		)
		return nil
	},
}

func init() {
	agentsLoadCmd.Flags().StringVar(&agentsLoadPath, "file", "", "path to YAML agent config file (required)")
	_ = agentsLoadCmd.MarkFlagRequired("file")
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsLoadCmd)
	rootCmd.AddCommand(agentsCmd)
}

package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/dealsense/internal/model"
)

var importFilePath string

// importDoc is the YAML shape accepted by the import command: one
// opportunity plus its transcript.
type importDoc struct {
	Opportunity struct {
		ID          string  `yaml:"id"`
		Name        string  `yaml:"name"`
		Stage       string  `yaml:"stage"`
		Value       float64 `yaml:"value"`
		Probability int     `yaml:"probability"`
		Temperature string  `yaml:"temperature"`
		Customer    struct {
			Name    string `yaml:"name"`
			Company string `yaml:"company"`
			Email   string `yaml:"email"`
			Notes   string `yaml:"notes"`
		} `yaml:"customer"`
		Vendor struct {
			Name    string `yaml:"name"`
			Company string `yaml:"company"`
			Email   string `yaml:"email"`
			Notes   string `yaml:"notes"`
		} `yaml:"vendor"`
	} `yaml:"opportunity"`
	Messages []struct {
		SenderRole string    `yaml:"sender_role"`
		Text       string    `yaml:"text"`
		SentAt     time.Time `yaml:"sent_at"`
	} `yaml:"messages"`
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an opportunity and its transcript from YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(importFilePath)
		if err != nil {
			return eris.Wrap(err, "read import file")
		}

		var doc importDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return eris.Wrap(err, "parse import file")
		}
		if doc.Opportunity.ID == "" {
			return eris.New("opportunity.id is required")
		}
		if doc.Opportunity.Stage != "" && !model.ValidStage(model.Stage(doc.Opportunity.Stage)) {
			return eris.Errorf("unknown stage: %s", doc.Opportunity.Stage)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		opp := &model.OpportunityContext{
			ID:          doc.Opportunity.ID,
			Name:        doc.Opportunity.Name,
			Stage:       model.Stage(doc.Opportunity.Stage),
			Value:       doc.Opportunity.Value,
			Probability: doc.Opportunity.Probability,
			Temperature: model.Temperature(doc.Opportunity.Temperature),
			Customer: model.PartyInfo{
				Name:    doc.Opportunity.Customer.Name,
				Company: doc.Opportunity.Customer.Company,
				Email:   doc.Opportunity.Customer.Email,
				Notes:   doc.Opportunity.Customer.Notes,
			},
			Vendor: model.PartyInfo{
				Name:    doc.Opportunity.Vendor.Name,
				Company: doc.Opportunity.Vendor.Company,
				Email:   doc.Opportunity.Vendor.Email,
				Notes:   doc.Opportunity.Vendor.Notes,
			},
		}
		if err := st.UpsertOpportunity(ctx, opp); err != nil {
			return eris.Wrap(err, "upsert opportunity")
		}

		msgs := make([]model.Message, 0, len(doc.Messages))
		for _, m := range doc.Messages {
			if m.SenderRole != model.RoleCustomer && m.SenderRole != model.RoleVendor {
				return eris.Errorf("unknown sender_role: %s", m.SenderRole)
			}
			msgs = append(msgs, model.Message{
				SenderRole: m.SenderRole,
				Text:       m.Text,
				SentAt:     m.SentAt,
			})
		}
		if len(msgs) > 0 {
			if err := st.AddMessages(ctx, opp.ID, msgs); err != nil {
				return eris.Wrap(err, "add messages")
			}
		}

		zap.L().Info("import complete",
			zap.String("opportunity", opp.ID),
			zap.Int("messages", len(msgs)),
			zap.String("file", importFilePath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to YAML file (required)")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

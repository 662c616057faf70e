package model

import "time"

// Stage is the pipeline stage of a sales opportunity.
type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed_won"
	StageClosedLost    Stage = "closed_lost"
)

// ValidStage reports whether s is one of the six known pipeline stages.
func ValidStage(s Stage) bool {
	switch s {
	case StageProspecting, StageQualification, StageProposal,
		StageNegotiation, StageClosedWon, StageClosedLost:
		return true
	}
	return false
}

// Temperature classifies how actively an opportunity is moving.
type Temperature string

const (
	TemperatureHot  Temperature = "hot"
	TemperatureWarm Temperature = "warm"
	TemperatureCold Temperature = "cold"
)

// PartyInfo holds identifying metadata for one side of the conversation.
type PartyInfo struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// OpportunityContext is the read-only view of a sales opportunity consumed
// by the analysis pipeline. The pipeline never writes it back; recommended
// stage changes surface on the run report only.
type OpportunityContext struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Stage       Stage       `json:"stage"`
	Value       float64     `json:"value"`
	Probability int         `json:"probability"`
	Temperature Temperature `json:"temperature"`
	Customer    PartyInfo   `json:"customer"`
	Vendor      PartyInfo   `json:"vendor"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Sender roles for conversation messages.
const (
	RoleCustomer = "customer"
	RoleVendor   = "vendor"
)

// Message is one entry of an opportunity's conversation transcript.
type Message struct {
	ID         string    `json:"id"`
	SenderRole string    `json:"sender_role"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

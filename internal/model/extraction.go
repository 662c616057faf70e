package model

import "time"

// ExtractionStatus is the persisted terminal state of one agent execution.
type ExtractionStatus string

const (
	ExtractionSucceeded ExtractionStatus = "succeeded"
	ExtractionFailed    ExtractionStatus = "failed"
	ExtractionSkipped   ExtractionStatus = "skipped_not_configured"
)

// FailureReason explains a failed extraction.
type FailureReason string

const (
	ReasonSchemaViolation    FailureReason = "schema_violation"
	ReasonTimeoutOrTransport FailureReason = "timeout_or_transport"
	ReasonRunTimeout         FailureReason = "run_timeout"
)

// Provenance records how an extraction was produced: the model used, the
// tokens it consumed, wall time, and, for decision agents, which upstream
// versions fed it and which were unavailable.
type Provenance struct {
	Model          string            `json:"model,omitempty"`
	InputTokens    int               `json:"input_tokens"`
	OutputTokens   int               `json:"output_tokens"`
	DurationMs     int64             `json:"duration_ms"`
	ConsumedInputs map[AgentType]int `json:"consumed_inputs,omitempty"`
	MissingInputs  []AgentType       `json:"missing_inputs,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (p Provenance) TotalTokens() int {
	return p.InputTokens + p.OutputTokens
}

// Extraction is one immutable, versioned record of running one agent
// against one opportunity. Re-running an agent appends a new version; rows
// are never updated.
type Extraction struct {
	ID            string           `json:"id"`
	OpportunityID string           `json:"opportunity_id"`
	AgentType     AgentType        `json:"agent_type"`
	Version       int              `json:"version"`
	Status        ExtractionStatus `json:"status"`
	Reason        FailureReason    `json:"reason,omitempty"`
	Payload       *Payload         `json:"payload,omitempty"`
	// Confidence is always within [0,1]. ConfidenceClamped marks values the
	// inference collaborator reported out of range.
	Confidence        float64    `json:"confidence"`
	ConfidenceClamped bool       `json:"confidence_clamped,omitempty"`
	Provenance        Provenance `json:"provenance"`
	CreatedAt         time.Time  `json:"created_at"`
}

// ClampConfidence forces v into [0,1] and reports whether clamping was
// needed.
func ClampConfidence(v float64) (float64, bool) {
	if v < 0 {
		return 0, true
	}
	if v > 1 {
		return 1, true
	}
	return v, false
}

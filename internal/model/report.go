package model

import "time"

// RunStatus is the terminal state of one orchestrator run. A run always
// completes; per-agent failures degrade it to partial instead of failing it.
type RunStatus string

const (
	RunCompleted        RunStatus = "completed"
	RunCompletedPartial RunStatus = "completed_partial"
)

// OutcomeStatus is the per-agent result inside a run report. It extends the
// persisted ExtractionStatus with skipped_fresh, which produces no new
// extraction version.
type OutcomeStatus string

const (
	OutcomeSucceeded     OutcomeStatus = "succeeded"
	OutcomeFailed        OutcomeStatus = "failed"
	OutcomeNotConfigured OutcomeStatus = "skipped_not_configured"
	OutcomeFresh         OutcomeStatus = "skipped_fresh"
)

// AgentOutcome is one agent's entry in a run report.
type AgentOutcome struct {
	AgentType  AgentType     `json:"agent_type"`
	Status     OutcomeStatus `json:"status"`
	Reason     FailureReason `json:"reason,omitempty"`
	Error      string        `json:"error,omitempty"`
	Version    int           `json:"version,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	Tokens     int           `json:"tokens"`
}

// RunReport is the aggregate result of one pipeline run. It is the single
// source of truth for the run; callers own any follow-up action such as
// applying the recommended stage.
type RunReport struct {
	RunID         string                   `json:"run_id"`
	OpportunityID string                   `json:"opportunity_id"`
	Status        RunStatus                `json:"status"`
	Outcomes      []AgentOutcome           `json:"outcomes"`
	Latest        map[AgentType]Extraction `json:"latest"`
	Recommended   *StageRecommendation     `json:"recommended,omitempty"`
	TotalTokens   int                      `json:"total_tokens"`
	TotalCostUSD  float64                  `json:"total_cost_usd"`
	StartedAt     time.Time                `json:"started_at"`
	DurationMs    int64                    `json:"duration_ms"`
}

// Succeeded returns the outcomes with status succeeded.
func (r *RunReport) Succeeded() []AgentOutcome {
	var out []AgentOutcome
	for _, o := range r.Outcomes {
		if o.Status == OutcomeSucceeded {
			out = append(out, o)
		}
	}
	return out
}

// Outcome returns the outcome for one agent type, if present.
func (r *RunReport) Outcome(t AgentType) (AgentOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.AgentType == t {
			return o, true
		}
	}
	return AgentOutcome{}, false
}

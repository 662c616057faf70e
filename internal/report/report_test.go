package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/dealsense/internal/metrics"
	"github.com/sells-group/dealsense/internal/model"
)

func TestFormatRun(t *testing.T) {
	r := &model.RunReport{
		RunID:         "run-1",
		OpportunityID: "opp-1",
		Status:        model.RunCompletedPartial,
		Outcomes: []model.AgentOutcome{
			{
				AgentType:  model.AgentClientProfiler,
				Status:     model.OutcomeSucceeded,
				Version:    3,
				Confidence: 0.9,
				DurationMs: 120,
				Tokens:     450,
			},
			{
				AgentType:  model.AgentSPINAnalyzer,
				Status:     model.OutcomeFresh,
				Version:    2,
				Confidence: 0.8,
			},
			{
				AgentType: model.AgentBANTQualifier,
				Status:    model.OutcomeNotConfigured,
			},
			{
				AgentType: model.AgentDealExtractor,
				Status:    model.OutcomeFailed,
				Reason:    model.ReasonSchemaViolation,
				Error:     "output rejected by schema",
			},
		},
		Recommended: &model.StageRecommendation{
			RecommendedStage: model.StageNegotiation,
			CloseProbability: 70,
			Reasoning:        "budget confirmed and contract under review",
		},
		TotalTokens:  450,
		TotalCostUSD: 0.0123,
		DurationMs:   340,
	}

	out := FormatRun(r)

	assert.Contains(t, out, "# Analysis Run: opp-1")
	assert.Contains(t, out, "Status: completed_partial")
	assert.Contains(t, out, "- Agents with results: 2/4")
	assert.Contains(t, out, "- Estimated cost: $0.0123")
	assert.Contains(t, out, "- Client Profiler: succeeded v3 (90%, 120ms, 450 tokens)")
	assert.Contains(t, out, "- SPIN Analyzer: fresh v2 (80%)")
	assert.Contains(t, out, "- BANT Qualifier: skipped (not configured)")
	assert.Contains(t, out, "- Deal Extractor: failed (schema_violation)")
	assert.Contains(t, out, "Error: output rejected by schema")
	assert.Contains(t, out, "- Stage: negotiation (70% close probability)")
	assert.Contains(t, out, "- Reasoning: budget confirmed and contract under review")
}

func TestFormatRun_NoRecommendation(t *testing.T) {
	r := &model.RunReport{
		RunID:         "run-2",
		OpportunityID: "opp-2",
		Status:        model.RunCompleted,
	}

	out := FormatRun(r)
	assert.NotContains(t, out, "Recommended Stage")
}

func TestFormatMetrics(t *testing.T) {
	last := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	out := FormatMetrics([]metrics.Snapshot{
		{
			AgentType:     model.AgentSPINAnalyzer,
			Executions:    5,
			Succeeded:     4,
			Failed:        1,
			TotalTokens:   2100,
			AvgDurationMs: 180,
			AvgConfidence: 0.82,
			LastExecution: last,
		},
		{AgentType: model.AgentCoachingGenerator},
	})

	assert.Contains(t, out, "# Agent Metrics")
	assert.Contains(t, out, "spin_analyzer")
	assert.Contains(t, out, "2026-03-10 14:30")
	// Idle agents render with a dash instead of a timestamp.
	assert.Contains(t, out, "coaching_generator")
	assert.Contains(t, out, " -")
}

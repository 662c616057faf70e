// Package report renders run reports and metrics snapshots for terminal
// output.
package report

import (
	"fmt"
	"strings"

	"github.com/sells-group/dealsense/internal/agent"
	"github.com/sells-group/dealsense/internal/metrics"
	"github.com/sells-group/dealsense/internal/model"
)

// FormatRun generates a human-readable analysis run report.
func FormatRun(r *model.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Analysis Run: %s\n", r.OpportunityID)
	fmt.Fprintf(&b, "Run ID: %s\n", r.RunID)
	fmt.Fprintf(&b, "Status: %s\n\n", r.Status)

	// Summary.
	b.WriteString("## Summary\n")
	succeeded := 0
	for _, o := range r.Outcomes {
		if o.Status == model.OutcomeSucceeded || o.Status == model.OutcomeFresh {
			succeeded++
		}
	}
	fmt.Fprintf(&b, "- Agents with results: %d/%d\n", succeeded, len(r.Outcomes))
	fmt.Fprintf(&b, "- Token usage: %d\n", r.TotalTokens)
	fmt.Fprintf(&b, "- Estimated cost: $%.4f\n", r.TotalCostUSD)
	fmt.Fprintf(&b, "- Duration: %dms\n\n", r.DurationMs)

	// Per-agent outcomes in canonical order.
	b.WriteString("## Agents\n")
	for _, o := range r.Outcomes {
		label := string(o.AgentType)
		if def, err := agent.Lookup(o.AgentType); err == nil {
			label = def.Label
		}
		switch o.Status {
		case model.OutcomeSucceeded:
			fmt.Fprintf(&b, "- %s: succeeded v%d (%.0f%%, %dms, %d tokens)\n",
				label, o.Version, o.Confidence*100, o.DurationMs, o.Tokens)
		case model.OutcomeFresh:
			fmt.Fprintf(&b, "- %s: fresh v%d (%.0f%%)\n", label, o.Version, o.Confidence*100)
		case model.OutcomeNotConfigured:
			fmt.Fprintf(&b, "- %s: skipped (not configured)\n", label)
		default:
			fmt.Fprintf(&b, "- %s: failed (%s)\n", label, o.Reason)
			if o.Error != "" {
				fmt.Fprintf(&b, "  Error: %s\n", o.Error)
			}
		}
	}
	b.WriteString("\n")

	if r.Recommended != nil {
		b.WriteString("## Recommended Stage\n")
		fmt.Fprintf(&b, "- Stage: %s (%d%% close probability)\n", r.Recommended.RecommendedStage, r.Recommended.CloseProbability)
		if r.Recommended.Reasoning != "" {
			fmt.Fprintf(&b, "- Reasoning: %s\n", r.Recommended.Reasoning)
		}
	}

	return b.String()
}

// FormatMetrics generates a human-readable metrics table.
func FormatMetrics(snapshots []metrics.Snapshot) string {
	var b strings.Builder

	b.WriteString("# Agent Metrics\n\n")
	fmt.Fprintf(&b, "%-22s %10s %10s %8s %12s %8s  %s\n",
		"AGENT", "EXECS", "TOKENS", "AVG MS", "AVG CONF", "FAILED", "LAST RUN")
	for _, s := range snapshots {
		last := "-"
		if !s.LastExecution.IsZero() {
			last = s.LastExecution.UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&b, "%-22s %10d %10d %8.0f %11.0f%% %8d  %s\n",
			s.AgentType, s.Executions, s.TotalTokens, s.AvgDurationMs,
			s.AvgConfidence*100, s.Failed, last)
	}

	return b.String()
}

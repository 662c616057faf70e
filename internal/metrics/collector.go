// Package metrics aggregates per-agent execution statistics from the
// extraction history.
package metrics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealsense/internal/agent"
	"github.com/sells-group/dealsense/internal/model"
	"github.com/sells-group/dealsense/internal/store"
)

// Snapshot holds aggregate statistics for one agent type. Executions counts
// succeeded and failed attempts; skips are not executions. Token, duration,
// and confidence figures cover successful executions only.
type Snapshot struct {
	AgentType     model.AgentType `json:"agent_type"`
	Executions    int             `json:"executions"`
	Succeeded     int             `json:"succeeded"`
	Failed        int             `json:"failed"`
	TotalTokens   int             `json:"total_tokens"`
	AvgDurationMs float64         `json:"avg_duration_ms"`
	AvgConfidence float64         `json:"avg_confidence"`
	LastExecution time.Time       `json:"last_execution,omitempty"`
}

// Collector gathers snapshots from the extraction store.
type Collector struct {
	store store.ExtractionStore
}

// NewCollector creates a metrics collector.
func NewCollector(st store.ExtractionStore) *Collector {
	return &Collector{store: st}
}

// Collect aggregates statistics for every registered agent type. Types with
// no recorded executions get a zero-valued snapshot rather than being
// omitted. Pass an opportunity ID to scope the aggregation, or "" for all
// opportunities.
func (c *Collector) Collect(ctx context.Context, opportunityID string) ([]Snapshot, error) {
	extractions, err := c.store.ListExtractions(ctx, store.ExtractionFilter{
		OpportunityID: opportunityID,
		Statuses:      []model.ExtractionStatus{model.ExtractionSucceeded, model.ExtractionFailed},
	})
	if err != nil {
		return nil, eris.Wrap(err, "metrics: list extractions")
	}

	type acc struct {
		snap        Snapshot
		durationSum int64
		confSum     float64
	}
	byType := make(map[model.AgentType]*acc, len(agent.All()))
	for _, def := range agent.All() {
		byType[def.Type] = &acc{snap: Snapshot{AgentType: def.Type}}
	}

	for _, e := range extractions {
		a, ok := byType[e.AgentType]
		if !ok {
			continue
		}
		a.snap.Executions++
		if e.CreatedAt.After(a.snap.LastExecution) {
			a.snap.LastExecution = e.CreatedAt
		}
		switch e.Status {
		case model.ExtractionSucceeded:
			a.snap.Succeeded++
			a.snap.TotalTokens += e.Provenance.TotalTokens()
			a.durationSum += e.Provenance.DurationMs
			a.confSum += e.Confidence
		case model.ExtractionFailed:
			a.snap.Failed++
		}
	}

	snapshots := make([]Snapshot, 0, len(byType))
	for _, def := range agent.All() {
		a := byType[def.Type]
		if a.snap.Succeeded > 0 {
			a.snap.AvgDurationMs = float64(a.durationSum) / float64(a.snap.Succeeded)
			a.snap.AvgConfidence = a.confSum / float64(a.snap.Succeeded)
		}
		snapshots = append(snapshots, a.snap)
	}
	return snapshots, nil
}

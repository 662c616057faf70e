package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealsense/internal/model"
	"github.com/sells-group/dealsense/internal/store"
)

// fakeExtractionStore serves a fixed extraction list, honoring the status
// filter the collector passes.
type fakeExtractionStore struct {
	rows       []model.Extraction
	lastFilter store.ExtractionFilter
}

func (f *fakeExtractionStore) AppendExtraction(context.Context, *model.Extraction) (*model.Extraction, error) {
	panic("not used")
}

func (f *fakeExtractionStore) LatestPerType(context.Context, string) (map[model.AgentType]model.Extraction, error) {
	panic("not used")
}

func (f *fakeExtractionStore) History(context.Context, string, model.AgentType, int) ([]model.Extraction, error) {
	panic("not used")
}

func (f *fakeExtractionStore) ListExtractions(_ context.Context, filter store.ExtractionFilter) ([]model.Extraction, error) {
	f.lastFilter = filter
	allowed := make(map[model.ExtractionStatus]bool, len(filter.Statuses))
	for _, s := range filter.Statuses {
		allowed[s] = true
	}

	var out []model.Extraction
	for _, r := range f.rows {
		if filter.OpportunityID != "" && r.OpportunityID != filter.OpportunityID {
			continue
		}
		if len(allowed) > 0 && !allowed[r.Status] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func snapshotFor(t *testing.T, snapshots []Snapshot, agentType model.AgentType) Snapshot {
	t.Helper()
	for _, s := range snapshots {
		if s.AgentType == agentType {
			return s
		}
	}
	t.Fatalf("no snapshot for %s", agentType)
	return Snapshot{}
}

func TestCollect_Aggregates(t *testing.T) {
	early := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(3 * time.Hour)

	st := &fakeExtractionStore{rows: []model.Extraction{
		{
			AgentType:  model.AgentSPINAnalyzer,
			Status:     model.ExtractionSucceeded,
			Confidence: 0.8,
			Provenance: model.Provenance{InputTokens: 80, OutputTokens: 20, DurationMs: 100},
			CreatedAt:  early,
		},
		{
			AgentType:  model.AgentSPINAnalyzer,
			Status:     model.ExtractionSucceeded,
			Confidence: 0.6,
			Provenance: model.Provenance{InputTokens: 150, OutputTokens: 50, DurationMs: 300},
			CreatedAt:  late,
		},
		{
			AgentType: model.AgentSPINAnalyzer,
			Status:    model.ExtractionFailed,
			Reason:    model.ReasonTimeoutOrTransport,
			CreatedAt: early.Add(time.Hour),
		},
		// A skip is not an execution and must not be served by the store
		// filter, but guard against it anyway.
		{
			AgentType: model.AgentSPINAnalyzer,
			Status:    model.ExtractionSkipped,
			CreatedAt: late.Add(time.Hour),
		},
	}}

	snapshots, err := NewCollector(st).Collect(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, snapshots, 8)

	spin := snapshotFor(t, snapshots, model.AgentSPINAnalyzer)
	assert.Equal(t, 3, spin.Executions)
	assert.Equal(t, 2, spin.Succeeded)
	assert.Equal(t, 1, spin.Failed)
	assert.Equal(t, 300, spin.TotalTokens)
	assert.InDelta(t, 200, spin.AvgDurationMs, 1e-9)
	assert.InDelta(t, 0.7, spin.AvgConfidence, 1e-9)
	assert.Equal(t, late, spin.LastExecution)

	// The collector asks the store for executions only.
	assert.ElementsMatch(t,
		[]model.ExtractionStatus{model.ExtractionSucceeded, model.ExtractionFailed},
		st.lastFilter.Statuses,
	)
}

func TestCollect_ZeroSnapshotsForIdleAgents(t *testing.T) {
	st := &fakeExtractionStore{}

	snapshots, err := NewCollector(st).Collect(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, snapshots, 8)
	for _, s := range snapshots {
		assert.Zero(t, s.Executions, "agent %s", s.AgentType)
		assert.Zero(t, s.TotalTokens, "agent %s", s.AgentType)
		assert.Zero(t, s.AvgConfidence, "agent %s", s.AgentType)
		assert.True(t, s.LastExecution.IsZero(), "agent %s", s.AgentType)
	}
}

func TestCollect_ScopedToOpportunity(t *testing.T) {
	st := &fakeExtractionStore{rows: []model.Extraction{
		{OpportunityID: "opp-1", AgentType: model.AgentBANTQualifier, Status: model.ExtractionSucceeded, Confidence: 0.9, CreatedAt: time.Now()},
		{OpportunityID: "opp-2", AgentType: model.AgentBANTQualifier, Status: model.ExtractionSucceeded, Confidence: 0.1, CreatedAt: time.Now()},
	}}

	snapshots, err := NewCollector(st).Collect(context.Background(), "opp-1")
	require.NoError(t, err)

	bant := snapshotFor(t, snapshots, model.AgentBANTQualifier)
	assert.Equal(t, 1, bant.Executions)
	assert.InDelta(t, 0.9, bant.AvgConfidence, 1e-9)
	assert.Equal(t, "opp-1", st.lastFilter.OpportunityID)
}

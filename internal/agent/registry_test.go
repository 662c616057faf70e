package agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dealsense/internal/model"
)

func TestAll_CanonicalOrder(t *testing.T) {
	defs := All()
	require.Len(t, defs, 8)

	want := []model.AgentType{
		model.AgentClientProfiler,
		model.AgentProjectExtractor,
		model.AgentDealExtractor,
		model.AgentSPINAnalyzer,
		model.AgentBANTQualifier,
		model.AgentObjectionAnalyzer,
		model.AgentPipelineClassifier,
		model.AgentCoachingGenerator,
	}
	for i, def := range defs {
		assert.Equal(t, want[i], def.Type)
	}
}

func TestAll_ReturnsCopy(t *testing.T) {
	defs := All()
	defs[0].Label = "mutated"
	assert.Equal(t, "Client Profiler", All()[0].Label)
}

func TestLevels(t *testing.T) {
	for _, def := range Level1() {
		assert.Equal(t, 1, def.Level(), "agent %s", def.Type)
		assert.Empty(t, def.Consumes)
	}

	l2 := Level2()
	require.Len(t, l2, 2)
	for _, def := range l2 {
		assert.Equal(t, 2, def.Level(), "agent %s", def.Type)
		assert.Equal(t, model.CategoryDecision, def.Category)
	}
}

func TestDecisionAgents_ConsumeDeclaredUpstream(t *testing.T) {
	classifier, err := Lookup(model.AgentPipelineClassifier)
	require.NoError(t, err)
	assert.Len(t, classifier.Consumes, 6)
	assert.NotContains(t, classifier.Consumes, model.AgentCoachingGenerator)

	coaching, err := Lookup(model.AgentCoachingGenerator)
	require.NoError(t, err)
	assert.Len(t, coaching.Consumes, 7)
	assert.Contains(t, coaching.Consumes, model.AgentPipelineClassifier)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup(model.AgentType("sentiment_scorer"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAgentType))
}

func TestDefinitions_AllHaveSchemas(t *testing.T) {
	for _, def := range All() {
		assert.NotEmpty(t, def.Schema, "agent %s", def.Type)
		assert.NotEmpty(t, def.Label, "agent %s", def.Type)
	}
}

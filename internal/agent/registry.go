package agent

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/dealsense/internal/model"
)

// ErrUnknownAgentType is returned when a lookup names an agent type outside
// the fixed set of eight.
var ErrUnknownAgentType = eris.New("agent: unknown agent type")

// Definition is one static catalog entry: an agent type, its category, its
// declared output schema, and for decision agents the upstream types it
// consumes.
type Definition struct {
	Type     model.AgentType
	Category model.Category
	Label    string
	Schema   string
	Consumes []model.AgentType
}

// Level is the dependency tier an agent runs in.
func (d Definition) Level() int {
	if d.Category == model.CategoryDecision {
		return 2
	}
	return 1
}

var level1Types = []model.AgentType{
	model.AgentClientProfiler,
	model.AgentProjectExtractor,
	model.AgentDealExtractor,
	model.AgentSPINAnalyzer,
	model.AgentBANTQualifier,
	model.AgentObjectionAnalyzer,
}

// definitions is the immutable catalog. Order is the canonical execution
// and reporting order: six level-1 agents, then the two decision agents.
var definitions = []Definition{
	{
		Type:     model.AgentClientProfiler,
		Category: model.CategoryExtraction,
		Label:    "Client Profiler",
		Schema:   clientProfilerSchema,
	},
	{
		Type:     model.AgentProjectExtractor,
		Category: model.CategoryExtraction,
		Label:    "Project Extractor",
		Schema:   projectExtractorSchema,
	},
	{
		Type:     model.AgentDealExtractor,
		Category: model.CategoryExtraction,
		Label:    "Deal Extractor",
		Schema:   dealExtractorSchema,
	},
	{
		Type:     model.AgentSPINAnalyzer,
		Category: model.CategoryAnalysis,
		Label:    "SPIN Analyzer",
		Schema:   spinAnalyzerSchema,
	},
	{
		Type:     model.AgentBANTQualifier,
		Category: model.CategoryAnalysis,
		Label:    "BANT Qualifier",
		Schema:   bantQualifierSchema,
	},
	{
		Type:     model.AgentObjectionAnalyzer,
		Category: model.CategoryAnalysis,
		Label:    "Objection Analyzer",
		Schema:   objectionAnalyzerSchema,
	},
	{
		Type:     model.AgentPipelineClassifier,
		Category: model.CategoryDecision,
		Label:    "Pipeline Classifier",
		Schema:   pipelineClassifierSchema,
		Consumes: level1Types,
	},
	{
		Type:     model.AgentCoachingGenerator,
		Category: model.CategoryDecision,
		Label:    "Coaching Generator",
		Schema:   coachingGeneratorSchema,
		Consumes: append(append([]model.AgentType{}, level1Types...), model.AgentPipelineClassifier),
	},
}

var byType = func() map[model.AgentType]Definition {
	m := make(map[model.AgentType]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Type] = d
	}
	return m
}()

// Lookup returns the definition for one agent type.
func Lookup(t model.AgentType) (Definition, error) {
	d, ok := byType[t]
	if !ok {
		return Definition{}, eris.Wrapf(ErrUnknownAgentType, "agent: lookup %q", t)
	}
	return d, nil
}

// All returns the eight definitions in canonical order.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Level1 returns the six independent extraction and analysis agents.
func Level1() []Definition {
	return All()[:6]
}

// Level2 returns the two decision agents.
func Level2() []Definition {
	return All()[6:]
}

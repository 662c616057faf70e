package model

// AgentType identifies one of the eight analysis agents.
type AgentType string

const (
	AgentClientProfiler     AgentType = "client_profiler"
	AgentProjectExtractor   AgentType = "project_extractor"
	AgentDealExtractor      AgentType = "deal_extractor"
	AgentSPINAnalyzer       AgentType = "spin_analyzer"
	AgentBANTQualifier      AgentType = "bant_qualifier"
	AgentObjectionAnalyzer  AgentType = "objection_analyzer"
	AgentPipelineClassifier AgentType = "pipeline_classifier"
	AgentCoachingGenerator  AgentType = "coaching_generator"
)

// Category groups agents by the kind of output they produce.
type Category string

const (
	CategoryExtraction Category = "extraction"
	CategoryAnalysis   Category = "analysis"
	CategoryDecision   Category = "decision"
)

// AgentRunConfig is the per-tenant runtime configuration for one agent.
// Absent or inactive config means the agent is skipped, not failed.
type AgentRunConfig struct {
	AgentType    AgentType `json:"agent_type" yaml:"agent_type"`
	SystemPrompt string    `json:"system_prompt" yaml:"system_prompt"`
	Model        string    `json:"model" yaml:"model"`
	Temperature  *float64  `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int64     `json:"max_tokens" yaml:"max_tokens"`
	Active       bool      `json:"active" yaml:"active"`
}

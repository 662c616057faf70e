package agent

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/dealsense/internal/model"
)

// Output schemas. Every agent returns a JSON object carrying its payload
// fields plus a self-reported confidence. The inference collaborator is
// untrusted; nothing a model returns is persisted before passing one of
// these schemas.

const clientProfilerSchema = `{
	"type": "object",
	"required": ["identification", "profile_type", "motivation", "pain_points", "decision_maker", "confidence"],
	"properties": {
		"identification": {"type": "string"},
		"profile_type": {"type": "string"},
		"motivation": {"type": "string"},
		"pain_points": {"type": "array", "items": {"type": "string"}},
		"decision_maker": {
			"type": "object",
			"required": ["is_decision_maker"],
			"properties": {
				"is_decision_maker": {"type": "boolean"},
				"role": {"type": "string"},
				"influencers": {"type": "array", "items": {"type": "string"}}
			}
		},
		"confidence": {"type": "number"}
	}
}`

const projectExtractorSchema = `{
	"type": "object",
	"required": ["location", "project_type", "phase", "technical_specs", "materials", "timeline", "confidence"],
	"properties": {
		"location": {"type": "string"},
		"project_type": {"type": "string"},
		"phase": {"type": "string"},
		"technical_specs": {"type": "array", "items": {"type": "string"}},
		"materials": {"type": "array", "items": {"type": "string"}},
		"timeline": {"type": "string"},
		"confidence": {"type": "number"}
	}
}`

const dealExtractorSchema = `{
	"type": "object",
	"required": ["proposal_state", "proposed_value", "confidence"],
	"properties": {
		"proposal_state": {"type": "string"},
		"proposed_value": {"type": "number"},
		"negotiated_value": {"type": "number"},
		"competitors": {"type": "array", "items": {"type": "string"}},
		"negotiation_terms": {"type": "string"},
		"history": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["kind", "description"],
				"properties": {
					"kind": {"type": "string"},
					"description": {"type": "string"},
					"date": {"type": "string"}
				}
			}
		},
		"confidence": {"type": "number"}
	}
}`

const spinAnalyzerSchema = `{
	"type": "object",
	"required": ["phase", "progress", "indicators", "confidence"],
	"properties": {
		"phase": {"type": "string", "enum": ["situation", "problem", "implication", "need_payoff"]},
		"progress": {"type": "integer", "minimum": 0, "maximum": 100},
		"indicators": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "number"}
	}
}`

const bantQualifierSchema = `{
	"type": "object",
	"required": ["budget", "authority", "need", "timeline", "qualified", "score", "confidence"],
	"properties": {
		"budget": {"type": "integer", "minimum": 0, "maximum": 100},
		"authority": {"type": "integer", "minimum": 0, "maximum": 100},
		"need": {"type": "integer", "minimum": 0, "maximum": 100},
		"timeline": {"type": "integer", "minimum": 0, "maximum": 100},
		"qualified": {"type": "boolean"},
		"score": {"type": "integer", "minimum": 0, "maximum": 100},
		"confidence": {"type": "number"}
	}
}`

const objectionAnalyzerSchema = `{
	"type": "object",
	"required": ["objections", "confidence"],
	"properties": {
		"objections": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "description", "status"],
				"properties": {
					"type": {"type": "string"},
					"description": {"type": "string"},
					"status": {"type": "string", "enum": ["pending", "addressed", "unresolved"]},
					"response": {"type": "string"}
				}
			}
		},
		"confidence": {"type": "number"}
	}
}`

const pipelineClassifierSchema = `{
	"type": "object",
	"required": ["recommended_stage", "close_probability", "reasoning", "confidence"],
	"properties": {
		"recommended_stage": {
			"type": "string",
			"enum": ["prospecting", "qualification", "proposal", "negotiation", "closed_won", "closed_lost"]
		},
		"close_probability": {"type": "integer", "minimum": 0, "maximum": 100},
		"reasoning": {"type": "string"},
		"blockers": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "number"}
	}
}`

const coachingGeneratorSchema = `{
	"type": "object",
	"required": ["actions", "confidence"],
	"properties": {
		"actions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["priority", "action"],
				"properties": {
					"priority": {"type": "integer", "minimum": 1},
					"action": {"type": "string"},
					"script": {"type": "string"},
					"timing": {"type": "string"}
				}
			}
		},
		"risk_alerts": {"type": "array", "items": {"type": "string"}},
		"confidence": {"type": "number"}
	}
}`

// compiled schemas, built once at init. A malformed schema string is a
// programming error, hence the panic.
var compiled = func() map[model.AgentType]*gojsonschema.Schema {
	m := make(map[model.AgentType]*gojsonschema.Schema, len(definitions))
	for _, d := range definitions {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(d.Schema))
		if err != nil {
			panic(eris.Wrapf(err, "agent: compile schema for %s", d.Type).Error())
		}
		m[d.Type] = s
	}
	return m
}()

// ViolationError describes a schema validation failure of raw model output.
type ViolationError struct {
	Agent    model.AgentType
	Problems []string
}

func (e *ViolationError) Error() string {
	msg := "agent: output violates " + string(e.Agent) + " schema"
	for _, p := range e.Problems {
		msg += "; " + p
	}
	return msg
}

// Validate checks raw JSON against the agent's declared schema. It returns
// a *ViolationError when the document parses but does not conform.
func Validate(t model.AgentType, raw []byte) error {
	schema, ok := compiled[t]
	if !ok {
		return eris.Wrapf(ErrUnknownAgentType, "agent: validate %q", t)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		// Not valid JSON at all.
		return &ViolationError{Agent: t, Problems: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	return &ViolationError{Agent: t, Problems: problems}
}

// confidenceEnvelope pulls the self-reported confidence out of validated
// output.
type confidenceEnvelope struct {
	Confidence float64 `json:"confidence"`
}

// Decode validates raw output and decodes it into the typed payload member
// for the agent type, returning the payload and the model's self-reported
// confidence (unclamped).
func Decode(t model.AgentType, raw []byte) (*model.Payload, float64, error) {
	if err := Validate(t, raw); err != nil {
		return nil, 0, err
	}

	var env confidenceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, eris.Wrapf(err, "agent: decode confidence for %s", t)
	}

	p := &model.Payload{}
	var err error
	switch t {
	case model.AgentClientProfiler:
		p.ClientProfile = &model.ClientProfile{}
		err = json.Unmarshal(raw, p.ClientProfile)
	case model.AgentProjectExtractor:
		p.ProjectDetails = &model.ProjectDetails{}
		err = json.Unmarshal(raw, p.ProjectDetails)
	case model.AgentDealExtractor:
		p.DealTerms = &model.DealTerms{}
		err = json.Unmarshal(raw, p.DealTerms)
	case model.AgentSPINAnalyzer:
		p.SPIN = &model.SPINAnalysis{}
		err = json.Unmarshal(raw, p.SPIN)
	case model.AgentBANTQualifier:
		p.BANT = &model.BANTQualification{}
		err = json.Unmarshal(raw, p.BANT)
	case model.AgentObjectionAnalyzer:
		p.Objections = &model.ObjectionReport{}
		err = json.Unmarshal(raw, p.Objections)
	case model.AgentPipelineClassifier:
		p.Stage = &model.StageRecommendation{}
		err = json.Unmarshal(raw, p.Stage)
	case model.AgentCoachingGenerator:
		p.Coaching = &model.CoachingPlan{}
		err = json.Unmarshal(raw, p.Coaching)
	default:
		// Unmodeled agent types keep their raw shape.
		generic := make(map[string]any)
		err = json.Unmarshal(raw, &generic)
		p.Generic = generic
	}
	if err != nil {
		return nil, 0, eris.Wrapf(err, "agent: decode payload for %s", t)
	}

	return p, env.Confidence, nil
}

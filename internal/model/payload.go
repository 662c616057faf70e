package model

// Payload is the tagged union of agent outputs. Exactly one member is set
// for a known agent type; Generic absorbs agent types not yet modeled so a
// registry addition never breaks stored rows.
type Payload struct {
	ClientProfile  *ClientProfile       `json:"client_profile,omitempty"`
	ProjectDetails *ProjectDetails      `json:"project_details,omitempty"`
	DealTerms      *DealTerms           `json:"deal_terms,omitempty"`
	SPIN           *SPINAnalysis        `json:"spin,omitempty"`
	BANT           *BANTQualification   `json:"bant,omitempty"`
	Objections     *ObjectionReport     `json:"objections,omitempty"`
	Stage          *StageRecommendation `json:"stage,omitempty"`
	Coaching       *CoachingPlan        `json:"coaching,omitempty"`
	Generic        map[string]any       `json:"generic,omitempty"`
}

// ClientProfile is the client_profiler output: who the customer is and what
// drives them.
type ClientProfile struct {
	Identification string            `json:"identification"`
	ProfileType    string            `json:"profile_type"`
	Motivation     string            `json:"motivation"`
	PainPoints     []string          `json:"pain_points"`
	DecisionMaker  DecisionMakerInfo `json:"decision_maker"`
}

// DecisionMakerInfo captures whether the contact can sign off and who else
// influences the deal.
type DecisionMakerInfo struct {
	IsDecisionMaker bool     `json:"is_decision_maker"`
	Role            string   `json:"role,omitempty"`
	Influencers     []string `json:"influencers,omitempty"`
}

// ProjectDetails is the project_extractor output.
type ProjectDetails struct {
	Location       string   `json:"location"`
	ProjectType    string   `json:"project_type"`
	Phase          string   `json:"phase"`
	TechnicalSpecs []string `json:"technical_specs"`
	Materials      []string `json:"materials"`
	Timeline       string   `json:"timeline"`
}

// DealTerms is the deal_extractor output.
type DealTerms struct {
	ProposalState    string      `json:"proposal_state"`
	ProposedValue    float64     `json:"proposed_value"`
	NegotiatedValue  float64     `json:"negotiated_value"`
	Competitors      []string    `json:"competitors"`
	NegotiationTerms string      `json:"negotiation_terms"`
	History          []DealEvent `json:"history"`
}

// DealEvent is one visit, proposal or negotiation milestone mentioned in
// the conversation.
type DealEvent struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Date        string `json:"date,omitempty"`
}

// SPINAnalysis is the spin_analyzer output.
type SPINAnalysis struct {
	Phase      string   `json:"phase"`
	Progress   int      `json:"progress"`
	Indicators []string `json:"indicators"`
}

// BANTQualification is the bant_qualifier output. Sub-scores and the
// overall score are 0-100.
type BANTQualification struct {
	Budget    int  `json:"budget"`
	Authority int  `json:"authority"`
	Need      int  `json:"need"`
	Timeline  int  `json:"timeline"`
	Qualified bool `json:"qualified"`
	Score     int  `json:"score"`
}

// ObjectionReport is the objection_analyzer output.
type ObjectionReport struct {
	Objections []Objection `json:"objections"`
}

// Objection is a single customer objection and how the vendor handled it.
type Objection struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Response    string `json:"response,omitempty"`
}

// StageRecommendation is the pipeline_classifier output. CloseProbability
// is 0-100.
type StageRecommendation struct {
	RecommendedStage Stage    `json:"recommended_stage"`
	CloseProbability int      `json:"close_probability"`
	Reasoning        string   `json:"reasoning"`
	Blockers         []string `json:"blockers"`
}

// CoachingPlan is the coaching_generator output.
type CoachingPlan struct {
	Actions    []CoachingAction `json:"actions"`
	RiskAlerts []string         `json:"risk_alerts"`
}

// CoachingAction is one prioritized recommended next step for the vendor.
type CoachingAction struct {
	Priority int    `json:"priority"`
	Action   string `json:"action"`
	Script   string `json:"script,omitempty"`
	Timing   string `json:"timing,omitempty"`
}

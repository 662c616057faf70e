package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealsense/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ExtractionFilter specifies criteria for listing extraction history.
type ExtractionFilter struct {
	OpportunityID string                   `json:"opportunity_id,omitempty"`
	AgentType     model.AgentType          `json:"agent_type,omitempty"`
	Statuses      []model.ExtractionStatus `json:"statuses,omitempty"`
	Limit         int                      `json:"limit,omitempty"`
}

// ExtractionStore is the append-only persistence contract for agent
// executions. Rows are immutable; re-running an agent appends a new
// version.
type ExtractionStore interface {
	// AppendExtraction inserts e as a new version for its
	// (opportunity, agent type) pair, assigning id, version and creation
	// time. Version assignment is serialized per pair: concurrent appends
	// for the same pair receive strictly increasing gap-free versions.
	AppendExtraction(ctx context.Context, e *model.Extraction) (*model.Extraction, error)

	// LatestPerType returns, per agent type, the succeeded extraction with
	// the maximum version. Types with no succeeded row are absent from the
	// map.
	LatestPerType(ctx context.Context, opportunityID string) (map[model.AgentType]model.Extraction, error)

	// History returns extractions for one (opportunity, agent type) pair,
	// newest version first, bounded to limit (<=0 means no bound).
	History(ctx context.Context, opportunityID string, agentType model.AgentType, limit int) ([]model.Extraction, error)

	// ListExtractions returns extractions matching the filter, newest
	// first. Used by the metrics aggregator.
	ListExtractions(ctx context.Context, filter ExtractionFilter) ([]model.Extraction, error)
}

// CRMStore is the system-of-record side: opportunities, transcripts and
// per-agent run configuration. The pipeline only reads these.
type CRMStore interface {
	GetOpportunity(ctx context.Context, id string) (*model.OpportunityContext, error)
	UpsertOpportunity(ctx context.Context, opp *model.OpportunityContext) error

	// GetTranscript returns the opportunity's messages ordered by send
	// time. An opportunity with no messages yields an empty, non-nil
	// result.
	GetTranscript(ctx context.Context, opportunityID string) ([]model.Message, error)
	AddMessages(ctx context.Context, opportunityID string, msgs []model.Message) error

	// GetAgentConfig returns (nil, nil) when no config exists for the
	// agent type; the caller treats that as "not configured".
	GetAgentConfig(ctx context.Context, agentType model.AgentType) (*model.AgentRunConfig, error)
	ListAgentConfigs(ctx context.Context) ([]model.AgentRunConfig, error)
	UpsertAgentConfig(ctx context.Context, cfg model.AgentRunConfig) error
}

// Store is the full persistence interface.
type Store interface {
	ExtractionStore
	CRMStore

	Migrate(ctx context.Context) error
	Close() error
}

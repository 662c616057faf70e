package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dealsense/internal/model"
)

// PgxPool abstracts the pgxpool methods used by PostgresStore so tests can
// substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool creates a PostgresStore on an existing pool. Used by
// tests with pgxmock.
func NewPostgresWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	stage       TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL DEFAULT 0,
	probability INTEGER NOT NULL DEFAULT 0,
	temperature TEXT NOT NULL DEFAULT 'warm',
	customer    JSONB NOT NULL DEFAULT '{}',
	vendor      JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL REFERENCES opportunities(id),
	sender_role    TEXT NOT NULL,
	text           TEXT NOT NULL,
	sent_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_configs (
	agent_type    TEXT PRIMARY KEY,
	system_prompt TEXT NOT NULL,
	model         TEXT NOT NULL,
	temperature   DOUBLE PRECISION,
	max_tokens    INTEGER NOT NULL DEFAULT 2048,
	active        BOOLEAN NOT NULL DEFAULT true,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extractions (
	id                 TEXT PRIMARY KEY,
	opportunity_id     TEXT NOT NULL,
	agent_type         TEXT NOT NULL,
	version            INTEGER NOT NULL,
	status             TEXT NOT NULL,
	reason             TEXT NOT NULL DEFAULT '',
	payload            JSONB,
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence_clamped BOOLEAN NOT NULL DEFAULT false,
	model              TEXT NOT NULL DEFAULT '',
	input_tokens       INTEGER NOT NULL DEFAULT 0,
	output_tokens      INTEGER NOT NULL DEFAULT 0,
	duration_ms        BIGINT NOT NULL DEFAULT 0,
	consumed_inputs    JSONB,
	missing_inputs     JSONB,
	created_at         TIMESTAMPTZ NOT NULL,
	UNIQUE (opportunity_id, agent_type, version)
);

CREATE INDEX IF NOT EXISTS idx_messages_opp_sent ON messages(opportunity_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_extractions_opp_agent ON extractions(opportunity_id, agent_type, version DESC);
CREATE INDEX IF NOT EXISTS idx_extractions_agent_status ON extractions(agent_type, status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// uniqueViolation is the Postgres SQLSTATE for duplicate keys.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PostgresStore) AppendExtraction(ctx context.Context, e *model.Extraction) (*model.Extraction, error) {
	js, err := marshalExtraction(e)
	if err != nil {
		return nil, err
	}

	out := *e
	out.ID = uuid.New().String()
	out.CreatedAt = time.Now().UTC()

	// The insert computes the next version inline; the unique index on
	// (opportunity_id, agent_type, version) turns a concurrent race into a
	// conflict we retry, so versions stay strictly increasing and gap-free.
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		var version int
		err := s.pool.QueryRow(ctx,
			`INSERT INTO extractions (
				id, opportunity_id, agent_type, version, status, reason,
				payload, confidence, confidence_clamped, model,
				input_tokens, output_tokens, duration_ms,
				consumed_inputs, missing_inputs, created_at
			)
			SELECT $1, $2, $3, COALESCE(MAX(version), 0) + 1, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
			FROM extractions WHERE opportunity_id = $2 AND agent_type = $3
			RETURNING version`,
			out.ID, out.OpportunityID, string(out.AgentType),
			string(out.Status), string(out.Reason),
			js.payload, out.Confidence, out.ConfidenceClamped,
			out.Provenance.Model, out.Provenance.InputTokens,
			out.Provenance.OutputTokens, out.Provenance.DurationMs,
			js.consumed, js.missing, out.CreatedAt,
		).Scan(&version)
		if err == nil {
			out.Version = version
			return &out, nil
		}
		if !isUniqueViolation(err) {
			return nil, eris.Wrap(err, "postgres: insert extraction")
		}
		lastErr = err
	}

	return nil, eris.Wrap(lastErr, "postgres: insert extraction after version conflicts")
}

const pgExtractionColumns = `id, opportunity_id, agent_type, version, status, reason,
	payload, confidence, confidence_clamped, model,
	input_tokens, output_tokens, duration_ms,
	consumed_inputs, missing_inputs, created_at`

func scanPgExtraction(row pgx.Row) (model.Extraction, error) {
	var e model.Extraction
	var payload, consumed, missing []byte
	var agentType, status, reason string

	err := row.Scan(
		&e.ID, &e.OpportunityID, &agentType, &e.Version, &status, &reason,
		&payload, &e.Confidence, &e.ConfidenceClamped, &e.Provenance.Model,
		&e.Provenance.InputTokens, &e.Provenance.OutputTokens,
		&e.Provenance.DurationMs, &consumed, &missing, &e.CreatedAt,
	)
	if err != nil {
		return e, err
	}

	e.AgentType = model.AgentType(agentType)
	e.Status = model.ExtractionStatus(status)
	e.Reason = model.FailureReason(reason)

	err = unmarshalExtraction(&e, payload, consumed, missing)
	return e, err
}

func (s *PostgresStore) collectExtractions(rows pgx.Rows) ([]model.Extraction, error) {
	defer rows.Close()
	var out []model.Extraction
	for rows.Next() {
		e, err := scanPgExtraction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: extraction rows")
}

func (s *PostgresStore) LatestPerType(ctx context.Context, opportunityID string) (map[model.AgentType]model.Extraction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (agent_type) `+pgExtractionColumns+`
		FROM extractions
		WHERE opportunity_id = $1 AND status = $2
		ORDER BY agent_type, version DESC`,
		opportunityID, string(model.ExtractionSucceeded),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest per type")
	}

	list, err := s.collectExtractions(rows)
	if err != nil {
		return nil, err
	}
	latest := make(map[model.AgentType]model.Extraction, len(list))
	for _, e := range list {
		latest[e.AgentType] = e
	}
	return latest, nil
}

func (s *PostgresStore) History(ctx context.Context, opportunityID string, agentType model.AgentType, limit int) ([]model.Extraction, error) {
	query := `SELECT ` + pgExtractionColumns + `
		FROM extractions WHERE opportunity_id = $1 AND agent_type = $2
		ORDER BY version DESC`
	args := []any{opportunityID, string(agentType)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: history")
	}
	return s.collectExtractions(rows)
}

func (s *PostgresStore) ListExtractions(ctx context.Context, filter ExtractionFilter) ([]model.Extraction, error) {
	query := `SELECT ` + pgExtractionColumns + ` FROM extractions WHERE 1=1`
	var args []any

	if filter.OpportunityID != "" {
		args = append(args, filter.OpportunityID)
		query += fmt.Sprintf(` AND opportunity_id = $%d`, len(args))
	}
	if filter.AgentType != "" {
		args = append(args, string(filter.AgentType))
		query += fmt.Sprintf(` AND agent_type = $%d`, len(args))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			args = append(args, string(st))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	return s.collectExtractions(rows)
}

func (s *PostgresStore) GetOpportunity(ctx context.Context, id string) (*model.OpportunityContext, error) {
	var opp model.OpportunityContext
	var stage, temperature string
	var customer, vendor []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, stage, value, probability, temperature, customer, vendor, created_at, updated_at
		 FROM opportunities WHERE id = $1`, id,
	).Scan(&opp.ID, &opp.Name, &stage, &opp.Value, &opp.Probability,
		&temperature, &customer, &vendor, &opp.CreatedAt, &opp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: opportunity %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get opportunity %s", id)
	}

	opp.Stage = model.Stage(stage)
	opp.Temperature = model.Temperature(temperature)
	if err := json.Unmarshal(customer, &opp.Customer); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal customer")
	}
	if err := json.Unmarshal(vendor, &opp.Vendor); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal vendor")
	}
	return &opp, nil
}

func (s *PostgresStore) UpsertOpportunity(ctx context.Context, opp *model.OpportunityContext) error {
	customer, err := json.Marshal(opp.Customer)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal customer")
	}
	vendor, err := json.Marshal(opp.Vendor)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vendor")
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO opportunities (id, name, stage, value, probability, temperature, customer, vendor, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, stage = excluded.stage, value = excluded.value,
			probability = excluded.probability, temperature = excluded.temperature,
			customer = excluded.customer, vendor = excluded.vendor,
			updated_at = excluded.updated_at`,
		opp.ID, opp.Name, string(opp.Stage), opp.Value, opp.Probability,
		string(opp.Temperature), customer, vendor, now,
	)
	return eris.Wrapf(err, "postgres: upsert opportunity %s", opp.ID)
}

func (s *PostgresStore) GetTranscript(ctx context.Context, opportunityID string) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_role, text, sent_at FROM messages
		 WHERE opportunity_id = $1 ORDER BY sent_at, id`, opportunityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get transcript")
	}
	defer rows.Close()

	msgs := make([]model.Message, 0)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderRole, &m.Text, &m.SentAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan message")
		}
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "postgres: transcript rows")
}

func (s *PostgresStore) AddMessages(ctx context.Context, opportunityID string, msgs []model.Message) error {
	for _, m := range msgs {
		id := m.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO messages (id, opportunity_id, sender_role, text, sent_at) VALUES ($1, $2, $3, $4, $5)`,
			id, opportunityID, m.SenderRole, m.Text, m.SentAt,
		); err != nil {
			return eris.Wrap(err, "postgres: insert message")
		}
	}
	return nil
}

func (s *PostgresStore) GetAgentConfig(ctx context.Context, agentType model.AgentType) (*model.AgentRunConfig, error) {
	var cfg model.AgentRunConfig
	var at string
	var temperature *float64

	err := s.pool.QueryRow(ctx,
		`SELECT agent_type, system_prompt, model, temperature, max_tokens, active
		 FROM agent_configs WHERE agent_type = $1`, string(agentType),
	).Scan(&at, &cfg.SystemPrompt, &cfg.Model, &temperature, &cfg.MaxTokens, &cfg.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get agent config %s", agentType)
	}

	cfg.AgentType = model.AgentType(at)
	cfg.Temperature = temperature
	return &cfg, nil
}

func (s *PostgresStore) ListAgentConfigs(ctx context.Context) ([]model.AgentRunConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_type, system_prompt, model, temperature, max_tokens, active
		 FROM agent_configs ORDER BY agent_type`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list agent configs")
	}
	defer rows.Close()

	var out []model.AgentRunConfig
	for rows.Next() {
		var cfg model.AgentRunConfig
		var at string
		var temperature *float64
		if err := rows.Scan(&at, &cfg.SystemPrompt, &cfg.Model, &temperature, &cfg.MaxTokens, &cfg.Active); err != nil {
			return nil, eris.Wrap(err, "postgres: scan agent config")
		}
		cfg.AgentType = model.AgentType(at)
		cfg.Temperature = temperature
		out = append(out, cfg)
	}
	return out, eris.Wrap(rows.Err(), "postgres: agent config rows")
}

func (s *PostgresStore) UpsertAgentConfig(ctx context.Context, cfg model.AgentRunConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_configs (agent_type, system_prompt, model, temperature, max_tokens, active, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_type) DO UPDATE SET
			system_prompt = excluded.system_prompt, model = excluded.model,
			temperature = excluded.temperature, max_tokens = excluded.max_tokens,
			active = excluded.active, updated_at = excluded.updated_at`,
		string(cfg.AgentType), cfg.SystemPrompt, cfg.Model, cfg.Temperature,
		cfg.MaxTokens, cfg.Active, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: upsert agent config %s", cfg.AgentType)
}

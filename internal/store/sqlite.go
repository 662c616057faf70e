package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dealsense/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS opportunities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	stage       TEXT NOT NULL,
	value       REAL NOT NULL DEFAULT 0,
	probability INTEGER NOT NULL DEFAULT 0,
	temperature TEXT NOT NULL DEFAULT 'warm',
	customer    TEXT NOT NULL DEFAULT '{}',
	vendor      TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS messages (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL REFERENCES opportunities(id),
	sender_role    TEXT NOT NULL,
	text           TEXT NOT NULL,
	sent_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_configs (
	agent_type    TEXT PRIMARY KEY,
	system_prompt TEXT NOT NULL,
	model         TEXT NOT NULL,
	temperature   REAL,
	max_tokens    INTEGER NOT NULL DEFAULT 2048,
	active        INTEGER NOT NULL DEFAULT 1,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extractions (
	id                 TEXT PRIMARY KEY,
	opportunity_id     TEXT NOT NULL,
	agent_type         TEXT NOT NULL,
	version            INTEGER NOT NULL,
	status             TEXT NOT NULL,
	reason             TEXT NOT NULL DEFAULT '',
	payload            TEXT,
	confidence         REAL NOT NULL DEFAULT 0,
	confidence_clamped INTEGER NOT NULL DEFAULT 0,
	model              TEXT NOT NULL DEFAULT '',
	input_tokens       INTEGER NOT NULL DEFAULT 0,
	output_tokens      INTEGER NOT NULL DEFAULT 0,
	duration_ms        INTEGER NOT NULL DEFAULT 0,
	consumed_inputs    TEXT,
	missing_inputs     TEXT,
	created_at         DATETIME NOT NULL,
	UNIQUE (opportunity_id, agent_type, version)
);

CREATE INDEX IF NOT EXISTS idx_messages_opp_sent ON messages(opportunity_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_extractions_opp_agent ON extractions(opportunity_id, agent_type, version DESC);
CREATE INDEX IF NOT EXISTS idx_extractions_agent_status ON extractions(agent_type, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// appendAttempts bounds the insert retry loop when concurrent appends for
// the same (opportunity, agent type) pair race on a version.
const appendAttempts = 10

func (s *SQLiteStore) AppendExtraction(ctx context.Context, e *model.Extraction) (*model.Extraction, error) {
	js, err := marshalExtraction(e)
	if err != nil {
		return nil, err
	}

	out := *e
	out.ID = uuid.New().String()
	out.CreatedAt = time.Now().UTC()

	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		var next int
		err := s.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM extractions WHERE opportunity_id = ? AND agent_type = ?`,
			e.OpportunityID, string(e.AgentType),
		).Scan(&next)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: next extraction version")
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO extractions (
				id, opportunity_id, agent_type, version, status, reason,
				payload, confidence, confidence_clamped, model,
				input_tokens, output_tokens, duration_ms,
				consumed_inputs, missing_inputs, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			out.ID, out.OpportunityID, string(out.AgentType), next,
			string(out.Status), string(out.Reason),
			nullableText(js.payload), out.Confidence, out.ConfidenceClamped,
			out.Provenance.Model, out.Provenance.InputTokens,
			out.Provenance.OutputTokens, out.Provenance.DurationMs,
			nullableText(js.consumed), nullableText(js.missing), out.CreatedAt,
		)
		if err == nil {
			out.Version = next
			return &out, nil
		}
		if !strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, eris.Wrap(err, "sqlite: insert extraction")
		}
		// Lost the version race; fetch a fresh MAX and try again.
		lastErr = err
	}

	return nil, eris.Wrap(lastErr, "sqlite: insert extraction after version conflicts")
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

const sqliteExtractionColumns = `id, opportunity_id, agent_type, version, status, reason,
	payload, confidence, confidence_clamped, model,
	input_tokens, output_tokens, duration_ms,
	consumed_inputs, missing_inputs, created_at`

func (s *SQLiteStore) scanExtraction(scan func(dest ...any) error) (model.Extraction, error) {
	var e model.Extraction
	var payload, consumed, missing sql.NullString
	var agentType, status, reason string

	err := scan(
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

	err = unmarshalExtraction(&e,
		[]byte(payload.String), []byte(consumed.String), []byte(missing.String))
	return e, err
}

func (s *SQLiteStore) LatestPerType(ctx context.Context, opportunityID string) (map[model.AgentType]model.Extraction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteExtractionColumns+`
		FROM extractions e
		WHERE opportunity_id = ? AND status = ? AND version = (
			SELECT MAX(version) FROM extractions
			WHERE opportunity_id = e.opportunity_id
			  AND agent_type = e.agent_type
			  AND status = ?
		)`,
		opportunityID, string(model.ExtractionSucceeded), string(model.ExtractionSucceeded),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest per type")
	}
	defer rows.Close()

	latest := make(map[model.AgentType]model.Extraction)
	for rows.Next() {
		e, err := s.scanExtraction(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan latest extraction")
		}
		latest[e.AgentType] = e
	}
	return latest, eris.Wrap(rows.Err(), "sqlite: latest per type rows")
}

func (s *SQLiteStore) History(ctx context.Context, opportunityID string, agentType model.AgentType, limit int) ([]model.Extraction, error) {
	query := `SELECT ` + sqliteExtractionColumns + `
		FROM extractions WHERE opportunity_id = ? AND agent_type = ?
		ORDER BY version DESC`
	args := []any{opportunityID, string(agentType)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: history")
	}
	defer rows.Close()

	var out []model.Extraction
	for rows.Next() {
		e, err := s.scanExtraction(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan history extraction")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: history rows")
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, filter ExtractionFilter) ([]model.Extraction, error) {
	query := `SELECT ` + sqliteExtractionColumns + ` FROM extractions WHERE 1=1`
	var args []any

	if filter.OpportunityID != "" {
		query += ` AND opportunity_id = ?`
		args = append(args, filter.OpportunityID)
	}
	if filter.AgentType != "" {
		query += ` AND agent_type = ?`
		args = append(args, string(filter.AgentType))
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(filter.Statuses)-1) + `)`
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close()

	var out []model.Extraction
	for rows.Next() {
		e, err := s.scanExtraction(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list extraction rows")
}

func (s *SQLiteStore) GetOpportunity(ctx context.Context, id string) (*model.OpportunityContext, error) {
	var opp model.OpportunityContext
	var stage, temperature string
	var customer, vendor []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, stage, value, probability, temperature, customer, vendor, created_at, updated_at
		 FROM opportunities WHERE id = ?`, id,
	).Scan(&opp.ID, &opp.Name, &stage, &opp.Value, &opp.Probability,
		&temperature, &customer, &vendor, &opp.CreatedAt, &opp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: opportunity %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get opportunity %s", id)
	}

	opp.Stage = model.Stage(stage)
	opp.Temperature = model.Temperature(temperature)
	if err := json.Unmarshal(customer, &opp.Customer); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal customer")
	}
	if err := json.Unmarshal(vendor, &opp.Vendor); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vendor")
	}
	return &opp, nil
}

func (s *SQLiteStore) UpsertOpportunity(ctx context.Context, opp *model.OpportunityContext) error {
	customer, err := json.Marshal(opp.Customer)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal customer")
	}
	vendor, err := json.Marshal(opp.Vendor)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vendor")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opportunities (id, name, stage, value, probability, temperature, customer, vendor, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, stage = excluded.stage, value = excluded.value,
			probability = excluded.probability, temperature = excluded.temperature,
			customer = excluded.customer, vendor = excluded.vendor,
			updated_at = excluded.updated_at`,
		opp.ID, opp.Name, string(opp.Stage), opp.Value, opp.Probability,
		string(opp.Temperature), string(customer), string(vendor), now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert opportunity %s", opp.ID)
}

func (s *SQLiteStore) GetTranscript(ctx context.Context, opportunityID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_role, text, sent_at FROM messages
		 WHERE opportunity_id = ? ORDER BY sent_at, id`, opportunityID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get transcript")
	}
	defer rows.Close()

	msgs := make([]model.Message, 0)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.SenderRole, &m.Text, &m.SentAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan message")
		}
		msgs = append(msgs, m)
	}
	return msgs, eris.Wrap(rows.Err(), "sqlite: transcript rows")
}

func (s *SQLiteStore) AddMessages(ctx context.Context, opportunityID string, msgs []model.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin add messages")
	}
	defer tx.Rollback()

	for _, m := range msgs {
		id := m.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, opportunity_id, sender_role, text, sent_at) VALUES (?, ?, ?, ?, ?)`,
			id, opportunityID, m.SenderRole, m.Text, m.SentAt,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert message")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit add messages")
}

func (s *SQLiteStore) GetAgentConfig(ctx context.Context, agentType model.AgentType) (*model.AgentRunConfig, error) {
	var cfg model.AgentRunConfig
	var at string
	var temperature sql.NullFloat64

	err := s.db.QueryRowContext(ctx,
		`SELECT agent_type, system_prompt, model, temperature, max_tokens, active
		 FROM agent_configs WHERE agent_type = ?`, string(agentType),
	).Scan(&at, &cfg.SystemPrompt, &cfg.Model, &temperature, &cfg.MaxTokens, &cfg.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get agent config %s", agentType)
	}

	cfg.AgentType = model.AgentType(at)
	if temperature.Valid {
		cfg.Temperature = &temperature.Float64
	}
	return &cfg, nil
}

func (s *SQLiteStore) ListAgentConfigs(ctx context.Context) ([]model.AgentRunConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_type, system_prompt, model, temperature, max_tokens, active
		 FROM agent_configs ORDER BY agent_type`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list agent configs")
	}
	defer rows.Close()

	var out []model.AgentRunConfig
	for rows.Next() {
		var cfg model.AgentRunConfig
		var at string
		var temperature sql.NullFloat64
		if err := rows.Scan(&at, &cfg.SystemPrompt, &cfg.Model, &temperature, &cfg.MaxTokens, &cfg.Active); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agent config")
		}
		cfg.AgentType = model.AgentType(at)
		if temperature.Valid {
			cfg.Temperature = &temperature.Float64
		}
		out = append(out, cfg)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: agent config rows")
}

func (s *SQLiteStore) UpsertAgentConfig(ctx context.Context, cfg model.AgentRunConfig) error {
	var temperature any
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_configs (agent_type, system_prompt, model, temperature, max_tokens, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_type) DO UPDATE SET
			system_prompt = excluded.system_prompt, model = excluded.model,
			temperature = excluded.temperature, max_tokens = excluded.max_tokens,
			active = excluded.active, updated_at = excluded.updated_at`,
		string(cfg.AgentType), cfg.SystemPrompt, cfg.Model, temperature,
		cfg.MaxTokens, cfg.Active, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: upsert agent config %s", cfg.AgentType)
}

package databases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"continuum/internal/persistence"
)

// InitSchema creates the relational tables backing the agents,
// working_context, fifo_queue, recall_storage, and chat_log tiers, per §6
// of the design (indices on (agent_id, timestamp) for recall/chat_log/fifo).
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS agents (
    id UUID PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    optional_tool_sets TEXT[] NOT NULL DEFAULT '{}',
    summary TEXT NOT NULL DEFAULT '',
    summary_updated_at TIMESTAMPTZ,
    last_user_exit_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS working_context (
    agent_id UUID PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
    agent_persona TEXT NOT NULL DEFAULT '',
    user_persona TEXT NOT NULL DEFAULT '',
    tasks TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS fifo_queue (
    id UUID PRIMARY KEY,
    agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS fifo_queue_agent_ts_idx ON fifo_queue(agent_id, ts);

CREATE TABLE IF NOT EXISTS recall_storage (
    id UUID PRIMARY KEY,
    agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS recall_storage_agent_ts_idx ON recall_storage(agent_id, ts);

CREATE TABLE IF NOT EXISTS chat_log (
    id UUID PRIMARY KEY,
    agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
    kind TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL,
    text TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS chat_log_agent_ts_idx ON chat_log(agent_id, ts);
CREATE INDEX IF NOT EXISTS chat_log_text_trgm_idx ON chat_log USING GIN (text gin_trgm_ops);
`)
	return err
}

// --- AgentStore ---

func NewPostgresAgentStore(pool *pgxpool.Pool) persistence.AgentStore {
	return &pgAgentStore{pool: pool}
}

type pgAgentStore struct{ pool *pgxpool.Pool }

func (s *pgAgentStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *pgAgentStore) Create(ctx context.Context, id string, optionalToolSets []string) (persistence.AgentRecord, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO agents (id, optional_tool_sets) VALUES ($1, $2)
RETURNING id, created_at, optional_tool_sets, summary, summary_updated_at, last_user_exit_at`, id, optionalToolSets)
	return scanAgent(row)
}

func scanAgent(row pgx.Row) (persistence.AgentRecord, error) {
	var rec persistence.AgentRecord
	var summaryUpdatedAt, lastUserExitAt *time.Time
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.OptionalToolSets, &rec.Summary, &summaryUpdatedAt, &lastUserExitAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return persistence.AgentRecord{}, persistence.ErrNotFound
		}
		return persistence.AgentRecord{}, err
	}
	if summaryUpdatedAt != nil {
		rec.SummaryUpdatedAt = *summaryUpdatedAt
	}
	if lastUserExitAt != nil {
		rec.LastUserExitAt = *lastUserExitAt
	}
	return rec, nil
}

func (s *pgAgentStore) Get(ctx context.Context, id string) (persistence.AgentRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, created_at, optional_tool_sets, summary, summary_updated_at, last_user_exit_at FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (s *pgAgentStore) List(ctx context.Context) ([]persistence.AgentRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, created_at, optional_tool_sets, summary, summary_updated_at, last_user_exit_at FROM agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *pgAgentStore) Delete(ctx context.Context, id string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func (s *pgAgentStore) UpdateSummary(ctx context.Context, id string, summary string, at time.Time) error {
	cmd, err := s.pool.Exec(ctx, `
UPDATE agents SET summary = $2, summary_updated_at = $3
WHERE id = $1 AND (summary_updated_at IS NULL OR summary_updated_at <= $3)`, id, summary, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return nil // stale write, summary timestamp didn't advance: no-op
	}
	return nil
}

func (s *pgAgentStore) TouchUserExit(ctx context.Context, id string, at time.Time) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE agents SET last_user_exit_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// --- WorkingContextStore ---

func NewPostgresWorkingContextStore(pool *pgxpool.Pool) persistence.WorkingContextStore {
	return &pgWorkingContextStore{pool: pool}
}

type pgWorkingContextStore struct{ pool *pgxpool.Pool }

func (s *pgWorkingContextStore) ensureRow(ctx context.Context, agentID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO working_context (agent_id) VALUES ($1) ON CONFLICT DO NOTHING`, agentID)
	return err
}

func (s *pgWorkingContextStore) GetAgentPersona(ctx context.Context, agentID string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT agent_persona FROM working_context WHERE agent_id = $1`, agentID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (s *pgWorkingContextStore) GetUserPersona(ctx context.Context, agentID string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT user_persona FROM working_context WHERE agent_id = $1`, agentID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func (s *pgWorkingContextStore) SetAgentPersona(ctx context.Context, agentID, text string) error {
	if err := s.ensureRow(ctx, agentID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `UPDATE working_context SET agent_persona = $2 WHERE agent_id = $1`, agentID, text)
	return err
}

func (s *pgWorkingContextStore) SetUserPersona(ctx context.Context, agentID, text string) error {
	if err := s.ensureRow(ctx, agentID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `UPDATE working_context SET user_persona = $2 WHERE agent_id = $1`, agentID, text)
	return err
}

func (s *pgWorkingContextStore) Tasks(ctx context.Context, agentID string) ([]string, error) {
	var tasks []string
	err := s.pool.QueryRow(ctx, `SELECT tasks FROM working_context WHERE agent_id = $1`, agentID).Scan(&tasks)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	return tasks, err
}

func (s *pgWorkingContextStore) PushTask(ctx context.Context, agentID, task string) error {
	if err := s.ensureRow(ctx, agentID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `UPDATE working_context SET tasks = array_append(tasks, $2) WHERE agent_id = $1`, agentID, task)
	return err
}

func (s *pgWorkingContextStore) PopTask(ctx context.Context, agentID string) (string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tasks []string
	err = tx.QueryRow(ctx, `SELECT tasks FROM working_context WHERE agent_id = $1 FOR UPDATE`, agentID).Scan(&tasks)
	if errors.Is(err, pgx.ErrNoRows) || len(tasks) == 0 {
		return "", persistence.ErrTaskQueueEmpty
	}
	if err != nil {
		return "", err
	}
	head := tasks[0]
	rest := tasks[1:]
	if _, err := tx.Exec(ctx, `UPDATE working_context SET tasks = $2 WHERE agent_id = $1`, agentID, rest); err != nil {
		return "", err
	}
	return head, tx.Commit(ctx)
}

// --- FIFOQueueStore ---

func NewPostgresFIFOQueueStore(pool *pgxpool.Pool) persistence.FIFOQueueStore {
	return &pgFIFOStore{pool: pool}
}

type pgFIFOStore struct{ pool *pgxpool.Pool }

func (s *pgFIFOStore) Push(ctx context.Context, agentID string, msg persistence.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO fifo_queue (id, agent_id, kind, ts, payload) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, agentID, msg.Kind, msg.Timestamp, msg.Payload)
	return err
}

func scanStoredMessage(row pgx.Row) (persistence.StoredMessage, error) {
	var m persistence.StoredMessage
	if err := row.Scan(&m.ID, &m.AgentID, &m.Kind, &m.Timestamp, &m.Payload); err != nil {
		return persistence.StoredMessage{}, err
	}
	return m, nil
}

func (s *pgFIFOStore) Peek(ctx context.Context, agentID string) (persistence.StoredMessage, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, agent_id, kind, ts, payload FROM fifo_queue WHERE agent_id = $1 ORDER BY ts ASC LIMIT 1`, agentID)
	m, err := scanStoredMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.StoredMessage{}, persistence.ErrEmpty
	}
	return m, err
}

func (s *pgFIFOStore) Pop(ctx context.Context, agentID string) (persistence.StoredMessage, error) {
	row := s.pool.QueryRow(ctx, `
DELETE FROM fifo_queue WHERE id = (
    SELECT id FROM fifo_queue WHERE agent_id = $1 ORDER BY ts ASC LIMIT 1 FOR UPDATE SKIP LOCKED
)
RETURNING id, agent_id, kind, ts, payload`, agentID)
	m, err := scanStoredMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return persistence.StoredMessage{}, persistence.ErrEmpty
	}
	return m, err
}

func (s *pgFIFOStore) Len(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fifo_queue WHERE agent_id = $1`, agentID).Scan(&n)
	return n, err
}

func (s *pgFIFOStore) List(ctx context.Context, agentID string) ([]persistence.StoredMessage, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, agent_id, kind, ts, payload FROM fifo_queue WHERE agent_id = $1 ORDER BY ts ASC`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistence.StoredMessage
	for rows.Next() {
		m, err := scanStoredMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if out == nil {
		out = []persistence.StoredMessage{}
	}
	return out, rows.Err()
}

// --- RecallStore ---

func NewPostgresRecallStore(pool *pgxpool.Pool) persistence.RecallStore {
	return &pgRecallStore{pool: pool}
}

type pgRecallStore struct{ pool *pgxpool.Pool }

func (s *pgRecallStore) Push(ctx context.Context, agentID string, msg persistence.StoredMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO recall_storage (id, agent_id, kind, ts, payload) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, agentID, msg.Kind, msg.Timestamp, msg.Payload)
	return err
}

func (s *pgRecallStore) TextSearch(ctx context.Context, agentID, q string, offset, limit int) ([]persistence.StoredMessage, error) {
	if limit <= 0 {
		limit = 1_000_000
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, agent_id, kind, ts, payload FROM recall_storage
WHERE agent_id = $1 AND kind IN ('user','assistant') AND payload::text ILIKE '%' || $2 || '%'
ORDER BY ts DESC
OFFSET $3 LIMIT $4`, agentID, q, offset, limit)
	if err != nil {
		return nil, err
	}
	return collectStoredMessages(rows)
}

func (s *pgRecallStore) DateSearch(ctx context.Context, agentID string, start, end time.Time, offset, limit int) ([]persistence.StoredMessage, error) {
	if limit <= 0 {
		limit = 1_000_000
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, agent_id, kind, ts, payload FROM recall_storage
WHERE agent_id = $1 AND kind IN ('user','assistant') AND ts BETWEEN $2 AND $3
ORDER BY ts DESC
OFFSET $4 LIMIT $5`, agentID, start, end, offset, limit)
	if err != nil {
		return nil, err
	}
	return collectStoredMessages(rows)
}

func collectStoredMessages(rows pgx.Rows) ([]persistence.StoredMessage, error) {
	defer rows.Close()
	var out []persistence.StoredMessage
	for rows.Next() {
		m, err := scanStoredMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if out == nil {
		out = []persistence.StoredMessage{}
	}
	return out, rows.Err()
}

// --- ChatLogStore ---

func NewPostgresChatLogStore(pool *pgxpool.Pool) persistence.ChatLogStore {
	return &pgChatLogStore{pool: pool}
}

type pgChatLogStore struct{ pool *pgxpool.Pool }

func (s *pgChatLogStore) Push(ctx context.Context, agentID string, entry persistence.ChatLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO chat_log (id, agent_id, kind, ts, text) VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, agentID, entry.Kind, entry.Timestamp, entry.Text)
	return err
}

func scanChatLogEntry(row pgx.Row) (persistence.ChatLogEntry, error) {
	var e persistence.ChatLogEntry
	if err := row.Scan(&e.ID, &e.AgentID, &e.Kind, &e.Timestamp, &e.Text); err != nil {
		return persistence.ChatLogEntry{}, err
	}
	return e, nil
}

func (s *pgChatLogStore) RecentSearch(ctx context.Context, agentID, q string, offset, limit int) ([]persistence.ChatLogEntry, error) {
	if limit <= 0 {
		limit = 1_000_000
	}
	q = strings.TrimSpace(q)
	var rows pgx.Rows
	var err error
	if q == "" {
		rows, err = s.pool.Query(ctx, `SELECT id, agent_id, kind, ts, text FROM chat_log WHERE agent_id = $1 ORDER BY ts DESC OFFSET $2 LIMIT $3`, agentID, offset, limit)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT id, agent_id, kind, ts, text FROM chat_log WHERE agent_id = $1 AND text ILIKE '%' || $2 || '%' ORDER BY ts DESC OFFSET $3 LIMIT $4`, agentID, q, offset, limit)
	}
	if err != nil {
		return nil, err
	}
	return collectChatLogEntries(rows)
}

func (s *pgChatLogStore) DateSearch(ctx context.Context, agentID string, start, end time.Time, offset, limit int) ([]persistence.ChatLogEntry, error) {
	if limit <= 0 {
		limit = 1_000_000
	}
	rows, err := s.pool.Query(ctx, `SELECT id, agent_id, kind, ts, text FROM chat_log WHERE agent_id = $1 AND ts BETWEEN $2 AND $3 ORDER BY ts DESC OFFSET $4 LIMIT $5`, agentID, start, end, offset, limit)
	if err != nil {
		return nil, err
	}
	return collectChatLogEntries(rows)
}

func collectChatLogEntries(rows pgx.Rows) ([]persistence.ChatLogEntry, error) {
	defer rows.Close()
	var out []persistence.ChatLogEntry
	for rows.Next() {
		e, err := scanChatLogEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if out == nil {
		out = []persistence.ChatLogEntry{}
	}
	return out, rows.Err()
}

package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"continuum/internal/persistence"
	"continuum/internal/persistence/databases"
)

// WorkingContext is the agent's "core RAM": the two bounded personas and
// the task queue, always materialized in the LLM context.
type WorkingContext struct {
	store       persistence.WorkingContextStore
	agentID     string
	maxPersonaW int
}

func NewWorkingContext(store persistence.WorkingContextStore, agentID string, maxPersonaWords int) *WorkingContext {
	return &WorkingContext{store: store, agentID: agentID, maxPersonaW: maxPersonaWords}
}

func wordCount(s string) int { return len(strings.Fields(s)) }

func (w *WorkingContext) AgentPersona(ctx context.Context) (string, error) {
	return w.store.GetAgentPersona(ctx, w.agentID)
}

func (w *WorkingContext) UserPersona(ctx context.Context) (string, error) {
	return w.store.GetUserPersona(ctx, w.agentID)
}

// SetAgentPersona replaces the agent persona wholesale, failing with
// ErrPersonaTooLong before any write if the new text exceeds W words.
func (w *WorkingContext) SetAgentPersona(ctx context.Context, text string) error {
	if wordCount(text) > w.maxPersonaW {
		return persistence.ErrPersonaTooLong
	}
	return w.store.SetAgentPersona(ctx, w.agentID, text)
}

// AppendAgentPersona appends text to the existing agent persona, subject to
// the same word cap as a full replace.
func (w *WorkingContext) AppendAgentPersona(ctx context.Context, text string) error {
	cur, err := w.store.GetAgentPersona(ctx, w.agentID)
	if err != nil {
		return err
	}
	merged := strings.TrimSpace(cur + " " + text)
	return w.SetAgentPersona(ctx, merged)
}

func (w *WorkingContext) SetUserPersona(ctx context.Context, text string) error {
	if wordCount(text) > w.maxPersonaW {
		return persistence.ErrPersonaTooLong
	}
	return w.store.SetUserPersona(ctx, w.agentID, text)
}

// AppendUserPersona appends text to the existing user persona, subject to
// the same word cap as a full replace.
func (w *WorkingContext) AppendUserPersona(ctx context.Context, text string) error {
	cur, err := w.store.GetUserPersona(ctx, w.agentID)
	if err != nil {
		return err
	}
	merged := strings.TrimSpace(cur + " " + text)
	return w.SetUserPersona(ctx, merged)
}

func (w *WorkingContext) Tasks(ctx context.Context) ([]string, error) {
	return w.store.Tasks(ctx, w.agentID)
}

func (w *WorkingContext) PushTask(ctx context.Context, task string) error {
	return w.store.PushTask(ctx, w.agentID, task)
}

// PopTask removes and returns the oldest task, or persistence.ErrTaskQueueEmpty.
func (w *WorkingContext) PopTask(ctx context.Context) (string, error) {
	return w.store.PopTask(ctx, w.agentID)
}

// Render produces the stable, human-readable block included in the system
// entry of the assembled context.
func (w *WorkingContext) Render(ctx context.Context) (string, error) {
	agentPersona, err := w.AgentPersona(ctx)
	if err != nil {
		return "", err
	}
	userPersona, err := w.UserPersona(ctx)
	if err != nil {
		return "", err
	}
	tasks, err := w.Tasks(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("## Agent Persona\n")
	b.WriteString(agentPersona)
	b.WriteString("\n\n## User Persona\n")
	if userPersona == "" {
		b.WriteString("(none set)")
	} else {
		b.WriteString(userPersona)
	}
	b.WriteString("\n\n## Task Queue\n")
	if len(tasks) == 0 {
		b.WriteString("(empty)")
	} else {
		for i, t := range tasks {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t)
		}
	}
	return b.String(), nil
}

// FIFOQueue is the bounded, in-context message window.
type FIFOQueue struct {
	store   persistence.FIFOQueueStore
	agentID string
}

func NewFIFOQueue(store persistence.FIFOQueueStore, agentID string) *FIFOQueue {
	return &FIFOQueue{store: store, agentID: agentID}
}

func toStoredMessage(agentID string, m Message) (persistence.StoredMessage, error) {
	payload, err := m.Serialize()
	if err != nil {
		return persistence.StoredMessage{}, err
	}
	return persistence.StoredMessage{AgentID: agentID, Kind: string(m.Kind), Timestamp: m.Timestamp, Payload: payload}, nil
}

func fromStoredMessage(sm persistence.StoredMessage) (Message, error) {
	return DeserializeMessage(sm.Payload)
}

func (q *FIFOQueue) Push(ctx context.Context, m Message) error {
	sm, err := toStoredMessage(q.agentID, m)
	if err != nil {
		return err
	}
	return q.store.Push(ctx, q.agentID, sm)
}

// Peek returns the oldest message by timestamp, or persistence.ErrEmpty.
func (q *FIFOQueue) Peek(ctx context.Context) (Message, error) {
	sm, err := q.store.Peek(ctx, q.agentID)
	if err != nil {
		return Message{}, err
	}
	return fromStoredMessage(sm)
}

// Pop removes and returns the oldest message, or persistence.ErrEmpty.
func (q *FIFOQueue) Pop(ctx context.Context) (Message, error) {
	sm, err := q.store.Pop(ctx, q.agentID)
	if err != nil {
		return Message{}, err
	}
	return fromStoredMessage(sm)
}

func (q *FIFOQueue) Len(ctx context.Context) (int, error) {
	return q.store.Len(ctx, q.agentID)
}

func (q *FIFOQueue) List(ctx context.Context) ([]Message, error) {
	sms, err := q.store.List(ctx, q.agentID)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(sms))
	for _, sm := range sms {
		m, err := fromStoredMessage(sm)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// RecallStorage mirrors every message ever pushed through the FIFO facade.
type RecallStorage struct {
	store   persistence.RecallStore
	agentID string
}

func NewRecallStorage(store persistence.RecallStore, agentID string) *RecallStorage {
	return &RecallStorage{store: store, agentID: agentID}
}

func (r *RecallStorage) Push(ctx context.Context, m Message) error {
	sm, err := toStoredMessage(r.agentID, m)
	if err != nil {
		return err
	}
	return r.store.Push(ctx, r.agentID, sm)
}

func (r *RecallStorage) TextSearch(ctx context.Context, q string, offset, limit int) ([]Message, error) {
	sms, err := r.store.TextSearch(ctx, r.agentID, q, offset, limit)
	if err != nil {
		return nil, err
	}
	return fromStoredMessages(sms)
}

func (r *RecallStorage) DateSearch(ctx context.Context, start, end time.Time, offset, limit int) ([]Message, error) {
	sms, err := r.store.DateSearch(ctx, r.agentID, start, end, offset, limit)
	if err != nil {
		return nil, err
	}
	return fromStoredMessages(sms)
}

func fromStoredMessages(sms []persistence.StoredMessage) ([]Message, error) {
	out := make([]Message, 0, len(sms))
	for _, sm := range sms {
		m, err := fromStoredMessage(sm)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// ChatLog is the simplified linear transcript of user-visible turns.
type ChatLog struct {
	store   persistence.ChatLogStore
	agentID string
}

func NewChatLog(store persistence.ChatLogStore, agentID string) *ChatLog {
	return &ChatLog{store: store, agentID: agentID}
}

func (c *ChatLog) Push(ctx context.Context, kind string, ts time.Time, text string) error {
	return c.store.Push(ctx, c.agentID, persistence.ChatLogEntry{Kind: kind, Timestamp: ts, Text: text})
}

func (c *ChatLog) RecentSearch(ctx context.Context, q string, offset, limit int) ([]persistence.ChatLogEntry, error) {
	return c.store.RecentSearch(ctx, c.agentID, q, offset, limit)
}

func (c *ChatLog) DateSearch(ctx context.Context, start, end time.Time, offset, limit int) ([]persistence.ChatLogEntry, error) {
	return c.store.DateSearch(ctx, c.agentID, start, end, offset, limit)
}

// ArchivalFragment is a single categorized, chunked text fragment.
type ArchivalFragment struct {
	Document string
	Category string
	Inserted time.Time
}

// ArchivalStorage is the per-agent vector collection of categorized text
// chunks, isolated from other agents via an "agent_id" metadata filter.
type ArchivalStorage struct {
	store          databases.VectorStore
	agentID        string
	chunkMaxTokens int
	embed          Embedder

	mu         sync.Mutex
	count      int
	categories map[string]int
}

// Embedder turns text into a fixed-dimension vector for similarity search.
// Concrete implementations are supplied by the LLM provider in use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

func NewArchivalStorage(store databases.VectorStore, agentID string, chunkMaxTokens int, embed Embedder) *ArchivalStorage {
	return &ArchivalStorage{store: store, agentID: agentID, chunkMaxTokens: chunkMaxTokens, embed: embed, categories: map[string]int{}}
}

// Categories lists the distinct category labels seen by this process since
// startup (a best-effort view: the vector store has no list-all operation).
func (a *ArchivalStorage) Categories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.categories))
	for c := range a.categories {
		out = append(out, c)
	}
	return out
}

// Len returns the number of fragments inserted by this process since
// startup (a best-effort view, for the same reason as Categories).
func (a *ArchivalStorage) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Insert splits text into chunks of at most chunkMaxTokens tokens, tags
// each with {category, inserted_at}, and inserts with fresh ids.
func (a *ArchivalStorage) Insert(ctx context.Context, text, category string) (int, error) {
	chunks := ChunkText(text, a.chunkMaxTokens)
	now := time.Now().UTC()
	for i, chunk := range chunks {
		vec, err := a.embed.Embed(ctx, chunk)
		if err != nil {
			return 0, fmt.Errorf("embed archival chunk: %w", err)
		}
		meta := map[string]string{
			"agent_id":    a.agentID,
			"category":    category,
			"inserted_at": now.Format(time.RFC3339Nano),
			"document":    chunk,
		}
		// Disambiguate by chunk index, not length: two chunks of equal byte
		// length inserted within the same nanosecond would otherwise collide
		// and silently overwrite each other on Upsert.
		id := fmt.Sprintf("%s-%d-%d", a.agentID, now.UnixNano(), i)
		if err := a.store.Upsert(ctx, id, vec, meta); err != nil {
			return 0, fmt.Errorf("upsert archival chunk: %w", err)
		}
		a.mu.Lock()
		a.count++
		a.categories[category]++
		a.mu.Unlock()
	}
	return len(chunks), nil
}

// ArchivalHit is a single similarity search result.
type ArchivalHit struct {
	Document string
	Metadata map[string]string
}

// Search performs vector similarity search over the per-agent collection,
// optionally filtered by category, returning a page [offset, offset+count).
func (a *ArchivalStorage) Search(ctx context.Context, query string, offset, count int, category string) ([]ArchivalHit, error) {
	vec, err := a.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed archival query: %w", err)
	}
	filter := map[string]string{"agent_id": a.agentID}
	if category != "" {
		filter["category"] = category
	}
	// Over-fetch so the offset/count slice still has enough candidates.
	results, err := a.store.SimilaritySearch(ctx, vec, offset+count, filter)
	if err != nil {
		return nil, err
	}
	if offset >= len(results) {
		return []ArchivalHit{}, nil
	}
	end := len(results)
	if offset+count < end {
		end = offset + count
	}
	out := make([]ArchivalHit, 0, end-offset)
	for _, r := range results[offset:end] {
		out = append(out, ArchivalHit{Document: r.Metadata["document"], Metadata: r.Metadata})
	}
	return out, nil
}

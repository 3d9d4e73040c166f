package memory

import (
	"context"
	"fmt"
	"time"

	"continuum/internal/llm"
	"continuum/internal/persistence"
	"continuum/internal/persistence/databases"
)

// Config carries the token-budget constants that shape the flush policy,
// mirroring the environment knobs documented in the external interfaces.
type Config struct {
	ContextWindowTokens int
	WarnFraction        float64
	FlushFraction       float64
	FlushTargetFraction float64
	MinFIFOQueueLen     int
	ChunkMaxTokens      int
	PersonaMaxWords     int
	SummaryRetries      int
}

// Manager is the per-agent hierarchical memory facade: it owns the five
// tiers for one agent and exposes the operations the heartbeat loop needs
// (push a turn, assemble the next LLM context, run a flush).
type Manager struct {
	AgentID string

	Working  *WorkingContext
	FIFO     *FIFOQueue
	Recall   *RecallStorage
	ChatLog  *ChatLog
	Archival *ArchivalStorage

	agents    persistence.AgentStore
	assembler *Assembler
	flusher   *Flusher
	cfg       Config
}

// NewManager wires one agent's memory tiers over the given database
// backends, for the given system prompt, tokenizer, and summarization
// model.
func NewManager(db databases.Manager, agentID string, systemPrompt string, tokenizer llm.Tokenizer, summaryProvider llm.Provider, summaryModel string, embed Embedder, cfg Config) *Manager {
	return &Manager{
		AgentID:   agentID,
		Working:   NewWorkingContext(db.WorkingContext, agentID, cfg.PersonaMaxWords),
		FIFO:      NewFIFOQueue(db.FIFOQueue, agentID),
		Recall:    NewRecallStorage(db.Recall, agentID),
		ChatLog:   NewChatLog(db.ChatLog, agentID),
		Archival:  NewArchivalStorage(db.Vector, agentID, cfg.ChunkMaxTokens, embed),
		agents:    db.Agents,
		assembler: NewAssembler(systemPrompt, tokenizer),
		flusher:   NewFlusher(summaryProvider, summaryModel, cfg.ContextWindowTokens, cfg.MinFIFOQueueLen, cfg.FlushTargetFraction, cfg.SummaryRetries),
		cfg:       cfg,
	}
}

// PushMessage appends m to both the FIFO queue and Recall Storage. From the
// agent's point of view this mirroring is atomic (I1): a message is never
// observable in one tier without the other.
func (m *Manager) PushMessage(ctx context.Context, msg Message) error {
	if err := m.FIFO.Push(ctx, msg); err != nil {
		return fmt.Errorf("push fifo: %w", err)
	}
	if err := m.Recall.Push(ctx, msg); err != nil {
		return fmt.Errorf("push recall: %w", err)
	}
	return nil
}

// PushChatLog appends a simplified, user-visible turn.
func (m *Manager) PushChatLog(ctx context.Context, kind string, ts time.Time, text string) error {
	return m.ChatLog.Push(ctx, kind, ts, text)
}

func (m *Manager) agentRecord(ctx context.Context) (persistence.AgentRecord, error) {
	return m.agents.Get(ctx, m.AgentID)
}

// BuildContext assembles the LLM-visible context (working context render +
// summary + FIFO messages) and returns it alongside the measured token
// occupancy.
func (m *Manager) BuildContext(ctx context.Context, toolSchemaCount int) (AssembledContext, error) {
	rec, err := m.agentRecord(ctx)
	if err != nil {
		return AssembledContext{}, err
	}
	status, err := m.memoryStatusBlock(ctx, rec, toolSchemaCount)
	if err != nil {
		return AssembledContext{}, err
	}
	fifo, err := m.FIFO.List(ctx)
	if err != nil {
		return AssembledContext{}, err
	}
	return m.assembler.BuildContext(ctx, status, rec.Summary, rec.SummaryUpdatedAt, fifo, toolSchemaCount)
}

func (m *Manager) memoryStatusBlock(ctx context.Context, rec persistence.AgentRecord, toolSchemaCount int) (string, error) {
	working, err := m.Working.Render(ctx)
	if err != nil {
		return "", err
	}
	fifoLen, err := m.FIFO.Len(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"%s\n\n## Memory Status\nArchival fragments (this process): %d, categories: %v\nFIFO length: %d\nAvailable tools: %d\n",
		working, m.Archival.Len(), m.Archival.Categories(), fifoLen, toolSchemaCount,
	), nil
}

// FlushThresholds reports whether the given in-context token count crosses
// the warning or flush fractions of the context window.
func (m *Manager) FlushThresholds(inCtxTokens int) (warn, flush bool) {
	window := float64(m.cfg.ContextWindowTokens)
	if window <= 0 {
		return false, false
	}
	ratio := float64(inCtxTokens) / window
	return ratio > m.cfg.WarnFraction, ratio > m.cfg.FlushFraction
}

// RunFlush executes the recursive summarizer's flush policy: it evicts a
// prefix of the FIFO queue, condenses it into the rolling summary via the
// LLM, and only then pops the evicted messages from the FIFO store (so a
// failed LLM call leaves the FIFO untouched and safe to retry).
func (m *Manager) RunFlush(ctx context.Context) (SummaryResult, error) {
	rec, err := m.agentRecord(ctx)
	if err != nil {
		return SummaryResult{}, err
	}
	fifo, err := m.FIFO.List(ctx)
	if err != nil {
		return SummaryResult{}, err
	}
	result, evictCount, err := m.flusher.Flush(ctx, rec.Summary, rec.SummaryUpdatedAt, fifo)
	if err != nil {
		return SummaryResult{}, err
	}
	if evictCount == 0 {
		return result, nil
	}
	for i := 0; i < evictCount; i++ {
		if _, err := m.FIFO.Pop(ctx); err != nil {
			return result, fmt.Errorf("pop evicted message %d/%d: %w", i+1, evictCount, err)
		}
	}
	now := time.Now().UTC()
	if err := m.agents.UpdateSummary(ctx, m.AgentID, result.Summary, now); err != nil {
		return result, fmt.Errorf("update summary: %w", err)
	}
	return result, nil
}

// Summary returns the agent's current rolling summary and its update time.
func (m *Manager) Summary(ctx context.Context) (string, time.Time, error) {
	rec, err := m.agentRecord(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	return rec.Summary, rec.SummaryUpdatedAt, nil
}

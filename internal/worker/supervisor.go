// Package worker isolates each agent's heartbeat loop behind a lock table and
// adapts it to the orchestrator's Kafka dispatch surface: one Supervisor
// serves many agents, building (and caching) one heartbeat engine per agent
// id and running it to completion whenever a command or scheduled tick
// arrives for that agent.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"continuum/internal/agent"
	"continuum/internal/agent/prompts"
	"continuum/internal/config"
	"continuum/internal/llm"
	"continuum/internal/memory"
	"continuum/internal/persistence"
	"continuum/internal/persistence/databases"
	"continuum/internal/tools"
	"continuum/internal/tools/base"
	"continuum/internal/tools/optional"
	"continuum/internal/tools/web"
)

// EngineFactory builds a fresh heartbeat engine for one agent. Supervisor
// calls it at most once per agent id and caches the result.
type EngineFactory func(ctx context.Context, agentID string) (*agent.Engine, error)

// Supervisor enforces the single-writer-per-agent invariant (I8): two
// concurrent commands for the same agent never run its heartbeat loop at the
// same time. It satisfies orchestrator.Runner.
type Supervisor struct {
	factory EngineFactory

	mu       sync.Mutex
	engines  map[string]*agent.Engine
	controls map[string]chan string
	locks    map[string]bool
}

// NewSupervisor constructs a Supervisor over the given engine factory.
func NewSupervisor(factory EngineFactory) *Supervisor {
	return &Supervisor{
		factory:  factory,
		engines:  map[string]*agent.Engine{},
		controls: map[string]chan string{},
		locks:    map[string]bool{},
	}
}

// SendControl delivers a session control command ("halt", "halt_soon", or
// any other string, which the engine treats as a ControlViolation and halts
// on) to the named agent's engine, letting a caller outside the running
// heartbeat chain inject it per spec §4.6 / scenario 5. It reports false if
// the agent has no engine yet (nothing has run for it) or its control
// channel is already full.
func (s *Supervisor) SendControl(agentID, cmd string) bool {
	s.mu.Lock()
	ch, ok := s.controls[agentID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- cmd:
		return true
	default:
		return false
	}
}

func (s *Supervisor) tryLock(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[agentID] {
		return false
	}
	s.locks[agentID] = true
	return true
}

func (s *Supervisor) unlock(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, agentID)
}

func (s *Supervisor) engineFor(ctx context.Context, agentID string) (*agent.Engine, error) {
	s.mu.Lock()
	if eng, ok := s.engines[agentID]; ok {
		s.mu.Unlock()
		return eng, nil
	}
	s.mu.Unlock()

	eng, err := s.factory(ctx, agentID)
	if err != nil {
		return nil, err
	}

	// Retain the sendable side of the control channel ourselves: Engine.Control
	// is declared receive-only, so once assigned there's no way to recover a
	// sendable handle from the engine itself.
	control := make(chan string, 1)
	eng.Control = control

	s.mu.Lock()
	s.engines[agentID] = eng
	s.controls[agentID] = control
	s.mu.Unlock()
	return eng, nil
}

// Execute implements orchestrator.Runner: it pushes attrs["text"] (if any)
// as a user message, runs the agent's heartbeat loop to completion, and
// streams every worker event to publish as it happens.
func (s *Supervisor) Execute(ctx context.Context, agentID string, attrs map[string]any, publish func(ctx context.Context, stepID string, payload []byte) error) (map[string]any, error) {
	if !s.tryLock(agentID) {
		return nil, fmt.Errorf("%w: agent_id=%s", persistence.ErrAlreadyLocked, agentID)
	}
	defer s.unlock(agentID)

	eng, err := s.engineFor(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("build engine for %s: %w", agentID, err)
	}

	if text, ok := attrs["text"].(string); ok && text != "" {
		now := time.Now().UTC()
		msg := memory.NewUserMessage(text, now)
		if err := eng.Memory.PushMessage(ctx, msg); err != nil {
			return nil, fmt.Errorf("push user message: %w", err)
		}
		if err := eng.Memory.PushChatLog(ctx, string(memory.KindUser), now, text); err != nil {
			return nil, fmt.Errorf("push chat log: %w", err)
		}
	}

	events := make(chan agent.Event, 16)
	eng.Events = events

	var toUser []string
	var stepN int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			stepN++
			if ev.Type == "to_user" {
				toUser = append(toUser, ev.Text)
			}
			payload, _ := json.Marshal(map[string]any{"type": ev.Type, "text": ev.Text})
			_ = publish(ctx, fmt.Sprintf("%s-%d", agentID, stepN), payload)
		}
	}()

	runErr := eng.Run(ctx)
	close(events)
	<-done

	if runErr != nil {
		return nil, runErr
	}
	return map[string]any{"agent_id": agentID, "messages": toUser, "steps": stepN}, nil
}

// NewEngineFactory builds the default EngineFactory: one memory manager and
// tool registry per agent, sharing the given database/provider/config across
// every agent the supervisor serves.
func NewEngineFactory(db databases.Manager, provider llm.Provider, model string, cfg config.Config) EngineFactory {
	return func(ctx context.Context, agentID string) (*agent.Engine, error) {
		record, err := db.Agents.Get(ctx, agentID)
		if err != nil {
			if err != persistence.ErrNotFound {
				return nil, err
			}
			record, err = db.Agents.Create(ctx, agentID, optionalToolSetsFor(cfg))
			if err != nil {
				return nil, err
			}
		}

		embedder := memory.NewHTTPEmbedder(cfg.Embeddings.Host, cfg.Embeddings.APIKey, cfg.Embeddings.Model)
		systemPrompt := cfg.SystemPrompt
		if systemPrompt == "" {
			systemPrompt = prompts.DefaultSystemPrompt(cfg.Memory.PersonaMaxWords)
		}

		mem := memory.NewManager(db, record.ID, systemPrompt, nil, provider, cfg.Memory.SummaryModel, embedder, memory.Config{
			ContextWindowTokens: cfg.Memory.ContextWindowTokens,
			WarnFraction:        cfg.Memory.WarningFraction,
			FlushFraction:       cfg.Memory.FlushFraction,
			FlushTargetFraction: cfg.Memory.FlushTargetFraction,
			MinFIFOQueueLen:     cfg.Memory.MinFIFOQueueLen,
			ChunkMaxTokens:      cfg.Memory.ChunkMaxTokens,
			PersonaMaxWords:     cfg.Memory.PersonaMaxWords,
			SummaryRetries:      3,
		})

		registry := buildRegistry(mem, record.OptionalToolSets, cfg)

		eng := &agent.Engine{
			Memory:              mem,
			LLM:                 provider,
			Tools:               registry,
			Model:               model,
			Control:             make(chan string, 1),
			ControlPollInterval: 250 * time.Millisecond,
			OverthinkN:          cfg.Memory.OverthinkWarningHeartbeats,
			MaxSteps:            cfg.MaxSteps,
		}
		eng.AttachTokenizer(provider, nil)
		return eng, nil
	}
}

func optionalToolSetsFor(cfg config.Config) []string {
	var sets []string
	if cfg.EnableInterpreter {
		sets = append(sets, "interpreter")
	}
	if cfg.EnableWebSearch {
		sets = append(sets, "web")
	}
	return sets
}

func buildRegistry(mem *memory.Manager, optionalToolSets []string, cfg config.Config) tools.Registry {
	reg := tools.NewRegistry()

	reg.Register(&base.PersonaAppendTool{Mem: mem})
	reg.Register(&base.PersonaReplaceTool{Mem: mem})
	reg.Register(&base.PushTaskTool{Mem: mem})
	reg.Register(&base.PopTaskTool{Mem: mem})
	reg.Register(&base.ArchivalInsertTool{Mem: mem})
	reg.Register(&base.ArchivalSearchTool{Mem: mem})
	reg.Register(&base.RecallSearchTool{Mem: mem})
	reg.Register(&base.RecallSearchByDateTool{Mem: mem})
	reg.Register(&base.ChatLogSearchTool{Mem: mem})
	reg.Register(&base.ChatLogSearchByDateTool{Mem: mem})
	reg.Register(&base.SendMessageTool{})

	for _, set := range optionalToolSets {
		switch set {
		case "interpreter":
			reg.Register(&optional.ExecutePythonTool{})
		case "web":
			reg.Register(&optional.WebSearchTool{SearXNGURL: cfg.SearXNGURL})
			reg.Register(&optional.ScrapeWebpageTool{Fetcher: web.NewFetcher()})
		}
	}

	return reg
}

package databases

import (
	"context"
	"sort"
	"sync"
	"time"

	"continuum/internal/persistence"
)

// NewMemoryAgentStore returns an in-process AgentStore, suitable for tests
// and single-node development.
func NewMemoryAgentStore() persistence.AgentStore {
	return &memAgentStore{agents: map[string]persistence.AgentRecord{}}
}

type memAgentStore struct {
	mu     sync.RWMutex
	agents map[string]persistence.AgentRecord
}

func (s *memAgentStore) Create(ctx context.Context, id string, optionalToolSets []string) (persistence.AgentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := persistence.AgentRecord{
		ID:               id,
		CreatedAt:        time.Now().UTC(),
		OptionalToolSets: append([]string(nil), optionalToolSets...),
	}
	s.agents[id] = rec
	return rec, nil
}

func (s *memAgentStore) Get(ctx context.Context, id string) (persistence.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.agents[id]
	if !ok {
		return persistence.AgentRecord{}, persistence.ErrNotFound
	}
	return rec, nil
}

func (s *memAgentStore) List(ctx context.Context) ([]persistence.AgentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]persistence.AgentRecord, 0, len(s.agents))
	for _, rec := range s.agents {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memAgentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

func (s *memAgentStore) UpdateSummary(ctx context.Context, id string, summary string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[id]
	if !ok {
		return persistence.ErrNotFound
	}
	if at.Before(rec.SummaryUpdatedAt) {
		at = rec.SummaryUpdatedAt
	}
	rec.Summary = summary
	rec.SummaryUpdatedAt = at
	s.agents[id] = rec
	return nil
}

func (s *memAgentStore) TouchUserExit(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.agents[id]
	if !ok {
		return persistence.ErrNotFound
	}
	rec.LastUserExitAt = at
	s.agents[id] = rec
	return nil
}

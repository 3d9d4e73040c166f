package databases

import (
	"context"
	"sync"

	"continuum/internal/persistence"
)

type memWorkingContextRow struct {
	agentPersona string
	userPersona  string
	tasks        []string
}

// NewMemoryWorkingContextStore returns an in-process WorkingContextStore.
func NewMemoryWorkingContextStore() persistence.WorkingContextStore {
	return &memWorkingContextStore{rows: map[string]*memWorkingContextRow{}}
}

type memWorkingContextStore struct {
	mu   sync.Mutex
	rows map[string]*memWorkingContextRow
}

func (s *memWorkingContextStore) row(agentID string) *memWorkingContextRow {
	r, ok := s.rows[agentID]
	if !ok {
		r = &memWorkingContextRow{}
		s.rows[agentID] = r
	}
	return r
}

func (s *memWorkingContextStore) GetAgentPersona(ctx context.Context, agentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row(agentID).agentPersona, nil
}

func (s *memWorkingContextStore) GetUserPersona(ctx context.Context, agentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.row(agentID).userPersona, nil
}

func (s *memWorkingContextStore) SetAgentPersona(ctx context.Context, agentID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.row(agentID).agentPersona = text
	return nil
}

func (s *memWorkingContextStore) SetUserPersona(ctx context.Context, agentID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.row(agentID).userPersona = text
	return nil
}

func (s *memWorkingContextStore) Tasks(ctx context.Context, agentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.row(agentID).tasks...), nil
}

func (s *memWorkingContextStore) PushTask(ctx context.Context, agentID, task string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.row(agentID)
	r.tasks = append(r.tasks, task)
	return nil
}

func (s *memWorkingContextStore) PopTask(ctx context.Context, agentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.row(agentID)
	if len(r.tasks) == 0 {
		return "", persistence.ErrTaskQueueEmpty
	}
	head := r.tasks[0]
	r.tasks = r.tasks[1:]
	return head, nil
}

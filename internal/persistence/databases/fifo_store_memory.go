package databases

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"continuum/internal/persistence"
)

// NewMemoryFIFOQueueStore returns an in-process FIFOQueueStore.
func NewMemoryFIFOQueueStore() persistence.FIFOQueueStore {
	return &memFIFOStore{byAgent: map[string][]persistence.StoredMessage{}}
}

type memFIFOStore struct {
	mu      sync.Mutex
	byAgent map[string][]persistence.StoredMessage
}

func (s *memFIFOStore) Push(ctx context.Context, agentID string, msg persistence.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.AgentID = agentID
	queue := append(s.byAgent[agentID], msg)
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Timestamp.Before(queue[j].Timestamp) })
	s.byAgent[agentID] = queue
	return nil
}

func (s *memFIFOStore) Peek(ctx context.Context, agentID string) (persistence.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.byAgent[agentID]
	if len(queue) == 0 {
		return persistence.StoredMessage{}, persistence.ErrEmpty
	}
	return queue[0], nil
}

func (s *memFIFOStore) Pop(ctx context.Context, agentID string) (persistence.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.byAgent[agentID]
	if len(queue) == 0 {
		return persistence.StoredMessage{}, persistence.ErrEmpty
	}
	head := queue[0]
	s.byAgent[agentID] = queue[1:]
	return head, nil
}

func (s *memFIFOStore) Len(ctx context.Context, agentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byAgent[agentID]), nil
}

func (s *memFIFOStore) List(ctx context.Context, agentID string) ([]persistence.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.StoredMessage, len(s.byAgent[agentID]))
	copy(out, s.byAgent[agentID])
	return out, nil
}

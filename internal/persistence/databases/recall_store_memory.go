package databases

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"continuum/internal/persistence"
)

// NewMemoryRecallStore returns an in-process RecallStore.
func NewMemoryRecallStore() persistence.RecallStore {
	return &memRecallStore{byAgent: map[string][]persistence.StoredMessage{}}
}

type memRecallStore struct {
	mu      sync.RWMutex
	byAgent map[string][]persistence.StoredMessage
}

func (s *memRecallStore) Push(ctx context.Context, agentID string, msg persistence.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.AgentID = agentID
	s.byAgent[agentID] = append(s.byAgent[agentID], msg)
	return nil
}

func isSearchableKind(kind string) bool {
	return kind == "user" || kind == "assistant"
}

func (s *memRecallStore) TextSearch(ctx context.Context, agentID, q string, offset, limit int) ([]persistence.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(q)
	var hits []persistence.StoredMessage
	for _, m := range s.byAgent[agentID] {
		if !isSearchableKind(m.Kind) {
			continue
		}
		if strings.Contains(strings.ToLower(string(m.Payload)), needle) {
			hits = append(hits, m)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Timestamp.After(hits[j].Timestamp) })
	return paginateStoredMessages(hits, offset, limit), nil
}

func (s *memRecallStore) DateSearch(ctx context.Context, agentID string, start, end time.Time, offset, limit int) ([]persistence.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []persistence.StoredMessage
	for _, m := range s.byAgent[agentID] {
		if !isSearchableKind(m.Kind) {
			continue
		}
		if (m.Timestamp.Equal(start) || m.Timestamp.After(start)) && (m.Timestamp.Equal(end) || m.Timestamp.Before(end)) {
			hits = append(hits, m)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Timestamp.After(hits[j].Timestamp) })
	return paginateStoredMessages(hits, offset, limit), nil
}

func paginateStoredMessages(items []persistence.StoredMessage, offset, limit int) []persistence.StoredMessage {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []persistence.StoredMessage{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

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

// NewMemoryChatLogStore returns an in-process ChatLogStore.
func NewMemoryChatLogStore() persistence.ChatLogStore {
	return &memChatLogStore{byAgent: map[string][]persistence.ChatLogEntry{}}
}

type memChatLogStore struct {
	mu      sync.RWMutex
	byAgent map[string][]persistence.ChatLogEntry
}

func (s *memChatLogStore) Push(ctx context.Context, agentID string, entry persistence.ChatLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.AgentID = agentID
	s.byAgent[agentID] = append(s.byAgent[agentID], entry)
	return nil
}

func (s *memChatLogStore) RecentSearch(ctx context.Context, agentID, q string, offset, limit int) ([]persistence.ChatLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(q))
	var hits []persistence.ChatLogEntry
	for _, e := range s.byAgent[agentID] {
		if needle != "" && !strings.Contains(strings.ToLower(e.Text), needle) {
			continue
		}
		hits = append(hits, e)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Timestamp.After(hits[j].Timestamp) })
	return paginateChatLog(hits, offset, limit), nil
}

func (s *memChatLogStore) DateSearch(ctx context.Context, agentID string, start, end time.Time, offset, limit int) ([]persistence.ChatLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hits []persistence.ChatLogEntry
	for _, e := range s.byAgent[agentID] {
		if (e.Timestamp.Equal(start) || e.Timestamp.After(start)) && (e.Timestamp.Equal(end) || e.Timestamp.Before(end)) {
			hits = append(hits, e)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Timestamp.After(hits[j].Timestamp) })
	return paginateChatLog(hits, offset, limit), nil
}

func paginateChatLog(items []persistence.ChatLogEntry, offset, limit int) []persistence.ChatLogEntry {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []persistence.ChatLogEntry{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

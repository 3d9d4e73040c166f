package databases

import (
	"context"

	"continuum/internal/persistence"
)

// VectorResult represents a single nearest neighbor lookup result.
type VectorResult struct {
	ID       string
	Score    float64 // Higher is closer by default
	Metadata map[string]string
}

// VectorStore defines the minimum interface for a pluggable vector store.
// Archival Storage uses one collection per deployment, isolating agents by
// filtering on the "agent_id" metadata field.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}

// Manager holds concrete database backends resolved from configuration.
type Manager struct {
	Agents         persistence.AgentStore
	WorkingContext persistence.WorkingContextStore
	FIFOQueue      persistence.FIFOQueueStore
	Recall         persistence.RecallStore
	ChatLog        persistence.ChatLogStore
	Vector         VectorStore
}

// Close releases any underlying pools. It's a no-op for memory backends.
func (m Manager) Close() {
	if c, ok := any(m.Agents).(interface{ Close() }); ok {
		c.Close()
	}
	if c, ok := any(m.Vector).(interface{ Close() }); ok {
		c.Close()
	}
}

// Package persistence defines the narrow storage interfaces the memory
// tiers depend on. Concrete engines (Postgres, in-memory, Qdrant) live
// under persistence/databases and are resolved from configuration; the
// core never imports a concrete engine directly.
package persistence

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup by id finds nothing.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a caller's identity doesn't own the row.
	ErrForbidden = errors.New("forbidden")
	// ErrEmpty is returned by FIFOQueue.Peek/Pop on an empty queue.
	ErrEmpty = errors.New("fifo queue is empty")
	// ErrTaskQueueEmpty is returned by WorkingContext.PopTask on an empty queue.
	ErrTaskQueueEmpty = errors.New("task queue is empty")
	// ErrPersonaTooLong is returned when a persona write would exceed the
	// configured word cap.
	ErrPersonaTooLong = errors.New("persona exceeds maximum word count")
	// ErrAlreadyLocked is returned when a second worker attempts to acquire
	// an agent's run lock while another worker holds it.
	ErrAlreadyLocked = errors.New("agent is already locked by another worker")
)

// StoredMessage is a Message together with its persistence-assigned id,
// used by tiers that need to address an individual stored row (FIFO pop,
// recall/chat-log pagination).
type StoredMessage struct {
	ID        string
	AgentID   string
	Kind      string
	Timestamp time.Time
	// Payload is the wire-encoded Message (memory.Message.Serialize()).
	Payload []byte
}

// AgentRecord is the durable row backing an agent: identity, optional tool
// sets, and the rolling recursive summary.
type AgentRecord struct {
	ID               string
	CreatedAt        time.Time
	OptionalToolSets []string
	Summary          string
	SummaryUpdatedAt time.Time
	LastUserExitAt   time.Time
}

// AgentStore manages the agents table: lifecycle plus the rolling summary.
type AgentStore interface {
	Create(ctx context.Context, id string, optionalToolSets []string) (AgentRecord, error)
	Get(ctx context.Context, id string) (AgentRecord, error)
	List(ctx context.Context) ([]AgentRecord, error)
	Delete(ctx context.Context, id string) error

	// UpdateSummary replaces the stored summary as a whole; its timestamp
	// must advance monotonically (never earlier than the prior value).
	UpdateSummary(ctx context.Context, id string, summary string, at time.Time) error
	// TouchUserExit records the most recent time the user left the session.
	TouchUserExit(ctx context.Context, id string, at time.Time) error
}

// WorkingContextStore manages the per-agent persona + task queue row.
type WorkingContextStore interface {
	GetAgentPersona(ctx context.Context, agentID string) (string, error)
	GetUserPersona(ctx context.Context, agentID string) (string, error)
	SetAgentPersona(ctx context.Context, agentID, text string) error
	SetUserPersona(ctx context.Context, agentID, text string) error

	Tasks(ctx context.Context, agentID string) ([]string, error)
	PushTask(ctx context.Context, agentID, task string) error
	// PopTask removes and returns the oldest task, or ErrTaskQueueEmpty.
	PopTask(ctx context.Context, agentID string) (string, error)
}

// FIFOQueueStore manages the bounded in-context message window for one
// agent. Push is append ordered by timestamp; Pop/Peek always return the
// message with the minimum timestamp among current contents.
type FIFOQueueStore interface {
	Push(ctx context.Context, agentID string, msg StoredMessage) error
	Peek(ctx context.Context, agentID string) (StoredMessage, error)
	Pop(ctx context.Context, agentID string) (StoredMessage, error)
	Len(ctx context.Context, agentID string) (int, error)
	// List returns all current messages, oldest first.
	List(ctx context.Context, agentID string) ([]StoredMessage, error)
}

// RecallStore mirrors every message ever pushed through the FIFO facade;
// entries are never evicted.
type RecallStore interface {
	Push(ctx context.Context, agentID string, msg StoredMessage) error
	// TextSearch returns user/assistant messages whose serialized content
	// contains q (case-insensitive), newest first.
	TextSearch(ctx context.Context, agentID, q string, offset, limit int) ([]StoredMessage, error)
	// DateSearch returns user/assistant messages in [start, end], newest first.
	DateSearch(ctx context.Context, agentID string, start, end time.Time, offset, limit int) ([]StoredMessage, error)
}

// ChatLogEntry is a simplified, user-visible turn.
type ChatLogEntry struct {
	ID        string
	AgentID   string
	Kind      string // user | assistant | system
	Timestamp time.Time
	Text      string
}

// ChatLogStore manages the simplified linear transcript of user-visible
// turns: direct user inputs, direct assistant sends, and system notices.
type ChatLogStore interface {
	Push(ctx context.Context, agentID string, entry ChatLogEntry) error
	RecentSearch(ctx context.Context, agentID, q string, offset, limit int) ([]ChatLogEntry, error)
	DateSearch(ctx context.Context, agentID string, start, end time.Time, offset, limit int) ([]ChatLogEntry, error)
}

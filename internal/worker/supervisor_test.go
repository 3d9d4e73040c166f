package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"continuum/internal/agent"
	"continuum/internal/llm"
	"continuum/internal/memory"
	"continuum/internal/persistence"
	"continuum/internal/persistence/databases"
	"continuum/internal/tools"
)

// blockingProvider blocks every Chat call until unblock is closed, then
// returns a fixed error; it lets tests hold an agent's run lock open for a
// controlled window.
type blockingProvider struct {
	entered chan struct{}
	unblock chan struct{}
	once    bool
}

func (p *blockingProvider) Chat(ctx context.Context, msgs []llm.Message, toolsSchema []llm.ToolSchema, model string) (llm.Message, error) {
	if !p.once {
		p.once = true
		close(p.entered)
	}
	select {
	case <-p.unblock:
	case <-ctx.Done():
		return llm.Message{}, ctx.Err()
	}
	return llm.Message{}, errors.New("boom")
}

func (p *blockingProvider) ChatStream(context.Context, []llm.Message, []llm.ToolSchema, string, llm.StreamHandler) error {
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func newBlockingEngineFactory(provider *blockingProvider) EngineFactory {
	return func(ctx context.Context, agentID string) (*agent.Engine, error) {
		db := databases.Manager{
			Agents:         databases.NewMemoryAgentStore(),
			WorkingContext: databases.NewMemoryWorkingContextStore(),
			FIFOQueue:      databases.NewMemoryFIFOQueueStore(),
			Recall:         databases.NewMemoryRecallStore(),
			ChatLog:        databases.NewMemoryChatLogStore(),
		}
		if _, err := db.Agents.Create(ctx, agentID, nil); err != nil {
			return nil, err
		}
		mem := memory.NewManager(db, agentID, "you are a helpful agent", nil, provider, "", fakeEmbedder{}, memory.Config{PersonaMaxWords: 1000})
		return &agent.Engine{
			Memory:              mem,
			LLM:                 provider,
			Tools:               tools.NewRegistry(),
			Model:               "test-model",
			ControlPollInterval: time.Millisecond,
			ValidationRetries:   1,
		}, nil
	}
}

func noopPublish(context.Context, string, []byte) error { return nil }

// TestSupervisorSingleWriterPerAgent exercises I8: two concurrent Execute
// calls for the same agent id never run its heartbeat loop at the same
// time; the second observes persistence.ErrAlreadyLocked immediately.
func TestSupervisorSingleWriterPerAgent(t *testing.T) {
	provider := &blockingProvider{entered: make(chan struct{}), unblock: make(chan struct{})}
	sup := NewSupervisor(newBlockingEngineFactory(provider))

	done := make(chan error, 1)
	go func() {
		_, err := sup.Execute(context.Background(), "agent-1", nil, noopPublish)
		done <- err
	}()

	select {
	case <-provider.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first Execute never reached the blocking LLM call")
	}

	_, err := sup.Execute(context.Background(), "agent-1", nil, noopPublish)
	require.ErrorIs(t, err, persistence.ErrAlreadyLocked)

	close(provider.unblock)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("first Execute never returned after unblocking")
	}

	// Now that the first run has released the lock, a third call on the same
	// supervisor must be able to take it again, proving it was released.
	_, err = sup.Execute(context.Background(), "agent-1", nil, noopPublish)
	require.NotErrorIs(t, err, persistence.ErrAlreadyLocked)
}

// TestSupervisorSendControlReachesLiveEngine exercises the control-command
// sink: once an agent's engine has been built, SendControl can deliver a
// command to its Control channel from outside the running heartbeat chain.
func TestSupervisorSendControlReachesLiveEngine(t *testing.T) {
	provider := &blockingProvider{entered: make(chan struct{}), unblock: make(chan struct{})}
	sup := NewSupervisor(newBlockingEngineFactory(provider))

	done := make(chan error, 1)
	go func() {
		_, err := sup.Execute(context.Background(), "agent-1", nil, noopPublish)
		done <- err
	}()

	select {
	case <-provider.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Execute never reached the blocking LLM call")
	}

	require.True(t, sup.SendControl("agent-1", "halt"), "expected SendControl to reach the cached engine")

	close(provider.unblock)
	<-done
}

func TestSupervisorSendControlUnknownAgent(t *testing.T) {
	sup := NewSupervisor(func(ctx context.Context, agentID string) (*agent.Engine, error) {
		return nil, errors.New("never called")
	})
	require.False(t, sup.SendControl("never-run", "halt"))
}

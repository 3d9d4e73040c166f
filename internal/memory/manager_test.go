package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"continuum/internal/llm"
	"continuum/internal/persistence/databases"
	"continuum/internal/testhelpers"
)

func newTestManager(t *testing.T, provider llm.Provider, cfg Config) *Manager {
	t.Helper()
	db := databases.Manager{
		Agents:         databases.NewMemoryAgentStore(),
		WorkingContext: databases.NewMemoryWorkingContextStore(),
		FIFOQueue:      databases.NewMemoryFIFOQueueStore(),
		Recall:         databases.NewMemoryRecallStore(),
		ChatLog:        databases.NewMemoryChatLogStore(),
		Vector:         newFakeVectorStore(),
	}
	_, err := db.Agents.Create(context.Background(), "agent-1", nil)
	require.NoError(t, err)

	return NewManager(db, "agent-1", "you are a helpful agent", nil, provider, "", fakeEmbedder{}, cfg)
}

// TestPushMessageMirrorsFIFOAndRecall exercises I1: a pushed message is
// never observable in FIFO without also being observable in Recall.
func TestPushMessageMirrorsFIFOAndRecall(t *testing.T) {
	mgr := newTestManager(t, &testhelpers.FakeProvider{}, Config{PersonaMaxWords: 100})
	ctx := context.Background()

	msg := NewUserMessage("remember this", time.Now().UTC())
	require.NoError(t, mgr.PushMessage(ctx, msg))

	fifoLen, err := mgr.FIFO.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, fifoLen)

	hits, err := mgr.Recall.TextSearch(ctx, "remember", 0, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

// TestFIFOGrowsMonotonicallyUntilFlush exercises I2/I5: FIFO length only
// grows as messages are pushed, and RunFlush evicts a bounded prefix down
// toward (not below) the configured floor, leaving MinFIFOQueueLen messages
// untouched.
func TestFIFOGrowsMonotonicallyUntilFlush(t *testing.T) {
	summaryYAML := "```yaml\nanalysis: condensed\nsummary: the user discussed several topics\n```"
	provider := &testhelpers.FakeProvider{Resp: llm.Message{Content: summaryYAML}}

	cfg := Config{
		ContextWindowTokens: 40,
		WarnFraction:        0.5,
		FlushFraction:       0.8,
		FlushTargetFraction: 0.1,
		MinFIFOQueueLen:     2,
		PersonaMaxWords:     100,
		SummaryRetries:      1,
	}
	mgr := newTestManager(t, provider, cfg)
	ctx := context.Background()

	var lastLen int
	for i := 0; i < 10; i++ {
		require.NoError(t, mgr.PushMessage(ctx, NewUserMessage("message number", time.Now().UTC())))
		n, err := mgr.FIFO.Len(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, lastLen, "FIFO length must grow monotonically while only pushing")
		lastLen = n
	}

	result, err := mgr.RunFlush(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, result.Summary)

	remaining, err := mgr.FIFO.Len(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, remaining, cfg.MinFIFOQueueLen, "flush must never evict below the configured floor")
	require.Less(t, remaining, lastLen, "flush must have evicted at least one message")

	summary, _, err := mgr.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, "the user discussed several topics", summary)
}

// TestRunFlushLeavesFIFOUntouchedOnLLMFailure exercises the safety property
// documented on Flusher.Flush: a failed summarization call must not evict
// anything, so the next tick can retry against the same FIFO contents.
func TestRunFlushLeavesFIFOUntouchedOnLLMFailure(t *testing.T) {
	failing := &testhelpers.FakeProvider{Resp: llm.Message{Content: "not valid yaml at all"}}

	cfg := Config{
		ContextWindowTokens: 10,
		WarnFraction:        0.5,
		FlushFraction:       0.8,
		FlushTargetFraction: 0.1,
		MinFIFOQueueLen:     0,
		PersonaMaxWords:     100,
		SummaryRetries:      1,
	}
	mgr := newTestManager(t, failing, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, mgr.PushMessage(ctx, NewUserMessage("message", time.Now().UTC())))
	}
	before, err := mgr.FIFO.Len(ctx)
	require.NoError(t, err)

	_, err = mgr.RunFlush(ctx)
	require.Error(t, err)

	after, err := mgr.FIFO.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, before, after, "a failed flush must leave the FIFO queue untouched")
}

package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"continuum/internal/persistence"
	"continuum/internal/persistence/databases"
)

// fakeVectorStore is a minimal in-memory databases.VectorStore for tests.
type fakeVectorStore struct {
	byID map[string]struct {
		vec  []float32
		meta map[string]string
	}
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{byID: map[string]struct {
		vec  []float32
		meta map[string]string
	}{}}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, id string, vec []float32, meta map[string]string) error {
	f.byID[id] = struct {
		vec  []float32
		meta map[string]string
	}{vec: vec, meta: meta}
	return nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeVectorStore) SimilaritySearch(ctx context.Context, vec []float32, k int, filter map[string]string) ([]databases.VectorResult, error) {
	var out []databases.VectorResult
	for id, row := range f.byID {
		out = append(out, databases.VectorResult{ID: id, Score: 1, Metadata: row.meta})
	}
	return out, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

// TestPersonaWordCap exercises I3: persona_append/persona_replace reject
// edits that would exceed the configured word cap, without writing.
func TestPersonaWordCap(t *testing.T) {
	store := databases.NewMemoryWorkingContextStore()
	wc := NewWorkingContext(store, "agent-1", 3)

	require.NoError(t, wc.SetAgentPersona(context.Background(), "one two three"))

	err := wc.SetAgentPersona(context.Background(), "one two three four")
	require.ErrorIs(t, err, persistence.ErrPersonaTooLong)

	got, err := wc.AgentPersona(context.Background())
	require.NoError(t, err)
	require.Equal(t, "one two three", got, "rejected write must not mutate stored persona")

	err = wc.AppendAgentPersona(context.Background(), "four five")
	require.ErrorIs(t, err, persistence.ErrPersonaTooLong)
}

// TestTaskQueueFIFO exercises I4: PushTask/PopTask behave as a strict FIFO
// and PopTask on empty reports persistence.ErrTaskQueueEmpty.
func TestTaskQueueFIFO(t *testing.T) {
	store := databases.NewMemoryWorkingContextStore()
	wc := NewWorkingContext(store, "agent-1", 1000)
	ctx := context.Background()

	require.NoError(t, wc.PushTask(ctx, "first"))
	require.NoError(t, wc.PushTask(ctx, "second"))
	require.NoError(t, wc.PushTask(ctx, "third"))

	for _, want := range []string{"first", "second", "third"} {
		got, err := wc.PopTask(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := wc.PopTask(ctx)
	require.ErrorIs(t, err, persistence.ErrTaskQueueEmpty)
}

// TestArchivalInsertDisambiguatesIDsByIndex guards against fragment ids
// colliding when two chunks share the same byte length within one Insert
// call (all chunks in an Insert share the same "now" nanosecond).
func TestArchivalInsertDisambiguatesIDsByIndex(t *testing.T) {
	store := newFakeVectorStore()
	archival := NewArchivalStorage(store, "agent-1", 1, fakeEmbedder{})

	// Two single-word chunks of equal length ("aaa" / "bbb") inserted in one
	// call would previously collide on id since both shared now.UnixNano()
	// and len(chunk).
	text := "aaa bbb"
	n, err := archival.Insert(context.Background(), text, "notes")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, store.byID, 2, "both chunks must be stored under distinct ids")

	var docs []string
	for _, row := range store.byID {
		docs = append(docs, row.meta["document"])
	}
	require.ElementsMatch(t, []string{"aaa", "bbb"}, docs)
}

func TestArchivalSearchReturnsInsertedText(t *testing.T) {
	store := newFakeVectorStore()
	archival := NewArchivalStorage(store, "agent-1", 50, fakeEmbedder{})

	_, err := archival.Insert(context.Background(), "some long note about groceries", "notes")
	require.NoError(t, err)

	hits, err := archival.Search(context.Background(), "groceries", 0, 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	require.True(t, strings.Contains(hits[0].Document, "groceries"))
}

package indexer

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/purego"
	"github.com/nickcecere/memvec/internal/backend/sqlconn"
	"github.com/nickcecere/memvec/internal/embeddings"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

const dims = 4

// mockEmbedder implements embeddings.Service for testing.
type mockEmbedder struct {
	dimensions int
	batchCalls atomic.Int32
	fail       error
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.fail != nil {
		return nil, m.fail
	}
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int {
	return m.dimensions
}

func (m *mockEmbedder) Provider() embeddings.Provider {
	return embeddings.ProviderOllama
}

func (m *mockEmbedder) ModelName() string {
	return "mock"
}

func (m *mockEmbedder) generateEmbedding(text string) []float32 {
	emb := make([]float32, m.dimensions)
	for i := range emb {
		emb[i] = float32(len(text)+i) * 0.1
	}
	return emb
}

var _ embeddings.Service = (*mockEmbedder)(nil)

func setupStore(t *testing.T) *vectorstore.Adapter {
	t.Helper()
	ctx := context.Background()

	conn, err := purego.Open(ctx, filepath.Join(t.TempDir(), "memvec.db"))
	require.NoError(t, err)

	tbl := backend.NewTable("memories")
	require.NoError(t, conn.Migrate(ctx, tbl, sqlconn.SchemaOptions{Dimensions: dims}))

	store, err := vectorstore.New(ctx, conn, vectorstore.Config{Table: tbl, Dimensions: dims},
		vectorstore.WithLogger(log.New(&bytes.Buffer{})))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHash(t *testing.T) {
	h := Hash(Item{Text: "likes tea"})
	assert.True(t, strings.HasPrefix(h, "xxh64:"))
	assert.Len(t, h, len("xxh64:")+16)
	assert.Equal(t, h, Hash(Item{Text: "likes tea"}))
	assert.Equal(t, h, Hash(Item{Text: "likes tea", Metadata: map[string]any{}}))
	assert.NotEqual(t, h, Hash(Item{Text: "likes coffee"}))

	tagged := Hash(Item{Text: "likes tea", Metadata: map[string]any{"user": "u1", "lang": "en"}})
	assert.NotEqual(t, h, tagged)
	assert.Equal(t, tagged, Hash(Item{Text: "likes tea", Metadata: map[string]any{"lang": "en", "user": "u1"}}))
	assert.NotEqual(t, tagged, Hash(Item{Text: "likes tea", Metadata: map[string]any{"user": "u2", "lang": "en"}}))
}

func TestNewPayload(t *testing.T) {
	p := NewPayload(Item{Text: "likes tea", Metadata: map[string]any{"user": "u1", "text": "ignored"}})
	assert.Equal(t, "likes tea", p[TextKey])
	assert.Equal(t, Hash(Item{Text: "likes tea", Metadata: map[string]any{"user": "u1", "text": "ignored"}}), p[HashKey])
	assert.Equal(t, "u1", p["user"])
}

func TestIndex(t *testing.T) {
	store := setupStore(t)
	emb := &mockEmbedder{dimensions: dims}
	idx := New(store, emb, dims)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		reports []Progress
	)
	opts := IndexOptions{
		BatchSize:   2,
		Concurrency: 2,
		OnProgress: func(p Progress) {
			mu.Lock()
			reports = append(reports, p)
			mu.Unlock()
		},
	}

	ids, err := idx.Index(ctx, []Item{
		{ID: "m1", Text: "likes tea", Metadata: map[string]any{"user": "u1"}},
		{Text: "lives in Lisbon"},
		{Text: "plays chess"},
	}, opts)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, "m1", ids[0])
	assert.NotEmpty(t, ids[1])
	assert.NotEqual(t, ids[1], ids[2])
	assert.EqualValues(t, 2, emb.batchCalls.Load())

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "likes tea", got.Payload[TextKey])
	assert.Equal(t, "u1", got.Payload["user"])

	_, total, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	final := idx.Progress()
	assert.Equal(t, 3, final.TotalItems)
	assert.Equal(t, 3, final.EmbeddedItems)
	assert.Equal(t, 3, final.InsertedItems)
	assert.NotEmpty(t, reports)
}

func TestIndexSkipsUnchanged(t *testing.T) {
	store := setupStore(t)
	emb := &mockEmbedder{dimensions: dims}
	idx := New(store, emb, dims)
	ctx := context.Background()

	_, err := idx.Index(ctx, []Item{{ID: "a", Text: "one"}, {ID: "b", Text: "two"}}, DefaultIndexOptions())
	require.NoError(t, err)

	// Plain inserts of existing ids fail.
	_, err = idx.Index(ctx, []Item{{ID: "a", Text: "one"}}, DefaultIndexOptions())
	assert.True(t, vectorstore.IsBackendError(err))

	opts := DefaultIndexOptions()
	opts.SkipUnchanged = true
	_, err = idx.Index(ctx, []Item{
		{ID: "a", Text: "one"},
		{ID: "b", Text: "two, edited"},
		{ID: "c", Text: "three"},
	}, opts)
	require.NoError(t, err)

	p := idx.Progress()
	assert.Equal(t, 1, p.SkippedItems)
	assert.Equal(t, 2, p.InsertedItems)

	got, err := store.Get(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "two, edited", got.Payload[TextKey])
	assert.Contains(t, got.Payload, vectorstore.UpdatedAtKey)

	_, total, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

func TestIndexUpdatesEditedMetadata(t *testing.T) {
	store := setupStore(t)
	emb := &mockEmbedder{dimensions: dims}
	idx := New(store, emb, dims)
	ctx := context.Background()

	opts := DefaultIndexOptions()
	opts.SkipUnchanged = true
	_, err := idx.Index(ctx, []Item{{ID: "a", Text: "one", Metadata: map[string]any{"tag": "old"}}}, opts)
	require.NoError(t, err)

	_, err = idx.Index(ctx, []Item{{ID: "a", Text: "one", Metadata: map[string]any{"tag": "new"}}}, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Progress().SkippedItems)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Payload["tag"])

	_, err = idx.Index(ctx, []Item{{ID: "a", Text: "one", Metadata: map[string]any{"tag": "new"}}}, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Progress().SkippedItems)
}

func TestIndexErrors(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	t.Run("empty text", func(t *testing.T) {
		_, err := New(store, &mockEmbedder{dimensions: dims}, dims).Index(ctx, []Item{{ID: "x"}}, DefaultIndexOptions())
		assert.Error(t, err)
	})

	t.Run("embedder failure", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := New(store, &mockEmbedder{dimensions: dims, fail: boom}, dims).Index(ctx, []Item{{Text: "x"}}, DefaultIndexOptions())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := New(store, &mockEmbedder{dimensions: dims + 1}, dims).Index(ctx, []Item{{Text: "x"}}, DefaultIndexOptions())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection expects 4")
	})

	_, total, err := store.List(ctx, nil, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDefaultIndexOptions(t *testing.T) {
	opts := DefaultIndexOptions()
	assert.Equal(t, 32, opts.BatchSize)
	assert.Equal(t, 4, opts.Concurrency)
	assert.False(t, opts.SkipUnchanged)
}

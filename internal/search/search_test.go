package search

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/purego"
	"github.com/nickcecere/memvec/internal/backend/sqlconn"
	"github.com/nickcecere/memvec/internal/embeddings"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

const dims = 3

// mockEmbedder maps known words to fixed axes.
type mockEmbedder struct {
	fail error
}

var axes = map[string][]float32{
	"tea":    {1, 0, 0},
	"coffee": {0.9, 0.1, 0},
	"chess":  {0, 1, 0},
	"lisbon": {0, 0, 1},
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	return m.generateEmbedding(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.generateEmbedding(text)
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int {
	return dims
}

func (m *mockEmbedder) Provider() embeddings.Provider {
	return embeddings.ProviderOllama
}

func (m *mockEmbedder) ModelName() string {
	return "mock"
}

func (m *mockEmbedder) generateEmbedding(text string) []float32 {
	for word, vec := range axes {
		if strings.Contains(strings.ToLower(text), word) {
			return vec
		}
	}
	return []float32{0.3, 0.3, 0.3}
}

func createTestStore(t *testing.T) *vectorstore.Adapter {
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

	_, err = indexer.New(store, &mockEmbedder{}, dims).Index(ctx, []indexer.Item{
		{ID: "tea", Text: "Likes tea", Metadata: map[string]any{"user": "u1"}},
		{ID: "chess", Text: "Plays chess", Metadata: map[string]any{"user": "u2"}},
		{ID: "lisbon", Text: "Lives in Lisbon", Metadata: map[string]any{"user": "u1"}},
	}, indexer.DefaultIndexOptions())
	require.NoError(t, err)
	return store
}

func TestSearch(t *testing.T) {
	searcher := New(createTestStore(t), &mockEmbedder{}, dims)

	results, err := searcher.Search(context.Background(), "coffee drinker", DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "tea", results[0].ID)
	assert.Equal(t, "Likes tea", results[0].Text)
	assert.Equal(t, "u1", results[0].Metadata["user"])
	assert.NotContains(t, results[0].Metadata, indexer.TextKey)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestSearchWithFilterAndMinScore(t *testing.T) {
	searcher := New(createTestStore(t), &mockEmbedder{}, dims)
	ctx := context.Background()

	results, err := searcher.Search(ctx, "tea", SearchOptions{TopK: 10, Filter: vectorstore.Filter{"user": "u1"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "tea", results[0].ID)
	assert.Equal(t, "lisbon", results[1].ID)

	results, err = searcher.Search(ctx, "tea", SearchOptions{TopK: 10, MinScore: 0.99})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tea", results[0].ID)
}

func TestSearchTopK(t *testing.T) {
	searcher := New(createTestStore(t), &mockEmbedder{}, dims)

	results, err := searcher.Search(context.Background(), "chess", SearchOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chess", results[0].ID)
}

func TestSearchErrors(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := New(store, &mockEmbedder{}, dims).Search(ctx, "", DefaultSearchOptions())
	assert.ErrorIs(t, err, ErrEmptyQuery)

	boom := errors.New("boom")
	_, err = New(store, &mockEmbedder{fail: boom}, dims).Search(ctx, "tea", DefaultSearchOptions())
	assert.ErrorIs(t, err, boom)

	_, err = New(store, &mockEmbedder{}, dims+1).Search(ctx, "tea", DefaultSearchOptions())
	assert.Error(t, err)
}

func TestFromRecord(t *testing.T) {
	rec := vectorstore.Result{ID: "a", Score: 0.5, Payload: vectorstore.Payload{"text": "hi", "k": "v"}}
	r := FromRecord(rec)
	assert.Equal(t, "hi", r.Text)
	assert.Equal(t, vectorstore.Payload{"k": "v"}, r.Metadata)
	// The record is not modified.
	assert.Contains(t, rec.Payload, "text")
}

func TestDefaultSearchOptions(t *testing.T) {
	opts := DefaultSearchOptions()
	assert.Equal(t, 5, opts.TopK)
	assert.Zero(t, opts.MinScore)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))

	result := truncate("hello world this is a long string", 10)
	assert.Len(t, result, 10)
	assert.True(t, strings.HasSuffix(result, "..."))

	assert.Equal(t, "hello", truncate("hello", 5))
}

// Package search answers natural-language queries against a vector store
// collection.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/memvec/internal/embeddings"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Searcher embeds queries and ranks stored records against them.
type Searcher struct {
	store      vectorstore.VectorStore
	embedder   embeddings.Service
	dimensions int
}

// Result is one ranked record.
type Result struct {
	ID       string              `json:"id"`
	Text     string              `json:"text,omitempty"`
	Score    float64             `json:"score"`
	Metadata vectorstore.Payload `json:"metadata"`
}

// SearchOptions configures the search.
type SearchOptions struct {
	// TopK is the maximum number of results to return.
	TopK int

	// MinScore drops results below this similarity.
	MinScore float64

	// Filter restricts results to records whose payload contains every
	// key/value pair.
	Filter vectorstore.Filter
}

// DefaultSearchOptions returns sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK: vectorstore.DefaultSearchLimit,
	}
}

// New creates a new Searcher for a collection of dimensions-long vectors.
func New(st vectorstore.VectorStore, emb embeddings.Service, dimensions int) *Searcher {
	return &Searcher{
		store:      st,
		embedder:   emb,
		dimensions: dimensions,
	}
}

// Search ranks the collection against query. Results keep the store's
// order.
func (s *Searcher) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if err := embeddings.CheckDimensions(queryEmbedding, s.dimensions); err != nil {
		return nil, err
	}

	hits, err := s.store.Search(ctx, queryEmbedding, opts.TopK, opts.Filter)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		if h.Score < opts.MinScore {
			continue
		}
		results = append(results, FromRecord(h))
	}

	log.Debug("Search complete", "results", len(results))
	return results, nil
}

// FromRecord converts a stored record, lifting the indexed text out of the
// metadata.
func FromRecord(r vectorstore.Result) Result {
	meta := make(vectorstore.Payload, len(r.Payload))
	for k, v := range r.Payload {
		meta[k] = v
	}
	text, _ := meta[indexer.TextKey].(string)
	if text != "" {
		delete(meta, indexer.TextKey)
	}
	return Result{
		ID:       r.ID,
		Text:     text,
		Score:    r.Score,
		Metadata: meta,
	}
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

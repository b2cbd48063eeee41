// Package vectorstore defines the contract callers use to store and search
// embedding vectors, and the Adapter that fulfils it over a backend.Conn.
package vectorstore

import (
	"context"
)

// Reserved payload keys written by the adapter. Caller values under the same
// keys are overwritten.
const (
	CreatedAtKey = "created_at"
	UpdatedAtKey = "updated_at"
)

// Defaults for operations that take a limit.
const (
	DefaultSearchLimit = 5
	DefaultListLimit   = 100
)

// Payload is the metadata stored alongside a vector. Values are limited to
// strings, booleans, numbers, nil, and nested maps/slices of those.
type Payload map[string]any

// Filter matches payloads holding every key with an equal value. A nil or
// empty filter matches everything.
type Filter map[string]any

// Result is a record returned by Get, List and Search. Score is only set by
// Search; higher is more similar.
type Result struct {
	ID      string  `json:"id"`
	Payload Payload `json:"payload"`
	Score   float64 `json:"score"`
}

// CollectionInfo describes the collection behind a store.
type CollectionInfo struct {
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Procedure  string `json:"procedure"`
	Metric     string `json:"metric,omitempty"`
	Count      int    `json:"count"`
}

// VectorStore stores, updates, searches and lists embeddings. Implementations
// make one backend round-trip per call.
type VectorStore interface {
	// Insert stores a batch. vectors, ids and payloads are parallel slices;
	// payloads may be nil. Each payload gets a created_at stamp.
	Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []Payload) error

	// Search ranks records by similarity to query, best first.
	Search(ctx context.Context, query []float32, limit int, filters Filter) ([]Result, error)

	// Get returns the record with the given id, or nil when there is none.
	Get(ctx context.Context, id string) (*Result, error)

	// Update replaces the vector and payload of a record and stamps
	// updated_at. Updating a missing id does nothing.
	Update(ctx context.Context, id string, vector []float32, payload Payload) error

	// Delete removes one record. Deleting a missing id does nothing.
	Delete(ctx context.Context, id string) error

	// DeleteCol removes every record of the collection.
	DeleteCol(ctx context.Context) error

	// List returns up to limit records matching filters and the total number
	// of matches.
	List(ctx context.Context, filters Filter, limit int) ([]Result, int, error)

	// ColInfo describes the collection.
	ColInfo(ctx context.Context) (*CollectionInfo, error)

	// ListCols lists the collections known to the backend.
	ListCols(ctx context.Context) ([]string, error)

	Close() error
}

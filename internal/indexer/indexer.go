// Package indexer embeds texts and writes them into a vector store
// collection.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nickcecere/memvec/internal/embeddings"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

// Payload keys written for every indexed text.
const (
	TextKey = "text"
	HashKey = "hash"
)

// Item is one text to store. ID is generated when empty.
type Item struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Indexer embeds items and inserts them into the store.
type Indexer struct {
	store      vectorstore.VectorStore
	embedder   embeddings.Service
	dimensions int

	progress Progress
	mu       sync.Mutex
}

// Progress tracks indexing progress.
type Progress struct {
	TotalItems    int
	EmbeddedItems int
	InsertedItems int
	SkippedItems  int
	StartTime     time.Time
}

// ProgressFunc is called to report progress during indexing.
type ProgressFunc func(Progress)

// IndexOptions configures the indexing process.
type IndexOptions struct {
	// BatchSize is the number of items embedded and inserted together.
	BatchSize int

	// Concurrency is the number of embedding batches in flight.
	Concurrency int

	// SkipUnchanged skips items whose id already holds the same text and
	// metadata, and updates ids whose content changed instead of failing on
	// them.
	SkipUnchanged bool

	// OnProgress is called to report progress.
	OnProgress ProgressFunc
}

// DefaultIndexOptions returns sensible defaults.
func DefaultIndexOptions() IndexOptions {
	return IndexOptions{
		BatchSize:   32,
		Concurrency: 4,
	}
}

// New creates a new Indexer writing dimensions-long embeddings.
func New(st vectorstore.VectorStore, emb embeddings.Service, dimensions int) *Indexer {
	return &Indexer{
		store:      st,
		embedder:   emb,
		dimensions: dimensions,
	}
}

// Hash returns the content hash stored under HashKey. It covers the text and
// the metadata, so editing either one changes it. Nil and empty metadata hash
// the same.
func Hash(item Item) string {
	d := xxhash.New()
	_, _ = d.WriteString(item.Text)
	if len(item.Metadata) > 0 {
		// Map keys are marshaled in sorted order.
		meta, err := json.Marshal(item.Metadata)
		if err != nil {
			meta = fmt.Appendf(nil, "%v", item.Metadata)
		}
		_, _ = d.Write([]byte{0})
		_, _ = d.Write(meta)
	}
	return fmt.Sprintf("xxh64:%016x", d.Sum64())
}

// NewPayload builds the stored payload of an item: its metadata plus the
// text and its hash, which win over metadata keys of the same name.
func NewPayload(item Item) vectorstore.Payload {
	p := make(vectorstore.Payload, len(item.Metadata)+2)
	for k, v := range item.Metadata {
		p[k] = v
	}
	p[TextKey] = item.Text
	p[HashKey] = Hash(item)
	return p
}

// Index stores items and returns their ids in input order. Batches are
// embedded concurrently; each batch is inserted with one call, so a failed
// batch leaves nothing of itself behind but earlier batches stay.
func (idx *Indexer) Index(ctx context.Context, items []Item, opts IndexOptions) ([]string, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultIndexOptions().BatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultIndexOptions().Concurrency
	}

	idx.mu.Lock()
	idx.progress = Progress{TotalItems: len(items), StartTime: time.Now()}
	idx.mu.Unlock()

	ids := make([]string, len(items))
	pending := make([]int, 0, len(items))
	for i, item := range items {
		if item.Text == "" {
			return nil, fmt.Errorf("item %d has no text", i)
		}
		ids[i] = item.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}

		if opts.SkipUnchanged && item.ID != "" {
			unchanged, err := idx.unchanged(ctx, item)
			if err != nil {
				return nil, err
			}
			if unchanged {
				log.Debug("Skipping unchanged item", "id", item.ID)
				idx.update(opts, func(p *Progress) { p.SkippedItems++ })
				continue
			}
		}
		pending = append(pending, i)
	}

	var batches [][]int
	for start := 0; start < len(pending); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(pending))
		batches = append(batches, pending[start:end])
	}

	vectors := make([][][]float32, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for b, batch := range batches {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, itemIdx := range batch {
				texts[i] = items[itemIdx].Text
			}
			embedded, err := idx.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("failed to embed batch %d: %w", b, err)
			}
			if len(embedded) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(embedded), len(texts))
			}
			for _, vec := range embedded {
				if err := embeddings.CheckDimensions(vec, idx.dimensions); err != nil {
					return err
				}
			}
			vectors[b] = embedded
			idx.update(opts, func(p *Progress) { p.EmbeddedItems += len(batch) })
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for b, batch := range batches {
		batchIDs := make([]string, len(batch))
		payloads := make([]vectorstore.Payload, len(batch))
		for i, itemIdx := range batch {
			batchIDs[i] = ids[itemIdx]
			payloads[i] = NewPayload(items[itemIdx])
		}

		if err := idx.write(ctx, vectors[b], batchIDs, payloads, opts.SkipUnchanged); err != nil {
			return nil, fmt.Errorf("failed to insert batch %d: %w", b, err)
		}
		idx.update(opts, func(p *Progress) { p.InsertedItems += len(batch) })
	}

	log.Debug("Indexing complete", "items", len(items), "inserted", len(pending))
	return ids, nil
}

// write inserts a batch. With replace set, ids that already exist are
// updated instead, one by one.
func (idx *Indexer) write(ctx context.Context, vectors [][]float32, ids []string, payloads []vectorstore.Payload, replace bool) error {
	if !replace {
		return idx.store.Insert(ctx, vectors, ids, payloads)
	}

	var (
		newVectors  [][]float32
		newIDs      []string
		newPayloads []vectorstore.Payload
	)
	for i, id := range ids {
		existing, err := idx.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := idx.store.Update(ctx, id, vectors[i], payloads[i]); err != nil {
				return err
			}
			continue
		}
		newVectors = append(newVectors, vectors[i])
		newIDs = append(newIDs, id)
		newPayloads = append(newPayloads, payloads[i])
	}
	if len(newIDs) == 0 {
		return nil
	}
	return idx.store.Insert(ctx, newVectors, newIDs, newPayloads)
}

func (idx *Indexer) unchanged(ctx context.Context, item Item) (bool, error) {
	existing, err := idx.store.Get(ctx, item.ID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	hash, _ := existing.Payload[HashKey].(string)
	return hash == Hash(item), nil
}

func (idx *Indexer) update(opts IndexOptions, f func(*Progress)) {
	idx.mu.Lock()
	f(&idx.progress)
	p := idx.progress
	idx.mu.Unlock()

	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}

// Progress returns a snapshot of the current progress.
func (idx *Indexer) Progress() Progress {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.progress
}

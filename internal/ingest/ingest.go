package ingest

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

// Metadata keys written on every chunk.
const (
	SourceKey    = "source"
	ChunkKey     = "chunk"
	StartLineKey = "start_line"
	EndLineKey   = "end_line"
)

// pruneLimit bounds how many chunks of one source Prune looks at.
const pruneLimit = 100000

// Source is the chunked content of one file.
type Source struct {
	RelPath string
	Items   []indexer.Item
}

// ChunkID returns the record id of a chunk, "relPath#index".
func ChunkID(relPath string, index int) string {
	return relPath + "#" + strconv.Itoa(index)
}

// FileItems reads a file and turns each chunk into an indexer item.
func FileItems(f File, opts ChunkOptions) ([]indexer.Item, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.RelPath, err)
	}

	chunks := Split(string(content), opts)
	items := make([]indexer.Item, len(chunks))
	for i, c := range chunks {
		items[i] = indexer.Item{
			ID:   ChunkID(f.RelPath, c.Index),
			Text: c.Text,
			Metadata: map[string]any{
				SourceKey:    f.RelPath,
				ChunkKey:     c.Index,
				StartLineKey: c.StartLine,
				EndLineKey:   c.EndLine,
			},
		}
	}
	return items, nil
}

// Collect walks a directory and chunks every file it finds. Empty files
// produce no source.
func Collect(walk WalkOptions, chunk ChunkOptions) ([]Source, WalkStats, error) {
	var sources []Source
	stats, err := Walk(walk, func(f File) error {
		items, err := FileItems(f, chunk)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			sources = append(sources, Source{RelPath: f.RelPath, Items: items})
		}
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return sources, stats, nil
}

// Prune deletes the stored chunks of src that it no longer contains, which
// happens when a file shrinks. It returns the number of deleted records.
func Prune(ctx context.Context, st vectorstore.VectorStore, src Source) (int, error) {
	keep := make(map[string]bool, len(src.Items))
	for _, item := range src.Items {
		keep[item.ID] = true
	}

	stored, _, err := st.List(ctx, vectorstore.Filter{SourceKey: src.RelPath}, pruneLimit)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, r := range stored {
		if keep[r.ID] {
			continue
		}
		if err := st.Delete(ctx, r.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

package ingest

import (
	"strings"
	"unicode/utf8"
)

// Chunk is a line range of a file.
type Chunk struct {
	Text      string
	StartLine int // 1-indexed
	EndLine   int // 1-indexed, inclusive
	Index     int
}

// ChunkOptions configures Split.
type ChunkOptions struct {
	// Size is the target chunk size in characters.
	Size int

	// Overlap is how many trailing characters of a chunk, rounded up to
	// whole lines, start the next one.
	Overlap int

	// MinSize merges a shorter final chunk into the previous one.
	MinSize int
}

// DefaultChunkOptions returns sensible defaults for chunking.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{
		Size:    1500,
		Overlap: 200,
		MinSize: 100,
	}
}

func (o ChunkOptions) withDefaults() ChunkOptions {
	d := DefaultChunkOptions()
	if o.Size <= 0 {
		o.Size = d.Size
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.Size {
		o.Overlap = o.Size / 2
	}
	if o.MinSize <= 0 {
		o.MinSize = d.MinSize
	}
	return o
}

// Split breaks content into line-aligned chunks of about opts.Size
// characters. Lines are never split, so one long line makes one long chunk.
func Split(content string, opts ChunkOptions) []Chunk {
	opts = opts.withDefaults()
	content = strings.TrimRight(content, "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := strings.Split(content, "\n")
	var chunks []Chunk

	start := 0 // first line of the current chunk
	size := 0
	for i, line := range lines {
		lineLen := utf8.RuneCountInString(line) + 1

		if size+lineLen > opts.Size && i > start {
			chunks = append(chunks, Chunk{
				Text:      strings.Join(lines[start:i], "\n"),
				StartLine: start + 1,
				EndLine:   i,
				Index:     len(chunks),
			})

			// Step back over whole lines until the overlap is covered
			next, overlap := i, 0
			for next > start+1 && overlap < opts.Overlap {
				next--
				overlap += utf8.RuneCountInString(lines[next]) + 1
			}
			start, size = next, overlap
		}
		size += lineLen
	}

	last := strings.Join(lines[start:], "\n")
	if len(chunks) > 0 && utf8.RuneCountInString(last) < opts.MinSize {
		prev := &chunks[len(chunks)-1]
		prev.Text = strings.Join(lines[prev.StartLine-1:], "\n")
		prev.EndLine = len(lines)
		return chunks
	}

	return append(chunks, Chunk{
		Text:      last,
		StartLine: start + 1,
		EndLine:   len(lines),
		Index:     len(chunks),
	})
}

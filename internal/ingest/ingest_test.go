package ingest

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/purego"
	"github.com/nickcecere/memvec/internal/backend/sqlconn"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func walkPaths(t *testing.T, opts WalkOptions) ([]string, WalkStats) {
	t.Helper()
	var paths []string
	stats, err := Walk(opts, func(f File) error {
		paths = append(paths, f.RelPath)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(paths)
	return paths, stats
}

func TestWalk(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"a.md":              "# notes",
		"b.txt":             "plain text",
		"docs/c.md":         "more notes",
		".hidden.md":        "hidden",
		".gitignore":        "secret.md\n",
		"secret.md":         "ignored by gitignore",
		"node_modules/x.md": "dependency",
		"bin.dat":           "abc\x00def",
		"big.md":            strings.Repeat("x", 200),
		"extra/skip-me.txt": "ignored by pattern",
		"extra/keep-me.txt": "kept",
	})

	opts := WalkOptions{Root: dir, MaxFileSize: 100, IgnorePatterns: []string{"skip-me.txt"}}
	paths, stats := walkPaths(t, opts)
	assert.Equal(t, []string{"a.md", "b.txt", "docs/c.md", "extra/keep-me.txt"}, paths)
	assert.Equal(t, 4, stats.FilesFound)
	assert.Greater(t, stats.FilesSkipped, 0)
	assert.Greater(t, stats.DirsSkipped, 0)

	t.Run("extensions", func(t *testing.T) {
		opts := WalkOptions{Root: dir, MaxFileSize: 100, Extensions: []string{"md"}}
		paths, _ := walkPaths(t, opts)
		assert.Equal(t, []string{"a.md", "docs/c.md"}, paths)
	})

	t.Run("max files", func(t *testing.T) {
		opts := WalkOptions{Root: dir, MaxFileSize: 100, MaxFiles: 2}
		paths, _ := walkPaths(t, opts)
		assert.Len(t, paths, 2)
	})

	t.Run("hidden", func(t *testing.T) {
		opts := WalkOptions{Root: dir, MaxFileSize: 100, IncludeHidden: true, Extensions: []string{".md"}}
		paths, _ := walkPaths(t, opts)
		assert.Contains(t, paths, ".hidden.md")
	})
}

func TestWalkInvalidRoot(t *testing.T) {
	_, err := Walk(WalkOptions{Root: filepath.Join(t.TempDir(), "missing")}, func(File) error { return nil })
	assert.ErrorContains(t, err, "does not exist")

	file := filepath.Join(t.TempDir(), "file.md")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = Walk(WalkOptions{Root: file}, func(File) error { return nil })
	assert.ErrorContains(t, err, "not a directory")
}

func TestIsBinaryContent(t *testing.T) {
	assert.False(t, isBinaryContent(nil))
	assert.False(t, isBinaryContent([]byte("hello\n\tworld\r\n")))
	assert.True(t, isBinaryContent([]byte("a\x00b")))
	assert.True(t, isBinaryContent([]byte{1, 2, 3, 'a'}))
}

// tenLines is ten lines of ten characters each.
var tenLines = strings.Repeat("0123456789\n", 10)

func TestSplit(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, Split("", DefaultChunkOptions()))
		assert.Nil(t, Split(" \n\n", DefaultChunkOptions()))
	})

	t.Run("single chunk", func(t *testing.T) {
		chunks := Split("a\nb\nc\n", DefaultChunkOptions())
		require.Len(t, chunks, 1)
		assert.Equal(t, Chunk{Text: "a\nb\nc", StartLine: 1, EndLine: 3, Index: 0}, chunks[0])
	})

	t.Run("no overlap", func(t *testing.T) {
		chunks := Split(tenLines, ChunkOptions{Size: 35, Overlap: 0, MinSize: 1})
		require.Len(t, chunks, 4)
		lines := [][2]int{{1, 3}, {4, 6}, {7, 9}, {10, 10}}
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, lines[i][0], c.StartLine)
			assert.Equal(t, lines[i][1], c.EndLine)
		}
		assert.Equal(t, "0123456789\n0123456789\n0123456789", chunks[0].Text)
	})

	t.Run("overlap", func(t *testing.T) {
		chunks := Split(tenLines, ChunkOptions{Size: 35, Overlap: 11, MinSize: 1})
		require.Len(t, chunks, 5)
		for i := 1; i < len(chunks); i++ {
			assert.Equal(t, chunks[i-1].EndLine, chunks[i].StartLine)
		}
		assert.Equal(t, 10, chunks[len(chunks)-1].EndLine)
	})

	t.Run("short tail merges", func(t *testing.T) {
		chunks := Split(tenLines, ChunkOptions{Size: 35, Overlap: 0, MinSize: 15})
		require.Len(t, chunks, 3)
		assert.Equal(t, 7, chunks[2].StartLine)
		assert.Equal(t, 10, chunks[2].EndLine)
		assert.Equal(t, 4, strings.Count(chunks[2].Text, "0123456789"))
	})

	t.Run("long line stays whole", func(t *testing.T) {
		long := strings.Repeat("y", 100)
		chunks := Split("a\n"+long+"\nb", ChunkOptions{Size: 10, MinSize: 1})
		require.NotEmpty(t, chunks)
		found := false
		for _, c := range chunks {
			if strings.Contains(c.Text, long) {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestCollect(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"notes/tea.md": "green tea\noolong",
		"empty.md":     "",
	})

	sources, stats, err := Collect(WalkOptions{Root: dir}, DefaultChunkOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesFound)
	require.Len(t, sources, 1)

	src := sources[0]
	assert.Equal(t, "notes/tea.md", src.RelPath)
	require.Len(t, src.Items, 1)
	item := src.Items[0]
	assert.Equal(t, "notes/tea.md#0", item.ID)
	assert.Equal(t, "green tea\noolong", item.Text)
	assert.Equal(t, map[string]any{
		SourceKey:    "notes/tea.md",
		ChunkKey:     0,
		StartLineKey: 1,
		EndLineKey:   2,
	}, item.Metadata)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	conn, err := purego.Open(ctx, filepath.Join(t.TempDir(), "memvec.db"))
	require.NoError(t, err)
	tbl := backend.NewTable("memories")
	require.NoError(t, conn.Migrate(ctx, tbl, sqlconn.SchemaOptions{Dimensions: 3}))
	st, err := vectorstore.New(ctx, conn, vectorstore.Config{Table: tbl, Dimensions: 3},
		vectorstore.WithLogger(log.New(&bytes.Buffer{})))
	require.NoError(t, err)
	defer st.Close()

	ids := []string{ChunkID("a.md", 0), ChunkID("a.md", 1), ChunkID("a.md", 2), ChunkID("b.md", 0)}
	vectors := [][]float32{{1, 0, 0}, {1, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	payloads := []vectorstore.Payload{
		{SourceKey: "a.md"}, {SourceKey: "a.md"}, {SourceKey: "a.md"}, {SourceKey: "b.md"},
	}
	require.NoError(t, st.Insert(ctx, vectors, ids, payloads))

	src := Source{RelPath: "a.md", Items: []indexer.Item{{ID: ChunkID("a.md", 0), Text: "x"}}}
	deleted, err := Prune(ctx, st, src)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, total, err := st.List(ctx, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	got, err := st.Get(ctx, ChunkID("b.md", 0))
	require.NoError(t, err)
	assert.NotNil(t, got)
}

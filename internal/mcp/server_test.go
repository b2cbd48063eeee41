package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
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
	"github.com/nickcecere/memvec/internal/vectorstore"
)

const dims = 3

// mockEmbedder puts texts mentioning tea on one axis and everything else
// on another.
type mockEmbedder struct{}

func (mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return vec(text), nil
}

func (mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return vec(text), nil
}

func (mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vec(t)
	}
	return out, nil
}

func (mockEmbedder) Dimensions() int               { return dims }
func (mockEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (mockEmbedder) ModelName() string             { return "mock" }

func vec(text string) []float32 {
	if strings.Contains(text, "tea") {
		return []float32{1, 0, 0}
	}
	return []float32{0, 1, 0}
}

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

// run feeds requests to a fresh server and returns the decoded responses.
func run(t *testing.T, store vectorstore.VectorStore, requests ...string) []Response {
	t.Helper()
	var out bytes.Buffer
	srv := NewServer(store, mockEmbedder{}, dims, strings.NewReader(strings.Join(requests, "\n")+"\n"), &out)
	require.NoError(t, srv.Run(context.Background()))

	var responses []Response
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func call(id int, tool string, args map[string]any) string {
	data, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})
	return string(data)
}

// toolText extracts the text and error flag of a tools/call response.
func toolText(t *testing.T, resp Response) (string, bool) {
	t.Helper()
	require.Nil(t, resp.Error)
	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result CallToolResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.Content, 1)
	return result.Content[0].Text, result.IsError
}

func TestHandshake(t *testing.T) {
	responses := run(t, setupStore(t),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test"}}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	)
	require.Len(t, responses, 3)

	data, _ := json.Marshal(responses[0].Result)
	var initResult InitializeResult
	require.NoError(t, json.Unmarshal(data, &initResult))
	assert.Equal(t, MCPVersion, initResult.ProtocolVersion)
	assert.Equal(t, ServerName, initResult.ServerInfo.Name)
	assert.Contains(t, initResult.Capabilities, "tools")
	assert.JSONEq(t, "1", string(responses[0].ID))

	data, _ = json.Marshal(responses[1].Result)
	var tools ListToolsResult
	require.NoError(t, json.Unmarshal(data, &tools))
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"memvec_search", "memvec_get", "memvec_list", "memvec_insert", "memvec_delete"}, names)
}

func TestProtocolErrors(t *testing.T) {
	responses := run(t, setupStore(t),
		`not json`,
		`{"jsonrpc":"2.0","id":1,"method":"nope"}`,
		`{"jsonrpc":"1.0","id":2,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":"bad"}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope"}}`,
	)
	require.Len(t, responses, 5)

	assert.Equal(t, ErrorCodeParse, responses[0].Error.Code)
	assert.Equal(t, ErrorCodeMethodNotFound, responses[1].Error.Code)
	assert.Equal(t, ErrorCodeInvalidRequest, responses[2].Error.Code)
	assert.Equal(t, ErrorCodeInvalidParams, responses[3].Error.Code)

	text, isError := toolText(t, responses[4])
	assert.True(t, isError)
	assert.Contains(t, text, "Unknown tool")
}

func TestTools(t *testing.T) {
	store := setupStore(t)

	responses := run(t, store,
		call(1, "memvec_insert", map[string]any{"id": "m1", "text": "likes green tea", "metadata": map[string]any{"user": "u1"}}),
		call(2, "memvec_insert", map[string]any{"text": "plays chess", "metadata": map[string]any{"user": "u2"}}),
		call(3, "memvec_search", map[string]any{"query": "tea please", "limit": 1}),
		call(4, "memvec_get", map[string]any{"id": "m1"}),
		call(5, "memvec_list", map[string]any{"filter": map[string]any{"user": "u2"}}),
		call(6, "memvec_delete", map[string]any{"id": "m1"}),
		call(7, "memvec_get", map[string]any{"id": "m1"}),
		call(8, "memvec_search", map[string]any{"query": "tea", "filter": map[string]any{"user": "nobody"}}),
	)
	require.Len(t, responses, 8)

	text, isError := toolText(t, responses[0])
	assert.False(t, isError)
	assert.Equal(t, "Stored memory m1.", text)

	text, _ = toolText(t, responses[1])
	assert.True(t, strings.HasPrefix(text, "Stored memory "))

	text, _ = toolText(t, responses[2])
	assert.Contains(t, text, "Found 1 results")
	assert.Contains(t, text, "[1] m1 - 100.0% match")
	assert.Contains(t, text, "likes green tea")

	text, _ = toolText(t, responses[3])
	assert.Contains(t, text, "likes green tea")
	assert.Contains(t, text, `"user":"u1"`)

	text, _ = toolText(t, responses[4])
	assert.Contains(t, text, "Showing 1 of 1 records")
	assert.Contains(t, text, "plays chess")

	text, _ = toolText(t, responses[5])
	assert.Equal(t, "Deleted m1.", text)

	text, _ = toolText(t, responses[6])
	assert.Equal(t, "No record with id m1.", text)

	text, _ = toolText(t, responses[7])
	assert.Equal(t, "No results found.", text)
}

func TestToolArgumentErrors(t *testing.T) {
	responses := run(t, setupStore(t),
		call(1, "memvec_search", map[string]any{}),
		call(2, "memvec_get", map[string]any{}),
		call(3, "memvec_insert", map[string]any{"text": "x", "metadata": "nope"}),
		call(4, "memvec_list", map[string]any{"filter": []any{1}}),
		call(5, "memvec_delete", map[string]any{}),
	)
	require.Len(t, responses, 5)
	for _, resp := range responses {
		text, isError := toolText(t, resp)
		assert.True(t, isError, text)
		assert.True(t, strings.HasPrefix(text, "Error:"), text)
	}
}

func TestIntArg(t *testing.T) {
	assert.Equal(t, 3, intArg(map[string]any{"n": float64(3)}, "n", 1))
	assert.Equal(t, 7, intArg(map[string]any{"n": "7"}, "n", 1))
	assert.Equal(t, 1, intArg(map[string]any{"n": "x"}, "n", 1))
	assert.Equal(t, 1, intArg(map[string]any{}, "n", 1))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, release := blockingReader()
	defer release()
	srv := NewServer(setupStore(t), mockEmbedder{}, dims, r, &bytes.Buffer{})
	assert.ErrorIs(t, srv.Run(ctx), context.Canceled)
}

// blockingReader never returns data until closed.
func blockingReader() (*blockReader, func()) {
	r := &blockReader{done: make(chan struct{})}
	return r, func() { close(r.done) }
}

type blockReader struct{ done chan struct{} }

func (r *blockReader) Read(p []byte) (int, error) {
	<-r.done
	return 0, io.EOF
}

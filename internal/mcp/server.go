package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/memvec/internal/embeddings"
	"github.com/nickcecere/memvec/internal/indexer"
	"github.com/nickcecere/memvec/internal/search"
	"github.com/nickcecere/memvec/internal/vectorstore"
)

const (
	// MCPVersion is the protocol version we support.
	MCPVersion = "2024-11-05"

	// ServerName is the name of this MCP server.
	ServerName = "memvec"
)

// ServerVersion is reported to clients; the CLI sets it from the build.
var ServerVersion = "dev"

// maxLineBytes bounds one JSON-RPC message.
const maxLineBytes = 16 << 20

// Server is the MCP server for one memvec collection.
type Server struct {
	store    vectorstore.VectorStore
	searcher *search.Searcher
	indexer  *indexer.Indexer

	reader io.Reader
	writer io.Writer
	mu     sync.Mutex

	initialized bool
}

// NewServer creates a new MCP server reading requests from in and writing
// responses to out.
func NewServer(st vectorstore.VectorStore, emb embeddings.Service, dimensions int, in io.Reader, out io.Writer) *Server {
	return &Server{
		store:    st,
		searcher: search.New(st, emb, dimensions),
		indexer:  indexer.New(st, emb, dimensions),
		reader:   in,
		writer:   out,
	}
}

// Run processes newline-delimited requests until EOF or until the context
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info("MCP server starting")

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.reader)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("failed to read request: %w", err)
			}
			log.Info("MCP server received EOF, shutting down")
			return nil
		case line := <-lines:
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			var req Request
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				s.sendError(nullID, ErrorCodeParse, "Parse error", err.Error())
				continue
			}
			s.handleRequest(ctx, req)
		}
	}
}

// handleRequest processes a single MCP request.
func (s *Server) handleRequest(ctx context.Context, req Request) {
	log.Debug("Received request", "method", req.Method, "id", string(req.ID))

	if req.JSONRPC != "2.0" {
		s.sendError(req.ID, ErrorCodeInvalidRequest, "Invalid request", "jsonrpc must be \"2.0\"")
		return
	}

	var result any
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		s.initialized = true
		log.Info("MCP server initialized")
		return
	case "tools/list":
		result = &ListToolsResult{Tools: tools}
	case "tools/call":
		result, err = s.handleCallTool(ctx, req.Params)
	case "ping":
		result = map[string]any{}
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			return
		}
		s.sendError(req.ID, ErrorCodeMethodNotFound, "Method not found", req.Method)
		return
	}

	var invalid *invalidParamsError
	switch {
	case errors.As(err, &invalid):
		s.sendError(req.ID, ErrorCodeInvalidParams, "Invalid params", err.Error())
	case err != nil:
		s.sendError(req.ID, ErrorCodeInternal, "Internal error", err.Error())
	default:
		s.sendResult(req.ID, result)
	}
}

type invalidParamsError struct{ err error }

func (e *invalidParamsError) Error() string { return e.err.Error() }
func (e *invalidParamsError) Unwrap() error { return e.err }

// handleInitialize handles the initialize request.
func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &invalidParamsError{err}
		}
	}

	log.Info("Initializing MCP server",
		"clientName", p.ClientInfo.Name,
		"clientVersion", p.ClientInfo.Version,
		"protocolVersion", p.ProtocolVersion,
	)

	return &InitializeResult{
		ProtocolVersion: MCPVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      Implementation{Name: ServerName, Version: ServerVersion},
	}, nil
}

var filterSchema = mapArg("Only match records whose metadata has every one of these key/value pairs")

// tools lists what the server offers.
var tools = []Tool{
	{
		Name:        "memvec_search",
		Description: "Semantic search over stored memories. Returns the closest records with their similarity.",
		InputSchema: object(map[string]*Schema{
			"query":  stringArg("What to look for, in natural language"),
			"limit":  numberArg("Maximum number of results", vectorstore.DefaultSearchLimit),
			"filter": filterSchema,
		}, "query"),
	},
	{
		Name:        "memvec_get",
		Description: "Fetch one memory by id.",
		InputSchema: object(map[string]*Schema{"id": stringArg("Record id")}, "id"),
	},
	{
		Name:        "memvec_list",
		Description: "List memories, optionally filtered by metadata.",
		InputSchema: object(map[string]*Schema{
			"limit":  numberArg("Maximum number of records", vectorstore.DefaultListLimit),
			"filter": filterSchema,
		}),
	},
	{
		Name:        "memvec_insert",
		Description: "Store a new memory. The text is embedded; metadata is kept alongside it.",
		InputSchema: object(map[string]*Schema{
			"text":     stringArg("The memory text"),
			"id":       stringArg("Record id (generated when omitted)"),
			"metadata": mapArg("Extra key/value pairs"),
		}, "text"),
	},
	{
		Name:        "memvec_delete",
		Description: "Delete one memory by id. Deleting a missing id succeeds.",
		InputSchema: object(map[string]*Schema{"id": stringArg("Record id")}, "id"),
	},
}

// handleCallTool executes a tool and returns the result.
func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &invalidParamsError{err}
	}

	log.Debug("Calling tool", "name", p.Name, "arguments", p.Arguments)

	var resultText string
	var isError bool

	switch p.Name {
	case "memvec_search":
		resultText, isError = s.toolSearch(ctx, p.Arguments)
	case "memvec_get":
		resultText, isError = s.toolGet(ctx, p.Arguments)
	case "memvec_list":
		resultText, isError = s.toolList(ctx, p.Arguments)
	case "memvec_insert":
		resultText, isError = s.toolInsert(ctx, p.Arguments)
	case "memvec_delete":
		resultText, isError = s.toolDelete(ctx, p.Arguments)
	default:
		return textResult(fmt.Sprintf("Unknown tool: %s", p.Name), true), nil
	}

	return textResult(resultText, isError), nil
}

func (s *Server) toolSearch(ctx context.Context, args map[string]any) (string, bool) {
	query, _ := args["query"].(string)
	if query == "" {
		return "Error: query is required", true
	}
	filter, err := filterArg(args)
	if err != nil {
		return "Error: " + err.Error(), true
	}

	opts := search.DefaultSearchOptions()
	opts.TopK = intArg(args, "limit", opts.TopK)
	opts.Filter = filter

	results, err := s.searcher.Search(ctx, query, opts)
	if err != nil {
		return fmt.Sprintf("Error: search failed: %v", err), true
	}
	if len(results) == 0 {
		return "No results found.", false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s - %.1f%% match\n", i+1, r.ID, r.Score*100)
		writeRecord(&sb, r.Text, r.Metadata)
	}
	return sb.String(), false
}

func (s *Server) toolGet(ctx context.Context, args map[string]any) (string, bool) {
	id, _ := args["id"].(string)
	if id == "" {
		return "Error: id is required", true
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return fmt.Sprintf("Error: get failed: %v", err), true
	}
	if rec == nil {
		return fmt.Sprintf("No record with id %s.", id), false
	}

	r := search.FromRecord(*rec)
	var sb strings.Builder
	sb.WriteString(r.ID + "\n")
	writeRecord(&sb, r.Text, r.Metadata)
	return sb.String(), false
}

func (s *Server) toolList(ctx context.Context, args map[string]any) (string, bool) {
	filter, err := filterArg(args)
	if err != nil {
		return "Error: " + err.Error(), true
	}

	records, total, err := s.store.List(ctx, filter, intArg(args, "limit", vectorstore.DefaultListLimit))
	if err != nil {
		return fmt.Sprintf("Error: list failed: %v", err), true
	}
	if total == 0 {
		return "No records found.", false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Showing %d of %d records:\n\n", len(records), total)
	for i, rec := range records {
		r := search.FromRecord(rec)
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, r.ID)
		writeRecord(&sb, r.Text, r.Metadata)
	}
	return sb.String(), false
}

func (s *Server) toolInsert(ctx context.Context, args map[string]any) (string, bool) {
	text, _ := args["text"].(string)
	if text == "" {
		return "Error: text is required", true
	}
	id, _ := args["id"].(string)

	var metadata map[string]any
	if raw, ok := args["metadata"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return "Error: metadata must be an object", true
		}
		metadata = m
	}

	ids, err := s.indexer.Index(ctx, []indexer.Item{{ID: id, Text: text, Metadata: metadata}}, indexer.DefaultIndexOptions())
	if err != nil {
		return fmt.Sprintf("Error: insert failed: %v", err), true
	}
	return fmt.Sprintf("Stored memory %s.", ids[0]), false
}

func (s *Server) toolDelete(ctx context.Context, args map[string]any) (string, bool) {
	id, _ := args["id"].(string)
	if id == "" {
		return "Error: id is required", true
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Sprintf("Error: delete failed: %v", err), true
	}
	return fmt.Sprintf("Deleted %s.", id), false
}

// writeRecord renders text (truncated) and metadata under a result header.
func writeRecord(sb *strings.Builder, text string, metadata map[string]any) {
	if text != "" {
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err == nil {
			sb.WriteString("metadata: ")
			sb.Write(data)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
}

func filterArg(args map[string]any) (vectorstore.Filter, error) {
	raw, ok := args["filter"]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("filter must be an object")
	}
	return vectorstore.Filter(m), nil
}

// intArg reads a numeric argument that clients may send as a number or a
// string.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

// sendResult sends a successful response.
func (s *Server) sendResult(id json.RawMessage, result any) {
	s.send(resultResponse(id, result))
}

// sendError sends an error response.
func (s *Server) sendError(id json.RawMessage, code ErrorCode, message, data string) {
	s.send(errorResponse(id, code, message, data))
}

// send writes one response line.
func (s *Server) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("Failed to marshal response", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, string(data))
}

// Package rest implements backend.Conn as a client of the HTTP surface
// served by `memvec serve`.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/memvec/internal/backend"
)

// Name is the registry name of this backend.
const Name = "rest"

// DefaultTimeout bounds one request when Settings.Timeout is zero.
const DefaultTimeout = 30 * time.Second

func init() {
	backend.Register(Name, func(ctx context.Context, s backend.Settings) (backend.Conn, error) {
		return Open(ctx, s)
	})
}

// Compile-time interface check.
var _ backend.Conn = (*Conn)(nil)

// Conn talks to a memvec server.
type Conn struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
}

// Open checks that the server at s.URL is reachable and returns a client
// for it.
func Open(ctx context.Context, s backend.Settings) (*Conn, error) {
	if s.URL == "" {
		return nil, errors.New("rest backend requires a URL")
	}
	base, err := url.Parse(strings.TrimSuffix(s.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", s.URL)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Conn{
		baseURL: base,
		apiKey:  s.APIKey,
		client:  &http.Client{Timeout: timeout},
	}

	if err := c.do(ctx, http.MethodGet, []string{"health"}, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", base.Redacted(), err)
	}

	log.Debug("Connected to memvec server", "url", base.Redacted())
	return c, nil
}

// Close releases idle connections.
func (c *Conn) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Insert posts all rows in one request.
func (c *Conn) Insert(ctx context.Context, t backend.Table, rows []backend.Row) error {
	if len(rows) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, []string{"rest", "v1", t.Name}, TableParams(t), rows, nil)
}

// Update replaces one row.
func (c *Conn) Update(ctx context.Context, t backend.Table, id string, row backend.Row) (int64, error) {
	var resp UpdateResponse
	if err := c.do(ctx, http.MethodPatch, []string{"rest", "v1", t.Name, "record"}, RecordParams(t, id), row, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// Delete removes one row.
func (c *Conn) Delete(ctx context.Context, t backend.Table, id string) error {
	return c.do(ctx, http.MethodDelete, []string{"rest", "v1", t.Name, "record"}, RecordParams(t, id), nil, nil)
}

// DeleteAll removes every row.
func (c *Conn) DeleteAll(ctx context.Context, t backend.Table) error {
	return c.do(ctx, http.MethodDelete, []string{"rest", "v1", t.Name, "all"}, TableParams(t), nil, nil)
}

// Select runs a query on the server.
func (c *Conn) Select(ctx context.Context, t backend.Table, q backend.Query) ([]backend.Row, int, error) {
	var resp QueryResponse
	if err := c.do(ctx, http.MethodPost, []string{"rest", "v1", t.Name, "query"}, TableParams(t), q, &resp); err != nil {
		return nil, 0, err
	}
	return resp.Rows, resp.Total, nil
}

// Call invokes the ranking procedure fn at /rpc/{fn}.
func (c *Conn) Call(ctx context.Context, fn string, args backend.MatchArgs) ([]backend.Match, error) {
	if args.Filter == nil {
		args.Filter = map[string]any{}
	}
	matches := []backend.Match{}
	if err := c.do(ctx, http.MethodPost, []string{"rpc", fn}, nil, args, &matches); err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []backend.Match{}
	}
	return matches, nil
}

// Describe fetches table statistics.
func (c *Conn) Describe(ctx context.Context, t backend.Table) (*backend.TableInfo, error) {
	var info backend.TableInfo
	if err := c.do(ctx, http.MethodGet, []string{"rest", "v1", t.Name, "info"}, TableParams(t), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Tables lists the collections the server knows.
func (c *Conn) Tables(ctx context.Context) ([]string, error) {
	var resp TablesResponse
	if err := c.do(ctx, http.MethodGet, []string{"rest", "v1", ""}, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// do sends one request. Path segments are escaped individually, in is sent
// as JSON when non-nil and a 2xx body is decoded into out when non-nil.
func (c *Conn) do(ctx context.Context, method string, segments []string, query url.Values, in, out any) error {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := *c.baseURL
	u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + "/" + strings.Join(segments, "/")
	u.RawPath = strings.TrimSuffix(c.baseURL.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		var apiErr ErrorResponse
		if json.Unmarshal(raw, &apiErr) != nil {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return apiErr.Err(resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

package vectorstore

import (
	"context"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/oops"

	"github.com/nickcecere/memvec/internal/backend"
)

// Compile-time interface check.
var _ VectorStore = (*Adapter)(nil)

// Adapter implements VectorStore over a backend.Conn. It holds no locks and
// caches nothing; concurrent use is as safe as the backend makes it.
type Adapter struct {
	conn   backend.Conn
	cfg    Config
	logger *log.Logger
	now    func() time.Time

	skipBootstrap bool
}

// New returns an Adapter that owns conn. It probes the collection before
// returning; when the probe fails conn is closed and a schema error is
// returned, so a non-nil Adapter is always ready for use.
func New(ctx context.Context, conn backend.Conn, cfg Config, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		conn:   conn,
		cfg:    cfg.withDefaults(),
		logger: log.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("table", a.cfg.Table.Name)

	if err := a.cfg.Table.Validate(); err != nil {
		_ = conn.Close()
		return nil, oops.Code(CodeConfigInvalid).Wrapf(err, "invalid collection table")
	}
	if a.cfg.Dimensions <= 0 {
		_ = conn.Close()
		return nil, oops.Code(CodeConfigInvalid).Errorf("dimensions must be positive, got %d", a.cfg.Dimensions)
	}

	if !a.skipBootstrap {
		if err := a.bootstrap(ctx); err != nil {
			a.logger.Error("Vector store initialization failed", "error", err)
			_ = conn.Close()
			return nil, err
		}
	}

	return a, nil
}

// Config returns the effective configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

// Close closes the backend connection.
func (a *Adapter) Close() error {
	return a.conn.Close()
}

// fail logs a backend error and wraps it with the operation's code.
func (a *Adapter) fail(op string, err error, kv ...any) error {
	a.logger.Error("Vector store operation failed", append([]any{"op", op, "error", err}, kv...)...)
	return oops.Code(backendFailure(op)).
		With("table", a.cfg.Table.Name).
		With(kv...).
		Wrapf(err, "%s failed", op)
}

// Insert stores a batch of records in one backend write.
func (a *Adapter) Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []Payload) error {
	if len(vectors) != len(ids) || (payloads != nil && len(payloads) != len(ids)) {
		return invalidInput("insert: %d vectors, %d ids and %d payloads", len(vectors), len(ids), len(payloads))
	}

	now := a.now()
	rows := make([]backend.Row, len(ids))
	for i, id := range ids {
		var payload Payload
		if payloads != nil {
			payload = payloads[i]
		}
		if err := payload.Validate(); err != nil {
			return invalidInput("insert %s: %v", id, err)
		}
		rows[i] = backend.Row{
			ID:        id,
			Embedding: vectors[i],
			Metadata:  stamp(payload, CreatedAtKey, now),
		}
	}

	if err := a.conn.Insert(ctx, a.cfg.Table, rows); err != nil {
		return a.fail("insert", err, "count", len(rows))
	}
	return nil
}

// Search delegates ranking to the backend procedure and returns its matches
// in order, with their scores untouched.
func (a *Adapter) Search(ctx context.Context, query []float32, limit int, filters Filter) ([]Result, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if filters == nil {
		filters = Filter{}
	}

	matches, err := a.conn.Call(ctx, a.cfg.Procedure, backend.MatchArgs{
		QueryEmbedding: query,
		MatchCount:     limit,
		Filter:         filters,
	})
	if err != nil {
		return nil, a.fail("search", err, "limit", limit)
	}

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		results = append(results, Result{
			ID:      m.ID,
			Payload: toPayload(m.Metadata),
			Score:   m.Similarity,
		})
	}
	return results, nil
}

// Get returns the record with the given id, or nil if there is none.
func (a *Adapter) Get(ctx context.Context, id string) (*Result, error) {
	q := backend.ByID(id)
	q.Limit = 1
	rows, _, err := a.conn.Select(ctx, a.cfg.Table, q)
	if err != nil {
		return nil, a.fail("get", err, "id", id)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &Result{ID: rows[0].ID, Payload: toPayload(rows[0].Metadata)}, nil
}

// Update replaces vector and payload of id wholesale. A missing id is left
// alone without error.
func (a *Adapter) Update(ctx context.Context, id string, vector []float32, payload Payload) error {
	if err := payload.Validate(); err != nil {
		return invalidInput("update %s: %v", id, err)
	}

	n, err := a.conn.Update(ctx, a.cfg.Table, id, backend.Row{
		ID:        id,
		Embedding: vector,
		Metadata:  stamp(payload, UpdatedAtKey, a.now()),
	})
	if err != nil {
		return a.fail("update", err, "id", id)
	}
	if n == 0 {
		a.logger.Debug("Update matched no record", "id", id)
	}
	return nil
}

// Delete removes one record.
func (a *Adapter) Delete(ctx context.Context, id string) error {
	if err := a.conn.Delete(ctx, a.cfg.Table, id); err != nil {
		return a.fail("delete", err, "id", id)
	}
	return nil
}

// DeleteCol removes every record in the collection. The table itself is
// kept, so every adapter sharing it sees an empty collection afterwards.
func (a *Adapter) DeleteCol(ctx context.Context) error {
	if err := a.conn.DeleteAll(ctx, a.cfg.Table); err != nil {
		return a.fail("delete_col", err)
	}
	return nil
}

// List returns up to limit matching records plus the total match count.
func (a *Adapter) List(ctx context.Context, filters Filter, limit int) ([]Result, int, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, total, err := a.conn.Select(ctx, a.cfg.Table, backend.Query{Filter: filters, Limit: limit})
	if err != nil {
		return nil, 0, a.fail("list", err, "limit", limit)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{ID: row.ID, Payload: toPayload(row.Metadata)})
	}
	return results, total, nil
}

// ColInfo describes the collection.
func (a *Adapter) ColInfo(ctx context.Context) (*CollectionInfo, error) {
	info, err := a.conn.Describe(ctx, a.cfg.Table)
	if err != nil {
		return nil, a.fail("col_info", err)
	}

	procedure := info.Procedure
	if procedure == "" || slices.Contains(info.Procedures, a.cfg.Procedure) {
		procedure = a.cfg.Procedure
	}
	return &CollectionInfo{
		Name:       info.Name,
		Dimensions: a.cfg.Dimensions,
		Procedure:  procedure,
		Metric:     info.Metric,
		Count:      info.RowCount,
	}, nil
}

// ListCols lists the collections known to the backend.
func (a *Adapter) ListCols(ctx context.Context) ([]string, error) {
	tables, err := a.conn.Tables(ctx)
	if err != nil {
		return nil, a.fail("list_cols", err)
	}
	return tables, nil
}

func toPayload(m map[string]any) Payload {
	if m == nil {
		return Payload{}
	}
	return Payload(m)
}

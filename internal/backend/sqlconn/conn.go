// Package sqlconn implements backend.Conn on top of a SQLite database that
// provides the vec_length and vec_distance_* functions and the JSON1
// functions. The driver-specific packages only open the database.
package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/memvec/internal/backend"
)

// Compile-time interface check.
var _ backend.Conn = (*Conn)(nil)

// Conn implements backend.Conn over database/sql.
type Conn struct {
	db *sql.DB
}

// New wraps an open database. Conn takes ownership of db.
func New(db *sql.DB) *Conn {
	return &Conn{db: db}
}

// DB exposes the underlying database handle.
func (c *Conn) DB() *sql.DB {
	return c.db
}

// Close closes the database connection.
func (c *Conn) Close() error {
	return c.db.Close()
}

// Insert writes rows in a single transaction.
func (c *Conn) Insert(ctx context.Context, t backend.Table, rows []backend.Row) error {
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)`,
		t.Name, t.IDColumn, t.EmbeddingColumn, t.MetadataColumn,
	))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		meta, err := encodeMetadata(row.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row.ID, SerializeEmbedding(row.Embedding), meta); err != nil {
			return fmt.Errorf("failed to insert row %d (%s): %w", i, row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}

	log.Debug("Inserted rows", "table", t.Name, "count", len(rows))
	return nil
}

// Update replaces the embedding and metadata of one row.
func (c *Conn) Update(ctx context.Context, t backend.Table, id string, row backend.Row) (int64, error) {
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return 0, err
	}

	meta, err := encodeMetadata(row.Metadata)
	if err != nil {
		return 0, err
	}

	result, err := c.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = ?, %s = ? WHERE %s = ?`,
		t.Name, t.EmbeddingColumn, t.MetadataColumn, t.IDColumn,
	), SerializeEmbedding(row.Embedding), meta, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update row %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// Delete removes one row.
func (c *Conn) Delete(ctx context.Context, t backend.Table, id string) error {
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return err
	}

	_, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, t.Name, t.IDColumn), id)
	if err != nil {
		return fmt.Errorf("failed to delete row %s: %w", id, err)
	}
	return nil
}

// DeleteAll removes every row from the table.
func (c *Conn) DeleteAll(ctx context.Context, t backend.Table) error {
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return err
	}

	result, err := c.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, t.Name))
	if err != nil {
		return fmt.Errorf("failed to delete rows: %w", err)
	}

	n, _ := result.RowsAffected()
	log.Debug("Cleared table", "table", t.Name, "rows", n)
	return nil
}

// Select returns rows by id or metadata containment, in insertion order,
// together with the total match count.
func (c *Conn) Select(ctx context.Context, t backend.Table, q backend.Query) ([]backend.Row, int, error) {
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return nil, 0, err
	}

	where, args, err := containment(t.MetadataColumn, q.Filter)
	if err != nil {
		return nil, 0, err
	}
	if q.ID != nil {
		where += fmt.Sprintf(" AND %s = ?", t.IDColumn)
		args = append(args, *q.ID)
	}

	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	args = append(args, limit)

	// The window count is evaluated before LIMIT, so it is the total number
	// of matches.
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, %s, COUNT(*) OVER ()
		FROM %s
		WHERE %s
		ORDER BY rowid
		LIMIT ?
	`, t.IDColumn, t.MetadataColumn, t.Name, where), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to select rows: %w", err)
	}
	defer rows.Close()

	var (
		out   []backend.Row
		total int
	)
	for rows.Next() {
		var row backend.Row
		var meta string
		if err := rows.Scan(&row.ID, &meta, &total); err != nil {
			return nil, 0, fmt.Errorf("failed to scan row: %w", err)
		}
		if row.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return out, total, nil
}

// procedure is one catalog entry.
type procedure struct {
	table  backend.Table
	metric string
}

func (c *Conn) lookupProcedure(ctx context.Context, fn string) (*procedure, error) {
	var p procedure
	err := c.db.QueryRowContext(ctx, `
		SELECT table_name, id_column, embedding_column, metadata_column, metric
		FROM memvec_procedures WHERE name = ?
	`, fn).Scan(&p.table.Name, &p.table.IDColumn, &p.table.EmbeddingColumn, &p.table.MetadataColumn, &p.metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", backend.ErrUnknownProcedure, fn)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up procedure %s: %w", fn, err)
	}
	if err := p.table.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Call runs the ranking procedure fn: rows matching args.Filter ordered by
// vector distance to args.QueryEmbedding, capped at args.MatchCount.
func (c *Conn) Call(ctx context.Context, fn string, args backend.MatchArgs) ([]backend.Match, error) {
	p, err := c.lookupProcedure(ctx, fn)
	if err != nil {
		return nil, err
	}

	distanceFn := "vec_distance_cosine"
	if p.metric == MetricL2 {
		distanceFn = "vec_distance_l2"
	}

	where, filterArgs, err := containment(p.table.MetadataColumn, args.Filter)
	if err != nil {
		return nil, err
	}

	queryArgs := make([]any, 0, len(filterArgs)+2)
	queryArgs = append(queryArgs, SerializeEmbedding(args.QueryEmbedding))
	queryArgs = append(queryArgs, filterArgs...)
	queryArgs = append(queryArgs, args.MatchCount)

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, distance, metadata FROM (
			SELECT %[1]s AS id, %[5]s(%[2]s, ?) AS distance, %[3]s AS metadata
			FROM %[4]s
			WHERE %[6]s
		)
		ORDER BY distance IS NULL, distance, id
		LIMIT ?
	`, p.table.IDColumn, p.table.EmbeddingColumn, p.table.MetadataColumn, p.table.Name, distanceFn, where), queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to rank rows: %w", err)
	}
	defer rows.Close()

	matches := []backend.Match{}
	for rows.Next() {
		var m backend.Match
		var distance sql.NullFloat64
		var meta string
		if err := rows.Scan(&m.ID, &distance, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if m.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, err
		}
		if distance.Valid {
			m.Similarity = similarity(p.metric, distance.Float64)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", err)
	}

	return matches, nil
}

func similarity(metric string, distance float64) float64 {
	if metric == MetricL2 {
		return 1 / (1 + distance)
	}
	return 1 - distance
}

// Describe counts the rows of t and lists the ranking procedures registered
// for it. Procedure and Metric describe the first one by name.
func (c *Conn) Describe(ctx context.Context, t backend.Table) (*backend.TableInfo, error) {
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	info := &backend.TableInfo{Name: t.Name}
	err := c.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t.Name)).Scan(&info.RowCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT name, metric FROM memvec_procedures WHERE table_name = ? ORDER BY name
	`, t.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up procedures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, metric string
		if err := rows.Scan(&name, &metric); err != nil {
			return nil, fmt.Errorf("failed to scan procedure: %w", err)
		}
		if info.Procedure == "" {
			info.Procedure = name
			info.Metric = metric
		}
		info.Procedures = append(info.Procedures, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate procedures: %w", err)
	}

	return info, nil
}

// Tables lists the collections registered in the procedure catalog.
func (c *Conn) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT table_name FROM memvec_procedures ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

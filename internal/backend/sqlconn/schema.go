package sqlconn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/memvec/internal/backend"
)

// Supported ranking metrics.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// DefaultProcedure is the name under which the ranking procedure is
// registered when none is given.
const DefaultProcedure = "match_vectors"

// ErrProcedureInUse is returned by Migrate when the ranking procedure name
// already ranks a different table.
var ErrProcedureInUse = errors.New("ranking procedure already ranks another table")

// catalogTable maps ranking procedure names to the collection they rank.
const catalogTable = `
CREATE TABLE IF NOT EXISTS memvec_procedures (
	name TEXT PRIMARY KEY,
	table_name TEXT NOT NULL,
	id_column TEXT NOT NULL,
	embedding_column TEXT NOT NULL,
	metadata_column TEXT NOT NULL,
	metric TEXT NOT NULL DEFAULT 'cosine'
)`

// SchemaOptions parameterize the collection schema.
type SchemaOptions struct {
	Dimensions int
	Procedure  string
	Metric     string
}

func (o SchemaOptions) withDefaults() SchemaOptions {
	if o.Procedure == "" {
		o.Procedure = DefaultProcedure
	}
	if o.Metric == "" {
		o.Metric = MetricCosine
	}
	return o
}

func (o SchemaOptions) validate() error {
	if o.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive, got %d", o.Dimensions)
	}
	if !backend.ValidIdentifier(o.Procedure) {
		return fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, o.Procedure)
	}
	if o.Metric != MetricCosine && o.Metric != MetricL2 {
		return fmt.Errorf("unsupported metric: %s", o.Metric)
	}
	return nil
}

// Statements returns the DDL that makes t usable as a collection: the
// records table, the procedure catalog, and the catalog entry for the
// ranking procedure. Registering a procedure name that already ranks another
// table leaves the existing entry alone.
func Statements(t backend.Table, opts SchemaOptions) ([]string, error) {
	t = t.WithDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	records := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	%[2]s TEXT PRIMARY KEY,
	%[3]s BLOB NOT NULL CHECK (vec_length(%[3]s) = %[5]d),
	%[4]s TEXT NOT NULL DEFAULT '{}' CHECK (json_valid(%[4]s))
)`, t.Name, t.IDColumn, t.EmbeddingColumn, t.MetadataColumn, opts.Dimensions)

	register := fmt.Sprintf(`
INSERT INTO memvec_procedures (name, table_name, id_column, embedding_column, metadata_column, metric)
VALUES ('%s', '%s', '%s', '%s', '%s', '%s')
ON CONFLICT (name) DO UPDATE SET
	id_column = excluded.id_column,
	embedding_column = excluded.embedding_column,
	metadata_column = excluded.metadata_column,
	metric = excluded.metric
WHERE table_name = excluded.table_name`,
		opts.Procedure, t.Name, t.IDColumn, t.EmbeddingColumn, t.MetadataColumn, opts.Metric)

	return []string{
		strings.TrimSpace(records),
		strings.TrimSpace(catalogTable),
		strings.TrimSpace(register),
	}, nil
}

// Script renders Statements as a single SQL script.
func Script(t backend.Table, opts SchemaOptions) (string, error) {
	stmts, err := Statements(t, opts)
	if err != nil {
		return "", err
	}
	return strings.Join(stmts, ";\n\n") + ";\n", nil
}

// Migrate applies the collection schema in one transaction. It fails with
// ErrProcedureInUse, applying nothing, when the procedure name is taken by
// another table.
func (c *Conn) Migrate(ctx context.Context, t backend.Table, opts SchemaOptions) error {
	stmts, err := Statements(t, opts)
	if err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	log.Debug("Applying collection schema", "table", t.Name, "dimensions", opts.Dimensions)

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	name := opts.withDefaults().Procedure
	var owner string
	err = tx.QueryRowContext(ctx, `SELECT table_name FROM memvec_procedures WHERE name = ?`, name).Scan(&owner)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read procedure catalog: %w", err)
	}
	if owner != t.WithDefaults().Name {
		return fmt.Errorf("%w: %s ranks %s, pick another collection.procedure for %s", ErrProcedureInUse, name, owner, t.Name)
	}

	return tx.Commit()
}

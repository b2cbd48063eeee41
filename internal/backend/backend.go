// Package backend defines the boundary between the vector store adapter and
// the store that actually holds the rows and ranks them.
package backend

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Default column names.
const (
	DefaultIDColumn        = "id"
	DefaultEmbeddingColumn = "embedding"
	DefaultMetadataColumn  = "metadata"
)

// Sentinel errors for backend operations.
var (
	// ErrUnknownBackend is returned by Open for names nobody registered.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrUnknownProcedure is returned by Call when the ranking procedure is not
	// installed in the backend.
	ErrUnknownProcedure = errors.New("unknown procedure")

	// ErrInvalidIdentifier is returned when a table or column name cannot be
	// used as a SQL identifier.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Table names a collection and the columns holding its fields.
type Table struct {
	Name            string `json:"table"`
	IDColumn        string `json:"id_column"`
	EmbeddingColumn string `json:"embedding_column"`
	MetadataColumn  string `json:"metadata_column"`
}

// NewTable returns a Table using the default column names.
func NewTable(name string) Table {
	return Table{Name: name}.WithDefaults()
}

// WithDefaults fills in empty column names.
func (t Table) WithDefaults() Table {
	if t.IDColumn == "" {
		t.IDColumn = DefaultIDColumn
	}
	if t.EmbeddingColumn == "" {
		t.EmbeddingColumn = DefaultEmbeddingColumn
	}
	if t.MetadataColumn == "" {
		t.MetadataColumn = DefaultMetadataColumn
	}
	return t
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to splice into a query.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Validate checks every identifier in the table.
func (t Table) Validate() error {
	for _, name := range []string{t.Name, t.IDColumn, t.EmbeddingColumn, t.MetadataColumn} {
		if !ValidIdentifier(name) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
		}
	}
	return nil
}

// Row is one stored record.
type Row struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

// Query selects rows by id or by metadata containment.
type Query struct {
	// ID restricts the selection to a single primary key when set. An empty
	// string is a real key, not a wildcard.
	ID *string `json:"id,omitempty"`

	// Filter is an AND of equalities on top-level metadata keys.
	Filter map[string]any `json:"filter,omitempty"`

	// Limit caps the number of returned rows; 0 means no cap.
	Limit int `json:"limit,omitempty"`
}

// ByID returns a Query that selects the row whose primary key is id.
func ByID(id string) Query {
	return Query{ID: &id}
}

// MatchArgs are the arguments of the ranking procedure.
type MatchArgs struct {
	QueryEmbedding []float32      `json:"query_embedding"`
	MatchCount     int            `json:"match_count"`
	Filter         map[string]any `json:"filter"`
}

// Match is one row produced by the ranking procedure.
type Match struct {
	ID         string         `json:"id"`
	Similarity float64        `json:"similarity"`
	Metadata   map[string]any `json:"metadata"`
}

// TableInfo describes a collection.
type TableInfo struct {
	Name      string `json:"name"`
	RowCount  int    `json:"row_count"`
	Procedure string `json:"procedure,omitempty"`
	Metric    string `json:"metric,omitempty"`

	// Procedures lists every ranking procedure that ranks this table.
	Procedures []string `json:"procedures,omitempty"`
}

// Conn is the connection a vector store adapter owns. Implementations make
// one round-trip per call and do no retrying of their own.
type Conn interface {
	// Insert writes all rows or none.
	Insert(ctx context.Context, t Table, rows []Row) error

	// Update replaces embedding and metadata of the row with the given id and
	// reports how many rows changed. Zero is not an error.
	Update(ctx context.Context, t Table, id string, row Row) (int64, error)

	// Delete removes the row with the given id. A missing row is not an error.
	Delete(ctx context.Context, t Table, id string) error

	// DeleteAll removes every row of the table.
	DeleteAll(ctx context.Context, t Table) error

	// Select returns matching rows (without embeddings) and the number of
	// matches ignoring q.Limit.
	Select(ctx context.Context, t Table, q Query) ([]Row, int, error)

	// Call invokes the named ranking procedure. Matches are ordered by
	// descending similarity.
	Call(ctx context.Context, fn string, args MatchArgs) ([]Match, error)

	// Describe reports table statistics.
	Describe(ctx context.Context, t Table) (*TableInfo, error)

	// Tables lists the collections known to the backend.
	Tables(ctx context.Context) ([]string, error)

	Close() error
}

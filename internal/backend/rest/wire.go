package rest

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/nickcecere/memvec/internal/backend"
)

// Query parameters carrying column names.
const (
	ParamIDColumn        = "id_column"
	ParamEmbeddingColumn = "embedding_column"
	ParamMetadataColumn  = "metadata_column"
)

// ParamID carries the primary key of /rest/v1/{table}/record requests. It is
// a query parameter so that an empty id still names a record.
const ParamID = "id"

// Error codes sent with ErrorResponse so sentinels survive the round-trip.
const (
	CodeUnknownProcedure  = "unknown_procedure"
	CodeInvalidIdentifier = "invalid_identifier"
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal"
)

// QueryResponse is the body of POST /rest/v1/{table}/query.
type QueryResponse struct {
	Rows  []backend.Row `json:"rows"`
	Total int           `json:"total"`
}

// UpdateResponse is the body of PATCH /rest/v1/{table}/record.
type UpdateResponse struct {
	Updated int64 `json:"updated"`
}

// TablesResponse is the body of GET /rest/v1/.
type TablesResponse struct {
	Tables []string `json:"tables"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ErrorCode classifies err for ErrorResponse.Code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, backend.ErrUnknownProcedure):
		return CodeUnknownProcedure
	case errors.Is(err, backend.ErrInvalidIdentifier):
		return CodeInvalidIdentifier
	default:
		return CodeInternal
	}
}

// Err converts the response back into an error, restoring the backend
// sentinel named by Code.
func (e ErrorResponse) Err(status int) error {
	switch e.Code {
	case CodeUnknownProcedure:
		return fmt.Errorf("%w: %s", backend.ErrUnknownProcedure, e.Error)
	case CodeInvalidIdentifier:
		return fmt.Errorf("%w: %s", backend.ErrInvalidIdentifier, e.Error)
	}
	if e.Error == "" {
		return fmt.Errorf("server returned status %d", status)
	}
	return fmt.Errorf("server returned status %d: %s", status, e.Error)
}

// TableParams encodes the column names of t.
func TableParams(t backend.Table) url.Values {
	t = t.WithDefaults()
	q := url.Values{}
	q.Set(ParamIDColumn, t.IDColumn)
	q.Set(ParamEmbeddingColumn, t.EmbeddingColumn)
	q.Set(ParamMetadataColumn, t.MetadataColumn)
	return q
}

// RecordParams is TableParams plus the id of one record.
func RecordParams(t backend.Table, id string) url.Values {
	q := TableParams(t)
	q.Set(ParamID, id)
	return q
}

// TableFromParams is the inverse of TableParams.
func TableFromParams(name string, q url.Values) backend.Table {
	return backend.Table{
		Name:            name,
		IDColumn:        q.Get(ParamIDColumn),
		EmbeddingColumn: q.Get(ParamEmbeddingColumn),
		MetadataColumn:  q.Get(ParamMetadataColumn),
	}.WithDefaults()
}

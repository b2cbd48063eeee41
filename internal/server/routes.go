package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/nickcecere/memvec/internal/backend"
	"github.com/nickcecere/memvec/internal/backend/rest"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 32 << 20

func (s *Server) routes(r chi.Router) {
	r.Route("/rest/v1", func(r chi.Router) {
		r.Get("/", s.handleTables)
		r.Route("/{table}", func(r chi.Router) {
			r.Post("/", s.handleInsert)
			r.Post("/query", s.handleSelect)
			r.Get("/info", s.handleDescribe)
			r.Patch("/record", s.handleUpdate)
			r.Delete("/record", s.handleDelete)
			r.Delete("/all", s.handleDeleteAll)
		})
	})
	r.Post("/rpc/{fn}", s.handleCall)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.conn.Tables(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, rest.TablesResponse{Tables: tables})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var rows []backend.Row
	if !s.decode(w, r, &rows) {
		return
	}
	if err := s.conn.Insert(r.Context(), t, rows); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	var row backend.Row
	if !s.decode(w, r, &row) {
		return
	}
	n, err := s.conn.Update(r.Context(), t, id, row)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rest.UpdateResponse{Updated: n})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	id, ok := s.recordID(w, r)
	if !ok {
		return
	}
	if err := s.conn.Delete(r.Context(), t, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	if err := s.conn.DeleteAll(r.Context(), t); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	var q backend.Query
	if !s.decode(w, r, &q) {
		return
	}
	rows, total, err := s.conn.Select(r.Context(), t, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []backend.Row{}
	}
	writeJSON(w, http.StatusOK, rest.QueryResponse{Rows: rows, Total: total})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	info, err := s.conn.Describe(r.Context(), t)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	fn, ok := s.pathParam(w, r, "fn")
	if !ok {
		return
	}
	var args backend.MatchArgs
	if !s.decode(w, r, &args) {
		return
	}
	if args.MatchCount <= 0 {
		s.badRequest(w, r, errors.New("match_count must be positive"))
		return
	}
	matches, err := s.conn.Call(r.Context(), fn, args)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// table reads the table name and column parameters of the request.
func (s *Server) table(w http.ResponseWriter, r *http.Request) (backend.Table, bool) {
	name, ok := s.pathParam(w, r, "table")
	if !ok {
		return backend.Table{}, false
	}
	t := rest.TableFromParams(name, r.URL.Query())
	if err := t.Validate(); err != nil {
		s.badRequest(w, r, err)
		return backend.Table{}, false
	}
	return t, true
}

// recordID reads the id query parameter. It must be present but may be
// empty.
func (s *Server) recordID(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := r.URL.Query()
	if !q.Has(rest.ParamID) {
		s.badRequest(w, r, fmt.Errorf("missing %s", rest.ParamID))
		return "", false
	}
	return q.Get(rest.ParamID), true
}

// pathParam returns the decoded URL parameter. chi routes on the raw path
// when the request carries escaped characters, so the value may still be
// escaped.
func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(v)
		if err != nil {
			s.badRequest(w, r, fmt.Errorf("invalid %s: %w", key, err))
			return "", false
		}
		v = unescaped
	}
	if v == "" {
		s.badRequest(w, r, fmt.Errorf("missing %s", key))
		return "", false
	}
	return v, true
}

// decode reads a JSON body. Numbers in metadata and filters stay
// json.Number until they reach the backend.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		s.badRequest(w, r, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Debug("Bad request", "path", r.URL.Path, "error", err)
	code := rest.CodeBadRequest
	if errors.Is(err, backend.ErrInvalidIdentifier) {
		code = rest.CodeInvalidIdentifier
	}
	writeJSON(w, http.StatusBadRequest, rest.ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := rest.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case rest.CodeUnknownProcedure:
		status = http.StatusNotFound
	case rest.CodeInvalidIdentifier:
		status = http.StatusBadRequest
	}
	s.logger.Error("Backend operation failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeJSON(w, status, rest.ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

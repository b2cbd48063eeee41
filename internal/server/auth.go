package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/nickcecere/memvec/internal/backend/rest"
)

// requireAPIKey rejects requests without the configured bearer key. With no
// key configured every request passes.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.cfg.APIKey == "" {
		return next
	}
	want := []byte(s.cfg.APIKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="memvec"`)
			writeJSON(w, http.StatusUnauthorized, rest.ErrorResponse{
				Error: "missing or invalid API key",
				Code:  rest.CodeUnauthorized,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package httpapi exposes the RAG core's inbound RPC surface over plain
// net/http: knowledge base and document management, search, and the
// conversation send-message protocol (JSON and SSE variants), grounded on
// cmd/api/main.go's ServeMux + pkg/mid.Chain wiring.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ragcore/ragcore/internal/domain"
)

// errorResponse is the JSON body written for every non-2xx response, kept
// close to cmd/api/main.go's bare `{"error": "..."}` shape.
type errorResponse struct {
	Error string `json:"error"`
}

// statusForKind maps a domain.Kind to the HTTP status the RPC surface
// reports it as, so a validation failure, a missing row, and a downstream
// outage are distinguishable to a caller instead of all collapsing to 500.
func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	case domain.KindDependencyFailure:
		return http.StatusBadGateway
	case domain.KindCancelled:
		return 499 // client closed request, nginx's convention
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err via domain.ClassifyKind and writes the
// matching status code and a JSON error body, logging anything that maps
// to a 5xx since those represent this process's own failures rather than
// caller mistakes.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := domain.ClassifyKind(err)
	status := statusForKind(kind)
	if status >= 500 {
		log.Error("httpapi: request failed", "path", r.URL.Path, "kind", kind, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

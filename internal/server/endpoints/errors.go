package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackzampolin/promptlab/internal/evaluate"
	"github.com/jackzampolin/promptlab/internal/fields"
	"github.com/jackzampolin/promptlab/internal/runs"
	"github.com/jackzampolin/promptlab/internal/store"
	"github.com/jackzampolin/promptlab/internal/svcctx"
)

// errValidation marks request errors found by the handler itself.
var errValidation = errors.New("invalid request")

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fields.ErrUnknownKey), errors.Is(err, errValidation):
		return http.StatusBadRequest
	case errors.Is(err, evaluate.ErrEmptyMarkdown):
		return http.StatusUnprocessableEntity
	case errors.Is(err, runs.ErrInvocationActive):
		return http.StatusConflict
	case errors.Is(err, runs.ErrNoClient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with the status statusFor picks, logging
// anything that maps to a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		if logger := svcctx.LoggerFrom(r.Context()); logger != nil {
			logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		}
	}
	writeError(w, status, err.Error())
}

// decodeBody decodes the JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// storeFrom writes a 503 and returns nil when no store is configured.
func storeFrom(w http.ResponseWriter, r *http.Request) store.Store {
	st := svcctx.StoreFrom(r.Context())
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
	}
	return st
}

// evaluatorFrom writes a 503 and returns nil when no evaluator is configured.
func evaluatorFrom(w http.ResponseWriter, r *http.Request) *evaluate.Service {
	svc := svcctx.EvaluatorFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluator not initialized")
	}
	return svc
}

// Package httpapi is the HTTP admission layer: a thin translation from
// requests to core calls (catalog, supervisor, registry, plugins,
// chryx), wrapping every response in the {err_no, err_msg, data}
// envelope, using plain net/http and manual CORS handling rather than
// a router framework.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/adred-codev/taskflow/internal/apperr"
)

// envelope is the uniform response shape every endpoint returns.
type envelope struct {
	ErrNo  int    `json:"err_no"`
	ErrMsg string `json:"err_msg"`
	Data   any    `json:"data,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, envelope{ErrNo: apperr.CodeSuccess, ErrMsg: "ok", Data: data})
}

// writeError maps err to an envelope code, preferring an *apperr.Error's
// own code, and falling back to a generic invalid-config code for
// anything else (e.g. JSON decode failures at the boundary).
func writeError(w http.ResponseWriter, err error) {
	if ae, ok := err.(*apperr.Error); ok {
		writeEnvelope(w, statusForCode(ae.Code), envelope{ErrNo: ae.Code, ErrMsg: ae.Error()})
		return
	}
	writeEnvelope(w, http.StatusBadRequest, envelope{ErrNo: apperr.CodeInvalidConfig, ErrMsg: err.Error()})
}

func statusForCode(code int) int {
	switch code {
	case apperr.CodeSuccess:
		return http.StatusOK
	case apperr.CodeInvalidConfig:
		return http.StatusBadRequest
	case apperr.CodeNotFoundOnStart, apperr.CodeNotFoundOnFetch:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope(w http.ResponseWriter, status int, e envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}

// setCORS applies a permissive CORS policy and reports whether the
// caller should stop handling (an OPTIONS preflight).
func setCORS(w http.ResponseWriter, r *http.Request, methods string) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods+", OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return true
	}
	return false
}

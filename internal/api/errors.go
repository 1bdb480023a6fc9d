package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mensah/datashelf/internal/fault"
)

// httpError writes a JSON error body with a stable machine-readable type.
func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// faultError maps the fault taxonomy onto HTTP statuses: validation 400,
// not-found 404, permission 403, dependency 502, anything else 500.
func faultError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fault.ErrValidation):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, fault.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%v", err)
	case errors.Is(err, fault.ErrPermission):
		httpError(w, http.StatusForbidden, "permission_error", "%v", err)
	case errors.Is(err, fault.ErrDependency):
		httpError(w, http.StatusBadGateway, "dependency_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

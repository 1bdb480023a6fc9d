package api

import (
	"context"
	"net/http"
)

type ctxKey int

const callerKey ctxKey = 0

// RequireCaller extracts the caller identity from the X-User-ID header set
// by the upstream gateway after session validation. Management routes
// reject requests without it.
func RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.Header.Get("X-User-ID")
		if caller == "" {
			httpError(w, http.StatusUnauthorized, "authentication_error", "missing X-User-ID header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey, caller)))
	})
}

// callerID returns the authenticated caller set by RequireCaller.
func callerID(r *http.Request) string {
	caller, _ := r.Context().Value(callerKey).(string)
	return caller
}

// Package api implements the mediatag REST API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// AuthMiddleware rejects requests whose bearer token does not match token.
// It is a pass-through when enabled is false.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled && !validBearer(r.Header.Get("Authorization"), want) {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validBearer(header string, want []byte) bool {
	got, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), want) == 1
}

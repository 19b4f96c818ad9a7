// Package httpapi is peterbot's dashboard: a thin net/http CRUD surface
// over the JobStore and ConfigStore plus a websocket feed of job events.
// Grounded on the teacher's internal/http package, which is also plain
// net/http with no router framework — the auth middleware here is adapted
// from its auth.go bearer-token pattern, narrowed to the single shared
// dashboard password named in spec.md §6.
package httpapi

import (
	"crypto/subtle"
	"net/http"
)

const passwordHeader = "X-Dashboard-Password"

// requireAuth wraps a handler so every request must carry the dashboard
// password, compared in constant time the same way the teacher's
// tokenMatch does for bearer tokens.
func requireAuth(password string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(passwordHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(password)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

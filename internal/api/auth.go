package api

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared secret on gated routes.
const APIKeyHeader = "X-Api-Key"

// APIKeyAuth rejects requests whose X-Api-Key header does not match key.
// An empty key disables the check, which is the local development default.
func APIKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

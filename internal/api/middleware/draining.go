package middleware

import (
	"net/http"
)

// Draining rejects requests with 503 once draining reports true.
func Draining(draining func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if draining() {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":"daemon is shutting down"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

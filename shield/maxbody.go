package shield

import (
	"net/http"
	"strings"
)

// MaxFormBody caps the body size of form-encoded requests, the login and
// admin POSTs in practice. The match tolerates a charset parameter on the
// Content-Type. Media and JSON bodies pass through untouched; those routes
// carry their own limits.
func MaxFormBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

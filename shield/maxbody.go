package shield

import (
	"net/http"
	"strings"
)

// MaxMultipartBody returns middleware that caps the request body size for
// multipart uploads. Other content types are passed through untouched.
// The limit applies to the whole request body, so a batch of files shares
// the budget; the ingester enforces the per-file cap separately.
func MaxMultipartBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ct := r.Header.Get("Content-Type")
			if strings.HasPrefix(ct, "multipart/form-data") {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

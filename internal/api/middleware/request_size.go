package middleware

import (
	"fmt"
	"net/http"

	"github.com/punktual/server/internal/api/problem"
)

const (
	// DefaultMaxBodySize is the global cap applied by the router.
	DefaultMaxBodySize int64 = 1 << 20

	// JSONMaxBodySize caps event and short-link payloads. An Apple data:
	// URI with a long description is the largest body we expect.
	JSONMaxBodySize int64 = 256 << 10
)

// RequestSize wraps the body in http.MaxBytesReader. A declared
// Content-Length over the limit is rejected up front with 413; bodies that
// lie about their length fail on read.
func RequestSize(maxBytes int64, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Request body too large",
					fmt.Errorf("content length %d exceeds %d", r.ContentLength, maxBytes), env)
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

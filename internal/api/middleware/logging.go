// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// loggingWriter wraps http.ResponseWriter to capture status and size.
type loggingWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lw *loggingWriter) WriteHeader(status int) {
	lw.status = status
	lw.ResponseWriter.WriteHeader(status)
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	n, err := lw.ResponseWriter.Write(b)
	lw.size += n
	return n, err
}

// RequestLogger returns a middleware that tags each request with an ID
// and logs it. When verbose is false only responses with status >= 400
// are logged; upload and export traffic is too chatty otherwise.
func RequestLogger(verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()[:8]
			}
			w.Header().Set("X-Request-ID", requestID)

			wrapped := &loggingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			if verbose || wrapped.status >= 400 {
				log.Printf("[%s] %s %s %d %dB %v from %s",
					requestID,
					r.Method,
					r.URL.RequestURI(),
					wrapped.status,
					wrapped.size,
					time.Since(start),
					r.RemoteAddr,
				)
			}
		})
	}
}

// Package middleware contains the HTTP middleware the server installs on
// every route, next to chi's own RequestID, RealIP and Recoverer.
//
// WHAT IS MIDDLEWARE?
// A middleware wraps a handler to add behaviour that every route shares
// (logging, auth, panic recovery) without touching the handlers themselves.
// In net/http and chi the shape is a function from handler to handler:
//
//	func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
//	    return func(next http.Handler) http.Handler {
//	        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
//	            // before: start the clock
//	            next.ServeHTTP(w, r)
//	            // after: log what happened
//	        })
//	    }
//	}
//
// ORDER MATTERS:
// chi runs middleware in the order given to r.Use. The server installs
// RequestID first so Logger can attach the id, and Recoverer before the
// handlers so a panic still ends in a logged 500 rather than a dropped
// connection.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// responseWriter records the status code and body size, which
// http.ResponseWriter does not expose once written.
//
// Embedding http.ResponseWriter gives the wrapper every method of the real
// writer; WriteHeader and Write are overridden to take notes on the way
// through. Only the first status is kept, matching what net/http sends.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Logger logs one line per request.
//
// LOGGED FIELDS:
// method, path, status, duration, bytes, client address and the chi request
// id. Query strings are left out: they carry search terms.
//
// LEVELS:
//   - 5xx → error (something on our side broke)
//   - 4xx → warn (bad input, missing session, rate limiting)
//   - everything else → info
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			level := slog.LevelInfo
			switch {
			case wrapped.statusCode >= 500:
				level = slog.LevelError
			case wrapped.statusCode >= 400:
				level = slog.LevelWarn
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote", r.RemoteAddr),
				slog.String("requestID", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

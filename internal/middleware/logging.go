// Package middleware provides the HTTP middleware wrapped around the price
// handler: access logging, metrics, request IDs, security headers and panic
// recovery.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// LogLevelNone disables access logging. It is higher than any slog.Level so
// logger.Enabled always returns false.
const LogLevelNone slog.Level = slog.LevelError + 100

// ParseLogLevel converts a config log level string to a slog.Level.
// Returns slog.LevelInfo for the empty string.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none":
		return LogLevelNone
	default:
		return slog.LevelInfo
	}
}

// statusRecorder wraps http.ResponseWriter to capture the status code and
// the number of body bytes written.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Logging returns middleware that logs each request as one structured entry
// at the given level: method, path, status, latency, client IP, request ID,
// and the edge headers the price handler reads.
func Logging(logger *slog.Logger, level slog.Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if level == LogLevelNone {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.statusCode,
				"bytes", rec.bytes,
				"latency_ms", time.Since(start).Milliseconds(),
				"client_ip", r.RemoteAddr,
				"request_id", GetRequestID(r.Context()),
				"country", r.Header.Get("CF-IPCountry"),
				"origin", r.Header.Get("Origin"),
			)
		})
	}
}

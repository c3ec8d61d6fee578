package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

// RequestIDKey is the context key used to store the request ID.
const RequestIDKey ctxKey = "request_id"

// RequestID returns middleware that ensures every request has an X-Request-ID.
// An incoming X-Request-ID is preserved; otherwise the edge's CF-Ray is used
// when present, and a random UUID as a last resort. The ID is set on the
// response header, the request header, and the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = r.Header.Get("CF-Ray")
		}
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", id)
		r.Header.Set("X-Request-ID", id)

		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID extracts the request ID from a context. Returns empty string
// if no request ID is present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

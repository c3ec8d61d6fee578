package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/emeditor/get-price/internal/apierror"
)

// Recovery returns middleware that recovers from panics, logs the stack trace,
// and answers 500 with the standard JSON error body. A panic only ends the
// invocation that raised it.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						"error", err,
						"stack", string(debug.Stack()),
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", GetRequestID(r.Context()),
					)
					apierror.WriteJSON(w, r, http.StatusInternalServerError, apierror.InternalError, apierror.MsgInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/emeditor/get-price/internal/metrics"
)

// Metrics returns middleware that records request totals, latency and the
// in-flight gauge.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.InFlight.Inc()
			defer metrics.InFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			method := methodLabel(r.Method)
			metrics.RequestsTotal.WithLabelValues(method, strconv.Itoa(rec.statusCode)).Inc()
			metrics.RequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		})
	}
}

// methodLabel bounds label cardinality: clients may send any method token.
func methodLabel(m string) string {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return m
	}
	return "OTHER"
}

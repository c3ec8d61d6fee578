// Package health provides liveness and readiness probe HTTP handlers.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Pre-serialized liveness response avoids json.Encoder allocation.
var livenessBody = []byte(`{"status":"ok"}` + "\n")

const (
	readinessCacheTTL = 5 * time.Second
	checkTimeout      = 2 * time.Second
)

// Check reports whether one dependency of the service is usable.
type Check func(ctx context.Context) error

// Handler provides /health and /ready endpoints.
type Handler struct {
	checks   map[string]Check
	draining atomic.Bool
	logger   *slog.Logger

	cacheMu      sync.RWMutex
	cachedResult []byte
	cachedStatus int
	cachedAt     time.Time
}

// New creates a health Handler that runs checks on /ready.
func New(checks map[string]Check, logger *slog.Logger) *Handler {
	return &Handler{checks: checks, logger: logger}
}

// RegisterRoutes adds health check routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.liveness)
	mux.HandleFunc("/ready", h.readiness)
}

// SetDraining makes /ready fail so load balancers stop sending traffic
// while the server shuts down. Liveness is unaffected.
func (h *Handler) SetDraining() {
	h.draining.Store(true)
}

func (h *Handler) liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(livenessBody)
}

type readinessBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeBody(w, http.StatusServiceUnavailable, mustMarshal(readinessBody{Status: "draining", Checks: map[string]string{}}))
		return
	}

	h.cacheMu.RLock()
	if h.cachedResult != nil && time.Since(h.cachedAt) < readinessCacheTTL {
		body, status := h.cachedResult, h.cachedStatus
		h.cacheMu.RUnlock()
		writeBody(w, status, body)
		return
	}
	h.cacheMu.RUnlock()

	body, status := h.runChecks(r.Context())

	h.cacheMu.Lock()
	h.cachedResult = body
	h.cachedStatus = status
	h.cachedAt = time.Now()
	h.cacheMu.Unlock()

	writeBody(w, status, body)
}

func (h *Handler) runChecks(ctx context.Context) ([]byte, int) {
	type result struct {
		name string
		err  error
	}

	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	ch := make(chan result, len(h.checks))
	for name, check := range h.checks {
		go func() {
			ch <- result{name: name, err: check(ctx)}
		}()
	}

	out := readinessBody{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for range h.checks {
		res := <-ch
		if res.err != nil {
			h.logger.Warn("readiness check failed", "check", res.name, "error", res.err)
			out.Checks[res.name] = res.err.Error()
			out.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		out.Checks[res.name] = "ok"
	}

	return mustMarshal(out), status
}

func mustMarshal(v readinessBody) []byte {
	body, _ := json.Marshal(v)
	return append(body, '\n')
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

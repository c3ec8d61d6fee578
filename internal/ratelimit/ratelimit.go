// Package ratelimit provides per-client-IP token bucket rate limiting for the
// price endpoint.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emeditor/get-price/internal/apierror"
	"github.com/emeditor/get-price/internal/config"
	"github.com/emeditor/get-price/internal/metrics"
)

const (
	cleanupInterval = time.Minute
	staleAfter      = 3 * time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter tracks one token bucket per client IP and periodically evicts
// buckets that have gone quiet.
type Limiter struct {
	mu       sync.RWMutex
	clients  map[string]*client
	rate     rate.Limit
	burst    int
	enabled  bool
	resolver *IPResolver
	onReject func(http.Header, *http.Request)
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Limiter and starts its cleanup goroutine. Call Stop to end it.
func New(cfg config.RateLimitConfig, resolver *IPResolver, logger *slog.Logger) *Limiter {
	l := &Limiter{
		clients:  make(map[string]*client),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		enabled:  cfg.IsEnabled(),
		resolver: resolver,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	go l.cleanup()
	return l
}

// Stop terminates the background cleanup goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// UpdateConfig applies new limits. Existing buckets are dropped so the new
// rate takes effect on the next request.
func (l *Limiter) UpdateConfig(cfg config.RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rate = rate.Limit(cfg.RequestsPerSecond)
	l.burst = cfg.BurstSize
	l.enabled = cfg.IsEnabled()
	l.clients = make(map[string]*client)
}

// Stats describes the limiter state for the admin API.
type Stats struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`
	TrackedClients    int     `json:"tracked_clients"`
}

// Stats returns a point-in-time snapshot.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Stats{
		Enabled:           l.enabled,
		RequestsPerSecond: float64(l.rate),
		BurstSize:         l.burst,
		TrackedClients:    len(l.clients),
	}
}

// OnReject registers fn to decorate the headers of every 429 before it is
// written. Must be called before the middleware serves traffic.
func (l *Limiter) OnReject(fn func(h http.Header, r *http.Request)) {
	l.onReject = fn
}

// Middleware returns an HTTP middleware that answers 429 once a client's
// bucket is empty. OPTIONS preflights pass through without taking a token.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			limiter, limit := l.getLimiter(r)
			if limiter != nil && !limiter.Allow() {
				l.logger.Warn("rate limit exceeded", "client_ip", l.resolver.ClientIP(r), "method", r.Method)
				metrics.RateLimitHits.Inc()
				if l.onReject != nil {
					l.onReject(w.Header(), r)
				}
				w.Header().Set("Retry-After", retryAfter(limit))
				apierror.WriteJSON(w, r, http.StatusTooManyRequests, apierror.RateLimitExceeded, apierror.MsgRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter is the whole number of seconds until one token refills, at
// least one.
func retryAfter(limit rate.Limit) string {
	if limit <= 0 {
		return "1"
	}
	return strconv.Itoa(max(1, int(math.Ceil(1/float64(limit)))))
}

// getLimiter returns the bucket for the request's client, or nil when
// limiting is disabled.
func (l *Limiter) getLimiter(r *http.Request) (*rate.Limiter, rate.Limit) {
	ip := l.resolver.ClientIP(r)

	l.mu.RLock()
	if !l.enabled {
		l.mu.RUnlock()
		return nil, 0
	}
	limit := l.rate
	if c, ok := l.clients[ip]; ok {
		// lastSeen only needs refreshing well inside the eviction window.
		if time.Since(c.lastSeen) > cleanupInterval {
			l.mu.RUnlock()
			l.mu.Lock()
			c.lastSeen = time.Now()
			l.mu.Unlock()
		} else {
			l.mu.RUnlock()
		}
		return c.limiter, limit
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.clients[ip]; ok {
		c.lastSeen = time.Now()
		return c.limiter, l.rate
	}
	limiter := rate.NewLimiter(l.rate, l.burst)
	l.clients[ip] = &client{limiter: limiter, lastSeen: time.Now()}
	return limiter, l.rate
}

func (l *Limiter) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictStale(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictStale(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > staleAfter {
			delete(l.clients, ip)
		}
	}
}

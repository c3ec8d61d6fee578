package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/emeditor/get-price/internal/admin"
	"github.com/emeditor/get-price/internal/api"
	"github.com/emeditor/get-price/internal/config"
	"github.com/emeditor/get-price/internal/cors"
	"github.com/emeditor/get-price/internal/health"
	"github.com/emeditor/get-price/internal/metrics"
	"github.com/emeditor/get-price/internal/middleware"
	"github.com/emeditor/get-price/internal/pricing"
	"github.com/emeditor/get-price/internal/ratelimit"
	"github.com/emeditor/get-price/internal/tlsutil"
)

// app holds the long-lived components that config reloads reach into.
type app struct {
	handler http.Handler
	price   *api.PriceHandler
	limiter *ratelimit.Limiter
	health  *health.Handler
	certs   *tlsutil.CertLoader
	logger  *slog.Logger
}

// staticConfig serves a config that was not loaded from a file and so
// cannot be reloaded.
type staticConfig struct{ cfg *config.Config }

func (s staticConfig) Current() *config.Config { return s.cfg }
func (s staticConfig) Reload() bool            { return false }

// newApp assembles the handler tree:
//
//	Recovery → RequestID → SecurityHeaders → Logging → Metrics → RateLimit → PriceHandler
//
// /health, /ready, the metrics path and /admin/ bypass the price chain.
func newApp(cfg *config.Config, provider admin.ConfigProvider, logger *slog.Logger) (*app, error) {
	price, err := api.NewPriceHandler(cors.NewGate(cfg.CORS.Origins()), logger)
	if err != nil {
		return nil, err
	}

	resolver := ratelimit.NewIPResolver(cfg.Server.TrustedProxies, logger)
	limiter := ratelimit.New(cfg.RateLimit, resolver, logger)
	limiter.OnReject(func(h http.Header, r *http.Request) {
		price.Gate().SetResponse(h, r.Header.Get("Origin"))
	})

	var handler http.Handler = price
	handler = limiter.Middleware()(handler)
	if cfg.Metrics.IsEnabled() {
		handler = middleware.Metrics()(handler)
	}
	handler = middleware.Logging(logger, middleware.ParseLogLevel(cfg.Logging.AccessLevel))(handler)
	handler = middleware.SecurityHeaders()(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(logger)(handler)

	checks := map[string]health.Check{
		"pricing_tables": func(context.Context) error { return pricing.Validate() },
		"cors_gate": func(context.Context) error {
			if len(price.Gate().Origins()) == 0 {
				return errors.New("origin allow-list is empty")
			}
			return nil
		},
	}

	var certs *tlsutil.CertLoader
	if cfg.Server.TLS.Enabled() {
		certs, err = tlsutil.New(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile, logger)
		if err != nil {
			limiter.Stop()
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
		checks["tls_certificate"] = certs.Check
	}

	healthHandler := health.New(checks, logger)

	mux := http.NewServeMux()
	healthHandler.RegisterRoutes(mux)

	metricsPath := cfg.Metrics.Path
	if cfg.Metrics.IsEnabled() {
		mux.Handle(metricsPath, metrics.Handler())
		logger.Info("metrics endpoint registered", "path", metricsPath)
	}

	if cfg.Admin.Enabled {
		admin.New(cfg.Admin, provider, limiter, resolver, logger).RegisterRoutes(mux)
		logger.Info("admin API enabled", "allowlist", cfg.Admin.IPAllowlist, "auth", cfg.Admin.Auth.Enabled)
	}

	ambient := middleware.Recovery(logger)(middleware.RequestID(mux))

	combined := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/ready" ||
			(cfg.Metrics.IsEnabled() && path == metricsPath) ||
			(cfg.Admin.Enabled && strings.HasPrefix(path, "/admin/")) {
			ambient.ServeHTTP(w, r)
			return
		}
		handler.ServeHTTP(w, r)
	})

	return &app{
		handler: combined,
		price:   price,
		limiter: limiter,
		health:  healthHandler,
		certs:   certs,
		logger:  logger,
	}, nil
}

// apply pushes the live-reloadable parts of cfg into the running app.
func (a *app) apply(cfg *config.Config) {
	a.price.SetGate(cors.NewGate(cfg.CORS.Origins()))
	a.limiter.UpdateConfig(cfg.RateLimit)
	a.logger.Info("reloadable settings applied",
		"origins", len(cfg.CORS.Origins()),
		"rate_limit_enabled", cfg.RateLimit.IsEnabled(),
	)
}

// Close stops background work owned by the app.
func (a *app) Close() {
	a.limiter.Stop()
	if a.certs != nil {
		a.certs.Stop()
	}
}

// Package admin provides admin API endpoints for runtime inspection of the
// price service. All endpoints are protected by an IP allowlist and,
// optionally, bearer token auth.
package admin

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"

	"github.com/emeditor/get-price/internal/apierror"
	"github.com/emeditor/get-price/internal/auth"
	"github.com/emeditor/get-price/internal/config"
	"github.com/emeditor/get-price/internal/pricing"
	"github.com/emeditor/get-price/internal/ratelimit"
)

// ConfigProvider abstracts config access for testability.
type ConfigProvider interface {
	Current() *config.Config
	Reload() bool
}

// LimiterStats exposes the rate limiter state.
type LimiterStats interface {
	Stats() ratelimit.Stats
}

// Handler provides admin API endpoints.
type Handler struct {
	reloader    ConfigProvider
	limiter     LimiterStats
	resolver    *ratelimit.IPResolver
	allowedNets []*net.IPNet
	authorize   func(http.Handler) http.Handler
	logger      *slog.Logger
}

// New creates an admin Handler from cfg. The allowlist CIDRs must be
// pre-validated (config validation ensures this).
func New(cfg config.AdminConfig, reloader ConfigProvider, limiter LimiterStats, resolver *ratelimit.IPResolver, logger *slog.Logger) *Handler {
	nets := make([]*net.IPNet, 0, len(cfg.IPAllowlist))
	for _, cidr := range cfg.IPAllowlist {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	return &Handler{
		reloader:    reloader,
		limiter:     limiter,
		resolver:    resolver,
		allowedNets: nets,
		authorize:   auth.Middleware(cfg.Auth, logger),
		logger:      logger,
	}
}

// RegisterRoutes adds admin routes to the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/admin/tables", h.guard(http.MethodGet, h.tablesHandler))
	mux.Handle("/admin/config", h.guard(http.MethodGet, h.configHandler))
	mux.Handle("/admin/limiters", h.guard(http.MethodGet, h.limitersHandler))
	mux.Handle("/admin/reload", h.guard(http.MethodPost, h.reloadHandler))
}

// guard checks the method and the client IP, then the bearer token.
func (h *Handler) guard(method string, next http.HandlerFunc) http.Handler {
	authed := h.authorize(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			apierror.WriteJSON(w, r, http.StatusMethodNotAllowed, apierror.MethodNotAllowed, "only "+method+" is supported")
			return
		}

		ip := h.resolver.ClientIP(r)
		if !h.isAllowed(ip) {
			h.logger.Warn("admin access denied", "client_ip", ip, "path", r.URL.Path)
			apierror.WriteJSON(w, r, http.StatusForbidden, apierror.Forbidden, "client address not in admin allowlist")
			return
		}
		authed.ServeHTTP(w, r)
	})
}

func (h *Handler) isAllowed(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range h.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (h *Handler) tablesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pricing.Tables())
}

// configView is the /admin/config body. Secrets are excluded by the
// config struct tags.
type configView struct {
	Config           *config.Config `json:"config"`
	EffectiveOrigins []string       `json:"effective_origins"`
	Warnings         []string       `json:"warnings"`
}

func (h *Handler) configHandler(w http.ResponseWriter, r *http.Request) {
	cfg := h.reloader.Current()
	warnings := cfg.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, configView{
		Config:           cfg,
		EffectiveOrigins: cfg.CORS.Origins(),
		Warnings:         warnings,
	})
}

func (h *Handler) limitersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.limiter.Stats())
}

func (h *Handler) reloadHandler(w http.ResponseWriter, r *http.Request) {
	subject := ""
	if claims, ok := auth.FromContext(r.Context()); ok {
		subject = claims.Subject
	}
	h.logger.Info("config reload requested via admin API", "subject", subject)

	if !h.reloader.Reload() {
		apierror.WriteJSON(w, r, http.StatusUnprocessableEntity, apierror.InvalidConfig, "config file is invalid, keeping current config")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

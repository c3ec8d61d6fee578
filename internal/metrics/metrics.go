// Package metrics provides Prometheus instrumentation for the price service.
// Collectors are registered by Init and exposed through Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts requests by method and HTTP status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_requests_total",
			Help: "Total HTTP requests processed",
		},
		[]string{"method", "status"},
	)

	// RequestDuration observes request latency in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"method"},
	)

	// InFlight tracks the number of requests currently being served.
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_requests_in_flight",
			Help: "Number of in-flight requests currently being processed",
		},
	)

	// QuotesTotal counts quotes served by currency and whether the country
	// fell back to the default.
	QuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_quotes_total",
			Help: "Total price quotes served",
		},
		[]string{"currency", "fallback"},
	)

	// CORSDecisions counts requests carrying an Origin by outcome.
	CORSDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cors_decisions_total",
			Help: "Origin allow-list decisions",
		},
		[]string{"kind", "result"},
	)

	// RateLimitHits counts rate limit rejections.
	RateLimitHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_rate_limit_hits_total",
			Help: "Total rate limit rejections",
		},
	)

	// AuthFailures counts admin authentication failures by reason.
	AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_admin_auth_failures_total",
			Help: "Total admin authentication failures",
		},
		[]string{"reason"},
	)

	// ConfigReloads counts config reload attempts by result.
	ConfigReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_config_reloads_total",
			Help: "Configuration reload attempts",
		},
		[]string{"result"},
	)

	// TLSCertExpiry is the NotAfter time of the serving certificate.
	TLSCertExpiry = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "price_tls_cert_expiry_timestamp_seconds",
			Help: "Unix time at which the serving TLS certificate expires",
		},
	)
)

// Collectors returns every collector defined by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RequestsTotal,
		RequestDuration,
		InFlight,
		QuotesTotal,
		CORSDecisions,
		RateLimitHits,
		AuthFailures,
		ConfigReloads,
		TLSCertExpiry,
	}
}

// Init registers all collectors with the default Prometheus registry.
// Must be called once at startup before handling requests.
func Init() {
	prometheus.MustRegister(Collectors()...)
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emeditor/get-price/internal/config"
)

func testApp(t *testing.T, yaml string) (*app, *config.Config) {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte(yaml))
	require.NoError(t, err)

	a, err := newApp(cfg, staticConfig{cfg}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, cfg
}

func get(h http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_QuoteThroughFullChain(t *testing.T) {
	a, _ := testApp(t, "")

	rec := get(a.handler, http.MethodGet, "/", map[string]string{
		"CF-IPCountry": "JP",
		"Origin":       "https://jp.emeditor.com/",
		"CF-Ray":       "8a1b2c3d4e5f-NRT",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"currency":"JPY"`)
	assert.Equal(t, "https://jp.emeditor.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "8a1b2c3d4e5f-NRT", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestServer_PreflightAndMethodNotAllowed(t *testing.T) {
	a, _ := testApp(t, "")

	pre := get(a.handler, http.MethodOptions, "/", map[string]string{"Origin": "https://www.emeditor.com"})
	assert.Equal(t, http.StatusNoContent, pre.Code)
	assert.Equal(t, "86400", pre.Header().Get("Access-Control-Max-Age"))

	post := get(a.handler, http.MethodPost, "/", map[string]string{"X-Request-ID": "req-1"})
	assert.Equal(t, http.StatusMethodNotAllowed, post.Code)
	assert.Equal(t, "GET, OPTIONS", post.Header().Get("Allow"))
	assert.Contains(t, post.Body.String(), `"request_id":"req-1"`)
}

func TestServer_AmbientEndpoints(t *testing.T) {
	a, _ := testApp(t, "")

	assert.Equal(t, http.StatusOK, get(a.handler, http.MethodGet, "/health", nil).Code)

	ready := get(a.handler, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.Contains(t, ready.Body.String(), `"pricing_tables":"ok"`)

	assert.Equal(t, http.StatusOK, get(a.handler, http.MethodGet, "/metrics", nil).Code)

	// Admin is disabled by default, so /admin/ paths fall through to the
	// price handler like any other path.
	rec := get(a.handler, http.MethodGet, "/admin/tables", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"currency":"USD"`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	a, _ := testApp(t, "metrics:\n  enabled: false\n")

	rec := get(a.handler, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"currency"`)
}

func TestServer_AdminEnabled(t *testing.T) {
	a, _ := testApp(t, "admin:\n  enabled: true\n  ip_allowlist: [\"127.0.0.0/8\"]\n")

	rec := get(a.handler, http.MethodGet, "/admin/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"default_currency":"USD"`)

	assert.Equal(t, http.StatusUnprocessableEntity, get(a.handler, http.MethodPost, "/admin/reload", nil).Code)
}

func TestServer_RateLimited(t *testing.T) {
	a, _ := testApp(t, "rate_limit:\n  requests_per_second: 1\n  burst_size: 2\n")

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, get(a.handler, http.MethodGet, "/", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, get(a.handler, http.MethodGet, "/", nil).Code)

	// Probes are never limited.
	assert.Equal(t, http.StatusOK, get(a.handler, http.MethodGet, "/health", nil).Code)
}

func TestServer_ApplyReload(t *testing.T) {
	a, _ := testApp(t, "rate_limit:\n  requests_per_second: 1\n  burst_size: 1\n")
	staging := map[string]string{"Origin": "https://staging.emeditor.com"}

	get(a.handler, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusTooManyRequests, get(a.handler, http.MethodGet, "/", staging).Code)

	next, err := config.LoadFromBytes([]byte(`
rate_limit:
  enabled: false
cors:
  allowed_origins: ["https://staging.emeditor.com"]
`))
	require.NoError(t, err)
	a.apply(next)

	rec := get(a.handler, http.MethodGet, "/", staging)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://staging.emeditor.com", rec.Header().Get("Access-Control-Allow-Origin"))

	old := get(a.handler, http.MethodOptions, "/", map[string]string{"Origin": "https://www.emeditor.com"})
	assert.Empty(t, old.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_ReloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "priceserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cors:\n  allowed_origins: [\"https://www.emeditor.com\"]\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reloader := config.NewReloader(path, cfg, logger)

	a, err := newApp(cfg, reloader, logger)
	require.NoError(t, err)
	defer a.Close()
	reloader.OnReload(a.apply)

	require.NoError(t, os.WriteFile(path, []byte("cors:\n  allowed_origins: [\"https://ru.emeditor.com\"]\n"), 0o644))
	require.True(t, reloader.Reload())

	assert.Equal(t, []string{"https://ru.emeditor.com"}, a.price.Gate().Origins())
}

func TestServer_TLSCertificateMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadFromBytes([]byte(`
server:
  tls:
    cert_file: ` + filepath.Join(dir, "origin.pem") + `
    key_file: ` + filepath.Join(dir, "origin.key") + `
`))
	require.NoError(t, err)

	_, err = newApp(cfg, staticConfig{cfg}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading TLS certificate")
}

func TestServer_RateLimitKeepsCORSContract(t *testing.T) {
	a, _ := testApp(t, "rate_limit:\n  requests_per_second: 1\n  burst_size: 1\n")
	allowed := map[string]string{"Origin": "https://www.emeditor.com"}

	require.Equal(t, http.StatusOK, get(a.handler, http.MethodGet, "/", allowed).Code)

	pre := get(a.handler, http.MethodOptions, "/", allowed)
	require.Equal(t, http.StatusNoContent, pre.Code)
	assert.Equal(t, "https://www.emeditor.com", pre.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", pre.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, CF-IPCountry", pre.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", pre.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "Origin, CF-IPCountry", pre.Header().Get("Vary"))

	limited := get(a.handler, http.MethodGet, "/", allowed)
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "https://www.emeditor.com", limited.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin, CF-IPCountry", limited.Header().Get("Vary"))
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Empty(t, limited.Header().Get("Access-Control-Max-Age"))

	denied := get(a.handler, http.MethodGet, "/", map[string]string{"Origin": "https://evil.com"})
	require.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_ShippedConfigTrustsEdge(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "priceserver.yaml"))
	require.NoError(t, err)
	a, err := newApp(cfg, staticConfig{cfg}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	// Two visitors arriving through the same Cloudflare address get
	// separate buckets.
	for i := 0; i < cfg.RateLimit.BurstSize; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "173.245.48.10:443"
		req.Header.Set("CF-Connecting-IP", "203.0.113.1")
		a.handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "173.245.48.10:443"
	req.Header.Set("CF-Connecting-IP", "203.0.113.2")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

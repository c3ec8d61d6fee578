package admin

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emeditor/get-price/internal/config"
	"github.com/emeditor/get-price/internal/pricing"
	"github.com/emeditor/get-price/internal/ratelimit"
)

// mockConfigProvider implements ConfigProvider for testing.
type mockConfigProvider struct {
	cfg      *config.Config
	reloadOK bool
	reloads  int
}

func (m *mockConfigProvider) Current() *config.Config { return m.cfg }

func (m *mockConfigProvider) Reload() bool {
	m.reloads++
	return m.reloadOK
}

type stubLimiter struct{}

func (stubLimiter) Stats() ratelimit.Stats {
	return ratelimit.Stats{Enabled: true, RequestsPerSecond: 20, BurstSize: 40, TrackedClients: 3}
}

const testSecret = "super-secret-key"

func testHandler(t *testing.T, adminCfg config.AdminConfig) (*http.ServeMux, *mockConfigProvider) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	cfg, err := config.LoadFromBytes(nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Admin = adminCfg
	provider := &mockConfigProvider{cfg: cfg, reloadOK: true}

	h := New(adminCfg, provider, stubLimiter{}, ratelimit.NewIPResolver(nil, logger), logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux, provider
}

func allowLocal() config.AdminConfig {
	return config.AdminConfig{Enabled: true, IPAllowlist: []string{"127.0.0.0/8"}}
}

func do(mux *http.ServeMux, method, path, remote, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestTablesEndpoint(t *testing.T) {
	mux, _ := testHandler(t, allowLocal())

	rec := do(mux, "GET", "/admin/tables", "127.0.0.1:1234", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var snap pricing.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if snap.DefaultCurrency != "USD" {
		t.Errorf("default_currency = %q, want USD", snap.DefaultCurrency)
	}
	if snap.Countries["JP"] != "JPY" {
		t.Errorf("JP maps to %q, want JPY", snap.Countries["JP"])
	}
	if !snap.Prices["JPY"].Annual.Equal(pricing.PriceFor("JPY").Annual) {
		t.Errorf("JPY annual = %s", snap.Prices["JPY"].Annual)
	}
}

func TestConfigEndpoint_OmitsSecret(t *testing.T) {
	adminCfg := allowLocal()
	adminCfg.Auth = config.AuthConfig{Enabled: false, JWTSecret: testSecret, Issuer: "emeditor", Audience: "get-price-admin"}
	mux, _ := testHandler(t, adminCfg)

	rec := do(mux, "GET", "/admin/config", "127.0.0.1:1234", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	if strings.Contains(body, testSecret) {
		t.Error("jwt_secret leaked in /admin/config")
	}
	if !strings.Contains(body, `"effective_origins":["https://www.emeditor.com"`) {
		t.Errorf("expected effective origins in body, got %s", body)
	}
}

func TestIPAllowlist_Denied(t *testing.T) {
	mux, _ := testHandler(t, config.AdminConfig{Enabled: true, IPAllowlist: []string{"10.0.0.0/8"}})

	rec := do(mux, "GET", "/admin/tables", "192.168.1.1:1234", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PRICE_FORBIDDEN") {
		t.Errorf("expected forbidden code, got %s", rec.Body.String())
	}
}

func TestIPAllowlist_Allowed(t *testing.T) {
	mux, _ := testHandler(t, config.AdminConfig{Enabled: true, IPAllowlist: []string{"192.168.0.0/16"}})

	if rec := do(mux, "GET", "/admin/tables", "192.168.1.100:5678", ""); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestLimitersEndpoint(t *testing.T) {
	mux, _ := testHandler(t, allowLocal())

	rec := do(mux, "GET", "/admin/limiters", "127.0.0.1:1234", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats ratelimit.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.TrackedClients != 3 || stats.BurstSize != 40 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestReloadEndpoint(t *testing.T) {
	mux, provider := testHandler(t, allowLocal())

	rec := do(mux, "POST", "/admin/reload", "127.0.0.1:1234", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if provider.reloads != 1 {
		t.Errorf("expected one reload, got %d", provider.reloads)
	}

	provider.reloadOK = false
	rec = do(mux, "POST", "/admin/reload", "127.0.0.1:1234", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "PRICE_INVALID_CONFIG") {
		t.Errorf("expected invalid config code, got %s", rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux, provider := testHandler(t, allowLocal())

	rec := do(mux, "POST", "/admin/tables", "127.0.0.1:1234", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if got := rec.Header().Get("Allow"); got != "GET" {
		t.Errorf("Allow = %q, want GET", got)
	}

	if rec := do(mux, "GET", "/admin/reload", "127.0.0.1:1234", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if provider.reloads != 0 {
		t.Error("GET must not trigger a reload")
	}
}

func TestAuth_RequiresToken(t *testing.T) {
	adminCfg := allowLocal()
	adminCfg.Auth = config.AuthConfig{Enabled: true, JWTSecret: testSecret, Issuer: "emeditor", Audience: "get-price-admin"}
	mux, _ := testHandler(t, adminCfg)

	if rec := do(mux, "GET", "/admin/tables", "127.0.0.1:1234", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"iss": "emeditor",
		"aud": "get-price-admin",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	if rec := do(mux, "GET", "/admin/tables", "127.0.0.1:1234", token); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with token", rec.Code)
	}

	// The allowlist is checked before the token.
	if rec := do(mux, "GET", "/admin/tables", "192.168.1.1:1234", token); rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 from outside the allowlist", rec.Code)
	}
}

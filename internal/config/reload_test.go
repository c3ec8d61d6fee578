package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return logger, &buf
}

func writeTestConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "test-config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func loadTestConfig(t *testing.T, path string) *Config {
	t.Helper()
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load initial config: %v", err)
	}
	return cfg
}

const validConfig = `
server:
  port: 8080
rate_limit:
  requests_per_second: 100
  burst_size: 50
`

const validConfigUpdated = `
server:
  port: 8080
rate_limit:
  requests_per_second: 200
  burst_size: 100
cors:
  allowed_origins:
    - "https://www.emeditor.com"
    - "https://staging.emeditor.com"
`

const invalidConfig = `
server:
  port: -1
`

func TestReloader_Current(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)

	r := NewReloader(path, loadTestConfig(t, path), logger)
	if got := r.Current().RateLimit.RequestsPerSecond; got != 100 {
		t.Errorf("expected 100 rps, got %v", got)
	}
}

func TestReloader_Reload_ValidConfig(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	if !r.Reload() {
		t.Fatal("expected reload to succeed")
	}

	cfg := r.Current()
	if cfg.RateLimit.RequestsPerSecond != 200 {
		t.Errorf("expected 200 rps after reload, got %v", cfg.RateLimit.RequestsPerSecond)
	}
	if len(cfg.CORS.Origins()) != 2 {
		t.Errorf("expected 2 origins after reload, got %v", cfg.CORS.Origins())
	}
}

func TestReloader_Reload_InvalidConfig(t *testing.T) {
	logger, logBuf := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	if err := os.WriteFile(path, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	if r.Reload() {
		t.Fatal("expected reload to fail for invalid config")
	}
	if got := r.Current().RateLimit.RequestsPerSecond; got != 100 {
		t.Errorf("expected original 100 rps preserved, got %v", got)
	}
	if !strings.Contains(logBuf.String(), "config reload failed") {
		t.Error("expected error to be logged")
	}
}

func TestReloader_OnReload_Callback(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	var got *Config
	r.OnReload(func(cfg *Config) { got = cfg })

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
	r.Reload()

	if got == nil {
		t.Fatal("expected callback to be called")
	}
	if got.RateLimit.RequestsPerSecond != 200 {
		t.Errorf("expected callback to receive 200 rps, got %v", got.RateLimit.RequestsPerSecond)
	}
	if got != r.Current() {
		t.Error("expected callback to receive the swapped-in config")
	}
}

func TestReloader_OnReload_NotCalledOnFailure(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	called := false
	r.OnReload(func(cfg *Config) { called = true })

	if err := os.WriteFile(path, []byte(invalidConfig), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
	r.Reload()

	if called {
		t.Fatal("callback should not be called on failed reload")
	}
}

func TestReloader_FileWatch(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	reloadDone := make(chan struct{}, 1)
	r.OnReload(func(cfg *Config) {
		select {
		case reloadDone <- struct{}{}:
		default:
		}
	})

	r.Start()
	defer r.Stop()

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	select {
	case <-reloadDone:
		if got := r.Current().RateLimit.RequestsPerSecond; got != 200 {
			t.Errorf("expected 200 rps after file watch reload, got %v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("file watch reload timed out")
	}
}

func TestReloader_StopTwice(t *testing.T) {
	logger, _ := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	r.Start()
	r.Stop()
	r.Stop()
}

func TestReloader_LogChanges(t *testing.T) {
	logger, logBuf := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	if err := os.WriteFile(path, []byte(validConfigUpdated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
	r.Reload()

	logOutput := logBuf.String()
	if !strings.Contains(logOutput, "rate limit config changed") {
		t.Error("expected rate limit change to be logged")
	}
	if !strings.Contains(logOutput, "cors allow-list changed") {
		t.Error("expected cors change to be logged")
	}
	if strings.Contains(logOutput, "restart required") {
		t.Error("did not expect a restart warning")
	}
}

func TestReloader_LogChanges_RestartRequired(t *testing.T) {
	logger, logBuf := newTestLogger()
	path := writeTestConfig(t, t.TempDir(), validConfig)
	r := NewReloader(path, loadTestConfig(t, path), logger)

	if err := os.WriteFile(path, []byte(validConfig+"logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}
	r.Reload()

	if !strings.Contains(logBuf.String(), "restart required") {
		t.Error("expected restart warning for logging change")
	}
}

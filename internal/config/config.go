// Package config provides YAML configuration loading with validation and
// environment variable substitution for the price service.
//
// The price and country tables are not configuration: they are compiled into
// the pricing package. Config covers the server around them.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emeditor/get-price/internal/cors"
)

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
	Admin     AdminConfig     `yaml:"admin" json:"admin"`

	// Warnings holds non-fatal config issues detected during loading.
	// Stored on the Config itself so Load stays safe to call from the
	// hot-reload goroutine.
	Warnings []string `yaml:"-" json:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	TrustedProxies  []string      `yaml:"trusted_proxies" json:"trusted_proxies"` // CIDRs allowed to set CF-Connecting-IP / X-Forwarded-For
	TLS             TLSConfig     `yaml:"tls" json:"tls"`
}

// TLSConfig enables HTTPS on the origin listener, typically with an edge
// origin certificate. Both files are watched and reloaded on rotation.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// Enabled reports whether a certificate is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// MetricsConfig holds Prometheus metrics endpoint settings.
// Enabled defaults to true; set to false to disable metrics.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// IsEnabled returns whether metrics are enabled (defaults to true).
func (m MetricsConfig) IsEnabled() bool {
	if m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Output      string `yaml:"output" json:"output"`             // "stdout", "stderr", or file path; default: "stdout"
	Level       string `yaml:"level" json:"level"`               // minimum level for the service logger; default: "info"
	AccessLevel string `yaml:"access_level" json:"access_level"` // level of per-request entries, "none" disables; default: "info"
	MaxSizeMB   int    `yaml:"max_size_mb" json:"max_size_mb"`   // max log file size before rotation; default: 100
	MaxBackups  int    `yaml:"max_backups" json:"max_backups"`   // number of rotated files to keep; default: 3
	MaxAgeDays  int    `yaml:"max_age_days" json:"max_age_days"` // max days to retain rotated files; default: 30
}

// RateLimitConfig holds the per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           *bool   `yaml:"enabled" json:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" json:"burst_size"`
}

// IsEnabled returns whether rate limiting is enabled (defaults to true).
func (r RateLimitConfig) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// CORSConfig overrides the built-in origin allow-list. An empty list means
// cors.DefaultOrigins.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// Origins returns the effective allow-list.
func (c CORSConfig) Origins() []string {
	if len(c.AllowedOrigins) == 0 {
		return cors.DefaultOrigins
	}
	return c.AllowedOrigins
}

// AdminConfig holds admin API settings.
type AdminConfig struct {
	Enabled     bool       `yaml:"enabled" json:"enabled"`           // default: false
	IPAllowlist []string   `yaml:"ip_allowlist" json:"ip_allowlist"` // CIDR notation
	Auth        AuthConfig `yaml:"auth" json:"auth"`
}

// AuthConfig holds the optional HS256 bearer token check on the admin API.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	JWTSecret string `yaml:"jwt_secret" json:"-"`
	Issuer    string `yaml:"issuer" json:"issuer"`
	Audience  string `yaml:"audience" json:"audience"`
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns in s with the corresponding
// environment variable value. Unset variables are left as written.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		key := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, applies environment
// variable substitution, sets defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromBytes parses configuration from raw YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.Warnings = collectWarnings(&cfg)

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 5 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.AccessLevel == "" {
		cfg.Logging.AccessLevel = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.BurstSize == 0 {
		cfg.RateLimit.BurstSize = 40
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout < 0 || cfg.Server.WriteTimeout < 0 || cfg.Server.IdleTimeout < 0 {
		return fmt.Errorf("server timeouts must be non-negative")
	}
	if cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must be non-negative")
	}
	for i, cidr := range cfg.Server.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("server.trusted_proxies[%d]: invalid CIDR %q: %w", i, cidr, err)
		}
	}

	if cfg.Server.TLS.Enabled() && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires both cert_file and key_file")
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", cfg.Metrics.Path)
	}

	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	if al := strings.ToLower(cfg.Logging.AccessLevel); al != "none" && !validLogLevels[al] {
		return fmt.Errorf("logging.access_level must be one of debug, info, warn, error, none; got %q", cfg.Logging.AccessLevel)
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.Output != "stderr" {
		if cfg.Logging.MaxSizeMB < 1 {
			return fmt.Errorf("logging.max_size_mb must be positive when output is a file path")
		}
		if cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
			return fmt.Errorf("logging.max_backups and logging.max_age_days must be non-negative")
		}
	}

	if !(cfg.RateLimit.RequestsPerSecond > 0) { // also rejects NaN
		return fmt.Errorf("rate_limit.requests_per_second must be positive")
	}
	if cfg.RateLimit.BurstSize <= 0 {
		return fmt.Errorf("rate_limit.burst_size must be positive")
	}

	for i, o := range cfg.CORS.AllowedOrigins {
		if err := validateOrigin(o); err != nil {
			return fmt.Errorf("cors.allowed_origins[%d]: %w", i, err)
		}
	}

	if cfg.Admin.Enabled {
		if len(cfg.Admin.IPAllowlist) == 0 {
			return fmt.Errorf("admin.ip_allowlist is required when admin is enabled")
		}
		for i, cidr := range cfg.Admin.IPAllowlist {
			if _, _, err := net.ParseCIDR(cidr); err != nil {
				return fmt.Errorf("admin.ip_allowlist[%d]: invalid CIDR %q: %w", i, cidr, err)
			}
		}
		if cfg.Admin.Auth.Enabled {
			if cfg.Admin.Auth.JWTSecret == "" {
				return fmt.Errorf("admin.auth.jwt_secret is required when admin auth is enabled")
			}
			if cfg.Admin.Auth.Issuer == "" {
				return fmt.Errorf("admin.auth.issuer is required when admin auth is enabled")
			}
			if cfg.Admin.Auth.Audience == "" {
				return fmt.Errorf("admin.auth.audience is required when admin auth is enabled")
			}
		}
	}

	return nil
}

// validateOrigin accepts a bare scheme://host[:port] origin. Wildcards, paths
// and trailing slashes are rejected so the allow-list stays exact.
func validateOrigin(o string) error {
	if o == "*" {
		return fmt.Errorf("wildcard origin is not allowed")
	}
	u, err := url.Parse(o)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", o, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin %q: scheme must be http or https", o)
	}
	if u.Host == "" {
		return fmt.Errorf("origin %q: host is required", o)
	}
	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return fmt.Errorf("origin %q: must be scheme and host only, without trailing slash", o)
	}
	return nil
}

func collectWarnings(cfg *Config) []string {
	var warnings []string
	if cfg.Admin.Auth.Enabled && strings.Contains(cfg.Admin.Auth.JWTSecret, "${") {
		warnings = append(warnings, "admin.auth.jwt_secret contains unresolved environment variable")
	}
	if cfg.Admin.Enabled && !cfg.Admin.Auth.Enabled {
		warnings = append(warnings, "admin API is enabled without token auth; access is limited by ip_allowlist only")
	}
	for _, o := range cfg.CORS.AllowedOrigins {
		if strings.HasPrefix(o, "http://") {
			warnings = append(warnings, fmt.Sprintf("cors.allowed_origins contains plain http origin %s", o))
		}
	}
	return warnings
}

// Package main is the entry point for the price service. It loads
// configuration, assembles the middleware stack, starts the HTTP server, and
// handles graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/emeditor/get-price/internal/admin"
	"github.com/emeditor/get-price/internal/config"
	"github.com/emeditor/get-price/internal/logging"
	"github.com/emeditor/get-price/internal/metrics"
	"github.com/emeditor/get-price/internal/pricing"
)

func main() {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "priceserver: %v\n", err)
	}

	configPath := flag.String("config", os.Getenv("PRICE_CONFIG"), "path to configuration file; built-in defaults when empty")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "priceserver: %v\n", err)
		os.Exit(1)
	}
}

// loadDotEnv copies path into the environment without overriding variables
// that are already set. A missing file is normal outside local development.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer logCloser.Close()

	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}

	if err := pricing.Validate(); err != nil {
		return fmt.Errorf("price tables: %w", err)
	}

	logger.Info("configuration loaded",
		"config_path", configPath,
		"port", cfg.Server.Port,
		"origins", len(cfg.CORS.Origins()),
		"currencies", len(pricing.Currencies()),
		"countries", len(pricing.Countries()),
		"rate_limit_enabled", cfg.RateLimit.IsEnabled(),
		"metrics_enabled", cfg.Metrics.IsEnabled(),
		"admin_enabled", cfg.Admin.Enabled,
		"trusted_proxies", len(cfg.Server.TrustedProxies),
	)

	if cfg.Metrics.IsEnabled() {
		metrics.Init()
	}

	var provider admin.ConfigProvider = staticConfig{cfg}
	var reloader *config.Reloader
	if configPath != "" {
		reloader = config.NewReloader(configPath, cfg, logger)
		provider = reloader
	}

	a, err := newApp(cfg, provider, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if reloader != nil {
		reloader.OnReload(a.apply)
		reloader.Start()
		defer reloader.Stop()
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	listen := srv.ListenAndServe
	if a.certs != nil {
		srv.TLSConfig = a.certs.TLSConfig()
		listen = func() error { return srv.ListenAndServeTLS("", "") }
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting price service", "addr", srv.Addr, "tls", a.certs != nil)
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	a.health.SetDraining()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	logger.Info("draining in-flight requests", "timeout", cfg.Server.ShutdownTimeout)
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("price service stopped gracefully")
	return nil
}

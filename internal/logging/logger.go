package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/emeditor/get-price/internal/config"
	"github.com/emeditor/get-price/internal/middleware"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the JSON service logger described by cfg. The returned closer
// releases the log file, if any.
func New(cfg config.LoggingConfig) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		w, err := NewRotatingWriter(cfg.Output, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		if err != nil {
			return nil, nil, err
		}
		out, closer = w, w
	}

	level := middleware.ParseLogLevel(cfg.Level)
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
	return logger.With("service", "get-price"), closer, nil
}

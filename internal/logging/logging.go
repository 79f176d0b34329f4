package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/augmenthq/compete/internal/config"
)

// New constructs the process-wide slog.Logger. Every record carries a
// service attribute so check-run and briefing-cycle output can be filtered
// out of aggregated logs.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	handler, err := buildHandler(cfg)
	if err != nil {
		return nil, err
	}

	return slog.New(handler).With(slog.String("service", "compete")), nil
}

func buildHandler(cfg config.LoggingConfig) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "json":
		return slog.NewJSONHandler(os.Stdout, opts), nil
	case "text":
		return slog.NewTextHandler(os.Stdout, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger. Development runs at debug level
// so cache and guard traces show up; production stays at info. Every record
// carries the service name for log aggregation.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelInfo,
	}
	if cfg != nil && !cfg.IsProduction() {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "surveyforge"))
}

package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. Production always ships JSON;
// elsewhere LOG_FORMAT picks between JSON and the readable text handler.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg.IsProduction() || (cfg != nil && cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

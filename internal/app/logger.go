package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production always emits JSON so
// log shippers can parse it; elsewhere the format follows LOG_FORMAT,
// defaulting to the human-readable text handler with source locations.
func NewLogger(cfg *Config) *slog.Logger {
	return slog.New(newLogHandler(os.Stdout, cfg))
}

func newLogHandler(w io.Writer, cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{AddSource: !cfg.IsProduction()}
	if cfg.IsProduction() || (cfg != nil && cfg.LogFormat == "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

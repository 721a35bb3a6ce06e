// Package log provides the logging infrastructure shared across the
// ingestion and retrieval components.
//
// Loggers are injected dependencies: each component receives one via
// its constructor and may add context with logger.With(). Nothing in
// this module logs through a package-level global.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so components depend on the standard
// library type directly and keep full access to With().
type Logger = *slog.Logger

// Config defines logger options.
type Config struct {
	// Level sets the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output to JSON format. Default: text.
	JSON bool

	// AddSource includes source positions in log entries.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. Useful for capturing
// output in tests.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Test use only;
// production code should always configure a real output.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

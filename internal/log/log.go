package log

import (
	"log/slog"
	"os"
	"strings"
)

type options struct {
	level     slog.Level
	addSource bool
}

// Option configures the logger.
type Option func(*options)

// WithLevel sets the minimum level from its string name. Unknown names fall
// back to info.
func WithLevel(level string) Option {
	return func(o *options) {
		switch strings.ToLower(level) {
		case "debug":
			o.level = slog.LevelDebug
		case "info":
			o.level = slog.LevelInfo
		case "warn", "warning":
			o.level = slog.LevelWarn
		case "error":
			o.level = slog.LevelError
		default:
			o.level = slog.LevelInfo
		}
	}
}

// WithSource includes the caller position in every record.
func WithSource() Option {
	return func(o *options) {
		o.addSource = true
	}
}

// New - a JSON logger on stdout.
func New(opts ...Option) *slog.Logger {
	cfg := options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&cfg)
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     cfg.level,
		AddSource: cfg.addSource,
	}))
}

package log

import (
	"log"
	"log/slog"
	"strings"
)

type logAdapter struct {
	slog *slog.Logger
}

// NewLogAdapter wraps a slog.Logger into the standard log.Logger interface
// for libraries that accept nothing else.
func NewLogAdapter(logger *slog.Logger) *log.Logger {
	return log.New(&logAdapter{slog: logger}, "", 0)
}

func (a *logAdapter) Write(p []byte) (n int, err error) {
	// Forward the message to the slog.Logger
	a.slog.Info(strings.TrimSuffix(string(p), "\n"))

	return len(p), nil
}

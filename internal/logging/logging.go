package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a structured logger on stderr.
// If verbose == true, level = Debug, else Info. format is "json" or "text".
func NewLogger(verbose bool, format string) *slog.Logger {
	return newLogger(os.Stderr, verbose, format)
}

func newLogger(w io.Writer, verbose bool, format string) *slog.Logger {
	level := new(slog.LevelVar)
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}
	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

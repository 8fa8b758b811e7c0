package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// Configure installs the default slog logger. Debug forces the debug level
// regardless of levelStr.
func Configure(levelStr string, env string, debug bool) {
	slog.SetDefault(slog.New(newHandler(os.Stdout, levelStr, env, debug)))
}

func newHandler(w io.Writer, levelStr string, env string, debug bool) slog.Handler {
	level := parseLogLevel(levelStr)
	if debug {
		level = slog.LevelDebug
	}

	if env == "dev" || env == "development" {
		return tint.NewHandler(w, &tint.Options{Level: level})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

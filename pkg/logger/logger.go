// Package logger provides the gateway's process-wide structured logger.
// Adapted from the CLI tool's zerolog wrapper; the event-name convention
// (dotted strings like "hw.serial.connected") carries over from the
// original Python source's structlog usage, picked as the one schema for
// this port per spec.md §9 design note (b).
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

func GetLogger() zerolog.Logger {
	return log
}

func SetLevel(level string) {
	var zerologLevel zerolog.Level
	switch level {
	case "debug":
		zerologLevel = zerolog.DebugLevel
	case "info":
		zerologLevel = zerolog.InfoLevel
	case "warn", "warning":
		zerologLevel = zerolog.WarnLevel
	case "error":
		zerologLevel = zerolog.ErrorLevel
	case "fatal":
		zerologLevel = zerolog.FatalLevel
	case "panic":
		zerologLevel = zerolog.PanicLevel
	default:
		zerologLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zerologLevel)
}

// Bind returns a child logger with a bound field, used to scope a
// component's log lines (e.g. a WeighingWorker binding its port name),
// mirroring structlog's bind/contextvars usage in the original source.
func Bind(key, value string) zerolog.Logger {
	return log.With().Str(key, value).Logger()
}

package infra

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages depend on the infra contract
// rather than the third-party module.
type Logger = zerolog.Logger

// NewLoggerTo builds the service logger. Development and the CLIs get a
// console writer, everything else emits JSON. A parseable level overrides
// the environment default (debug for development, info otherwise).
func NewLoggerTo(w io.Writer, appEnv, level string) Logger {
	lvl := defaultLevel(appEnv)
	if level = strings.ToLower(strings.TrimSpace(level)); level != "" {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			lvl = parsed
		}
	}

	if appEnv == "development" || appEnv == "cli" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: appEnv == "cli"}
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "charagen").
		Str("env", appEnv).
		Logger()
}

func defaultLevel(appEnv string) zerolog.Level {
	if appEnv == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// LoggerOrDiscard returns *l, or a logger that drops everything when l is nil.
func LoggerOrDiscard(l *Logger) Logger {
	if l != nil {
		return *l
	}
	return zerolog.Nop()
}

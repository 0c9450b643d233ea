// Package logger constructs the service's zerolog logger. There is no global
// registration: the logger is built once in main and handed to components
// explicitly, and lifecycle hooks are passed in at construction time.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls output shape.
type Config struct {
	Level   string // debug, info, warn, error
	Console bool   // human-readable console output instead of JSON
}

// FromEnv derives logger configuration from the application environment:
// pretty console logs in dev, JSON elsewhere, level from LOG_LEVEL.
func FromEnv(appEnv string) Config {
	return Config{
		Level:   strings.ToLower(envOr("LOG_LEVEL", "info")),
		Console: appEnv == "dev",
	}
}

// New builds a logger for the named service. Hooks run on every event and
// are the supported way to attach lifecycle behavior (startup markers,
// shutdown flushes) without mutating any process-wide state.
func New(service string, cfg Config, hooks ...zerolog.Hook) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	l := zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", service).
		Logger()
	for _, h := range hooks {
		l = l.Hook(h)
	}
	return l
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

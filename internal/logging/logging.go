// Package logging provides the structured zerolog factory shared by every
// cmd/* process: JSON by default, a pretty console writer for local
// development, and helpers for logging recovered panics in worker
// goroutines.
package logging

import (
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Config selects the logger's level and output format.
type Config struct {
	Level   string // debug|info|warn|error
	Pretty  bool
	Service string
}

// New builds a zerolog.Logger per Config.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output = os.Stdout
	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: output}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(output).With().Timestamp().Logger()
	}

	return logger.With().Str("service", cfg.Service).Logger()
}

// LogPanic logs a recovered panic with a stack trace. Call from a deferred
// recover() in any long-running worker goroutine so a single bad message
// never silently kills the process.
func LogPanic(logger zerolog.Logger, panicValue any, msg string) {
	logger.Error().
		Interface("panic", panicValue).
		Str("stack", string(debug.Stack())).
		Msg(msg)
}

// Package logger wraps zerolog with the constructors used across the relay.
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger embeds zerolog.Logger so the full zerolog API is available on the
// wrapper type.
type Logger struct {
	zerolog.Logger
}

// New constructs a JSON logger writing to stdout, tagged with a role label
// (e.g. "server", "relay") and timestamps.
func New(role string) *Logger {
	l := zerolog.New(os.Stdout).With().
		Str("role", role).
		Timestamp().
		Logger()
	return &Logger{l}
}

// Nop returns a logger that discards everything. Intended for tests.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// WithSession returns a child logger carrying the session id on every entry.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{l.With().Str("session_id", id).Logger()}
}

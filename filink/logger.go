package filink

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logging interface the state machines and session
// drivers depend on. Callers that don't want logging use NoopLogger,
// the default.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// NoopLogger discards everything. It is the zero-cost default.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]interface{}) {}
func (NoopLogger) Info(string, map[string]interface{})  {}
func (NoopLogger) Error(string, map[string]interface{}) {}

// ZerologLogger backs Logger with a structured zerolog.Logger,
// emitting key/value lines instead of hand-formatted text.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger builds a ZerologLogger writing a console-formatted
// stream to w, tagged with the given session name.
func NewZerologLogger(w *os.File, session string) *ZerologLogger {
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	log := zerolog.New(output).With().Timestamp().Str("session", session).Logger()
	return &ZerologLogger{log: log}
}

func (l *ZerologLogger) Debug(msg string, fields map[string]interface{}) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Info(msg string, fields map[string]interface{}) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Error(msg string, fields map[string]interface{}) {
	l.log.Error().Fields(fields).Msg(msg)
}

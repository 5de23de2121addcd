// Package obslog adapts the simulator's logging surface onto zerolog:
// a Level/Logger shape for the simulator harness, backed by a
// console writer rather than a bare *log.Logger.
package obslog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Level is a logging severity, ordered low to high.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level's name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger is the logging interface the simulator harness depends on;
// the protocol core packages do not log.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level Level)
}

// ZerologLogger implements Logger over a zerolog.Logger with a
// console writer, the way InitLogger sets one up for an application.
type ZerologLogger struct {
	level  Level
	logger zerolog.Logger
}

// NewLogger builds a ZerologLogger for app, writing to stdout through a
// timestamped console writer.
func NewLogger(app string, level Level) *ZerologLogger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	return &ZerologLogger{
		level:  level,
		logger: zerolog.New(output).With().Timestamp().Str("app", app).Logger().Level(level.zerologLevel()),
	}
}

// Debug logs at debug level.
func (l *ZerologLogger) Debug(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Info logs at info level.
func (l *ZerologLogger) Info(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warn logs at warn level.
func (l *ZerologLogger) Warn(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

// Error logs at error level.
func (l *ZerologLogger) Error(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

// SetLevel changes the minimum level the underlying zerolog.Logger
// emits.
func (l *ZerologLogger) SetLevel(level Level) {
	l.level = level
	l.logger = l.logger.Level(level.zerologLevel())
}

// NoOpLogger discards everything logged to it.
type NoOpLogger struct{}

// NewNoOpLogger returns a Logger that discards all output.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (l *NoOpLogger) Debug(format string, args ...interface{}) {}
func (l *NoOpLogger) Info(format string, args ...interface{})  {}
func (l *NoOpLogger) Warn(format string, args ...interface{})  {}
func (l *NoOpLogger) Error(format string, args ...interface{}) {}
func (l *NoOpLogger) SetLevel(level Level)                     {}

var defaultLogger Logger = NewLogger("ualink", LevelInfo)

// SetDefault replaces the package-level default logger.
func SetDefault(l Logger) { defaultLogger = l }

// GetDefault returns the package-level default logger.
func GetDefault() Logger { return defaultLogger }

// Debug logs at debug level on the default logger.
func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }

// Info logs at info level on the default logger.
func Info(format string, args ...interface{}) { defaultLogger.Info(format, args...) }

// Warn logs at warn level on the default logger.
func Warn(format string, args ...interface{}) { defaultLogger.Warn(format, args...) }

// Error logs at error level on the default logger.
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }

package internal

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel represents different logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// Logger provides leveled logging on top of logrus
type Logger struct {
	level LogLevel
	entry *logrus.Entry
}

// NewLogger creates a new logger with the specified level writing text to stderr
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithOutput(level, "text", os.Stderr)
}

// NewLoggerWithOutput creates a logger with an explicit format ("json" or "text") and sink
func NewLoggerWithOutput(level LogLevel, format string, out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(toLogrusLevel(level))
	if strings.EqualFold(format, "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return &Logger{level: level, entry: logrus.NewEntry(base)}
}

// NewLoggerFromConfig builds a logger from LOG_LEVEL-style strings
func NewLoggerFromConfig(levelStr, format string) *Logger {
	return NewLoggerWithOutput(ParseLogLevel(levelStr), format, os.Stderr)
}

// NopLogger discards everything; handy in tests
func NopLogger() *Logger {
	return NewLoggerWithOutput(LogLevelError, "text", io.Discard)
}

// ParseLogLevel maps ERROR/WARN/INFO/DEBUG/TRACE to a level, defaulting to INFO
func ParseLogLevel(levelStr string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "ERROR":
		return LogLevelError
	case "WARN", "WARNING":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

func toLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case LogLevelError:
		return logrus.ErrorLevel
	case LogLevelWarn:
		return logrus.WarnLevel
	case LogLevelDebug:
		return logrus.DebugLevel
	case LogLevelTrace:
		return logrus.TraceLevel
	default:
		return logrus.InfoLevel
	}
}

// WithField returns a child logger carrying one structured field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{level: l.level, entry: l.entry.WithField(key, value)}
}

// WithFields returns a child logger carrying several structured fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{level: l.level, entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithError attaches an error field
func (l *Logger) WithError(err error) *Logger {
	return &Logger{level: l.level, entry: l.entry.WithError(err)}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Info logs info messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Trace logs trace messages
func (l *Logger) Trace(format string, args ...interface{}) {
	l.entry.Tracef(format, args...)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields holds structured key/value pairs attached to a log entry
type Fields map[string]any

// Logger is the structured logging interface used across the module
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warn(msg string, fields ...Fields)
	Error(err error, msg string, fields ...Fields)

	// WithFields returns a child logger that attaches fields to every entry
	WithFields(fields Fields) Logger
}

// Config controls the output of loggers created by NewLogger
type Config struct {
	Level  string    `json:"level" yaml:"level"`
	Format string    `json:"format" yaml:"format"` // "json" or "text"
	Output io.Writer `json:"-" yaml:"-"`
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}
}

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogger creates a logrus-backed Logger from config
func NewLogger(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}

	base := logrus.New()
	if config.Output != nil {
		base.SetOutput(config.Output)
	}

	switch strings.ToLower(config.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	return &logrusLogger{entry: logrus.NewEntry(base)}
}

// NewDefaultLogger creates a Logger with the default configuration
func NewDefaultLogger() Logger {
	return NewLogger(DefaultConfig())
}

func (l *logrusLogger) Debug(msg string, fields ...Fields) {
	l.with(fields).Debug(msg)
}

func (l *logrusLogger) Info(msg string, fields ...Fields) {
	l.with(fields).Info(msg)
}

func (l *logrusLogger) Warn(msg string, fields ...Fields) {
	l.with(fields).Warn(msg)
}

func (l *logrusLogger) Error(err error, msg string, fields ...Fields) {
	entry := l.with(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) with(fields []Fields) *logrus.Entry {
	entry := l.entry
	for _, f := range fields {
		if len(f) > 0 {
			entry = entry.WithFields(logrus.Fields(f))
		}
	}
	return entry
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewDefaultLogger()
)

// SetGlobalLogger replaces the logger used by the package-level helpers
func SetGlobalLogger(logger Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the logger used by the package-level helpers
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithFields returns a child of the global logger
func WithFields(fields Fields) Logger {
	return GetGlobalLogger().WithFields(fields)
}

func Debug(msg string, fields ...Fields) {
	GetGlobalLogger().Debug(msg, fields...)
}

func Info(msg string, fields ...Fields) {
	GetGlobalLogger().Info(msg, fields...)
}

func Warn(msg string, fields ...Fields) {
	GetGlobalLogger().Warn(msg, fields...)
}

func Error(err error, msg string, fields ...Fields) {
	GetGlobalLogger().Error(err, msg, fields...)
}

// Package logger provides a thin structured logging wrapper around zap.
package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains logger configuration
type Config struct {
	Level  string // "debug", "info", "warn", or "error"
	Format string // "json" or "console"
}

// Logger wraps a zap logger
type Logger struct {
	zl *zap.Logger
}

// Field is a structured log field
type Field = zap.Field

// New creates a new logger from the given configuration
func New(cfg Config) (*Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info", "":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level: %s", cfg.Level)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch cfg.Format {
	case "console":
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json", "":
		zapCfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	zl, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Logger{zl: zl}, nil
}

// NewNop returns a logger that discards all output, for use in tests
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// Named returns a copy of the logger with the given name segment appended
func (l *Logger) Named(name string) *Logger {
	return &Logger{zl: l.zl.Named(name)}
}

// With returns a copy of the logger with the given fields attached
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{zl: l.zl.With(fields...)}
}

// Debug logs a message at debug level
func (l *Logger) Debug(msg string, fields ...Field) {
	l.zl.Debug(msg, fields...)
}

// Info logs a message at info level
func (l *Logger) Info(msg string, fields ...Field) {
	l.zl.Info(msg, fields...)
}

// Warn logs a message at warn level
func (l *Logger) Warn(msg string, fields ...Field) {
	l.zl.Warn(msg, fields...)
}

// Error logs a message at error level
func (l *Logger) Error(msg string, fields ...Field) {
	l.zl.Error(msg, fields...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

// String constructs a string field
func String(key, value string) Field { return zap.String(key, value) }

// Int constructs an int field
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 constructs an int64 field
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Float constructs a float64 field
func Float(key string, value float64) Field { return zap.Float64(key, value) }

// Bool constructs a bool field
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Duration constructs a duration field
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Time constructs a time field
func Time(key string, value time.Time) Field { return zap.Time(key, value) }

// Any constructs a field with an arbitrary value
func Any(key string, value interface{}) Field { return zap.Any(key, value) }

// Error constructs a field from an error
func Error(err error) Field { return zap.Error(err) }

package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ComponentField = "component"
	FlagIDField    = "flag_id"
)

// Logger wraps a zap logger and carries a set of fields applied to every entry.
type Logger struct {
	Logger *zap.Logger
	fields []zap.Field
}

// NewLogger returns a Logger backed by l. A nil zap logger produces a no-op Logger.
func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{Logger: l}
}

// NewZapLogger builds a zap logger for the given level. format is "json" or "console".
func NewZapLogger(level string, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("unable to build logger: %w", err)
	}
	return l, nil
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, l.with(fields)...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, l.with(fields)...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, l.with(fields)...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, l.with(fields)...)
}

// WithFields returns a child Logger that adds fields to every entry.
func (l *Logger) WithFields(fields ...zap.Field) *Logger {
	return &Logger{
		Logger: l.Logger,
		fields: append(append([]zap.Field{}, l.fields...), fields...),
	}
}

// Component is shorthand for WithFields(zap.String(ComponentField, name)).
func (l *Logger) Component(name string) *Logger {
	return l.WithFields(zap.String(ComponentField, name))
}

func (l *Logger) with(fields []zap.Field) []zap.Field {
	if len(l.fields) == 0 {
		return fields
	}
	return append(append([]zap.Field{}, l.fields...), fields...)
}

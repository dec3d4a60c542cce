// Package logger builds the zap loggers used across the engine and holds the process-wide logger instance.
// By default every package logs into a no-op logger until SetLogger is called.
package logger

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the settings used to construct a logger.
type Config struct {
	// Environment selects development behavior ("development") or production behavior (anything else).
	Environment string
	// Level is the minimum enabled level: debug, info, warn or error.
	Level string
	// Encoding is either "json" or "console".
	Encoding string
	// Component is attached to every entry as the "component" field.
	Component string
}

var loggerPtr atomic.Pointer[zap.Logger]

func init() {
	loggerPtr.Store(zap.NewNop())
}

// New creates a zap logger from the given configuration.
// Empty fields fall back to development / info / console.
//
// Parameters:
//   - cfg: the logger configuration
//
// Returns:
//   - *zap.Logger: the constructed logger
//   - error: error if the zap configuration could not be built
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "console"
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Encoding == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zc := zap.Config{
		Level:            ParseLevel(cfg.Level),
		Development:      cfg.Environment == "development",
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	if cfg.Component != "" {
		l = l.With(zap.String("component", cfg.Component))
	}
	return l, nil
}

// ParseLevel converts a textual level into an atomic zap level, defaulting to info.
//
// Parameters:
//   - level: the textual level
//
// Returns:
//   - zap.AtomicLevel: the parsed level
func ParseLevel(level string) zap.AtomicLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn", "warning":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// SetLogger replaces the process-wide logger. Passing nil restores the silent no-op logger.
// Safe for concurrent use.
//
// Parameters:
//   - l: the logger to install
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

// L returns the process-wide logger.
func L() *zap.Logger {
	return loggerPtr.Load()
}

// Named returns a child of the process-wide logger with the given name.
func Named(name string) *zap.Logger {
	return loggerPtr.Load().Named(name)
}

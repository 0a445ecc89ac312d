// Package logger builds the zap loggers used across the application.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the log encoding.
type Format string

const (
	// FormatCLI writes terse console lines to stderr. Only warnings and above
	// are shown unless debug is on, so command output stays clean.
	FormatCLI Format = "cli"
	// FormatJSON is the structured production encoding.
	FormatJSON Format = "json"
	// FormatConsole is the development console encoding.
	FormatConsole Format = "console"
)

// New creates a logger in the given format.
func New(format Format, debug bool) (*zap.Logger, error) {
	switch format {
	case FormatJSON:
		return newJSON(debug)
	case FormatConsole:
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = level(debug, zapcore.InfoLevel)
		return cfg.Build()
	case FormatCLI, "":
		return newCLI(debug), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func level(debug bool, normal zapcore.Level) zap.AtomicLevel {
	if debug {
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zap.NewAtomicLevelAt(normal)
}

func newJSON(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = level(debug, zapcore.InfoLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	return cfg.Build()
}

func newCLI(debug bool) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level(debug, zapcore.WarnLevel))
	return zap.New(core)
}

// Sync flushes buffered entries. Safe to call with nil and more than once.
func Sync(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	return logger.Sync()
}

// Package logging builds the process zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// SystemTraceID tags lifecycle logs that have no distributed trace.
	SystemTraceID = "system"
	SystemSpanID  = "system"
)

// Options controls the logger. Zero values mean JSON at info level on stdout.
type Options struct {
	Service string
	Env     string
	// Level is a zap level name ("debug", "warn").
	Level string
	// File, when set, receives a copy of every entry.
	File string
	// Console switches to the human-readable encoder for local runs.
	Console bool
}

// OptionsFromEnv reads LOG_LEVEL, LOG_FILE and LOG_FORMAT=console.
func OptionsFromEnv(service, env string) Options {
	return Options{
		Service: service,
		Env:     env,
		Level:   os.Getenv("LOG_LEVEL"),
		File:    os.Getenv("LOG_FILE"),
		Console: os.Getenv("LOG_FORMAT") == "console",
	}
}

// NewLogger returns a production zap logger tagged with service and env.
func NewLogger(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts.Console {
		cfg.Encoding = "console"
	}
	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	if opts.File != "" {
		if err := ensureLogFile(opts.File); err != nil {
			return nil, fmt.Errorf("logging: prepare %s: %w", opts.File, err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
		cfg.ErrorOutputPaths = append(cfg.ErrorOutputPaths, opts.File)
	}
	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: level %q: %w", opts.Level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	enc := &cfg.EncoderConfig
	enc.TimeKey, enc.MessageKey = "ts", "msg"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	enc.EncodeLevel = zapcore.LowercaseLevelEncoder

	cfg.InitialFields = map[string]any{"service": opts.Service, "env": opts.Env}
	return cfg.Build()
}

// WithTrace binds trace_id and span_id; empty ids become "unknown" so the
// fields are always present for log queries.
func WithTrace(logger *zap.Logger, traceID, spanID string) *zap.Logger {
	if logger == nil {
		logger = zap.L()
	}
	orUnknown := func(s string) string {
		if s == "" {
			return "unknown"
		}
		return s
	}
	return logger.With(
		zap.String("trace_id", orUnknown(traceID)),
		zap.String("span_id", orUnknown(spanID)),
	)
}

func ensureLogFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

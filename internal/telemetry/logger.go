// Package telemetry wires up the shared zap logger and the "log every Nth
// occurrence" sampling policy spec.md §7 requires for malformed packets,
// unregistered senders, IP mismatches and decode failures. Queue overflows
// are counted by the queues themselves and are not logged.
package telemetry

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process-wide structured logger. level is parsed via
// zapcore.ParseLevel ("debug", "info", "warn", "error"); an empty or
// unrecognized value falls back to info, matching the teacher's own
// best-effort logging setup (voice-client/internal/client/logging.go logs
// to a file and never fails the caller over a logging misconfiguration).
func NewLogger(component string, level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if level == "" {
		lvl = zapcore.InfoLevel
	} else if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("telemetry: build logger: %w", err)
	}
	return logger.With(zap.String("component", component)), nil
}

// NewDevLogger is used by tests and the occasional CLI debug run where a
// human-readable console encoder beats JSON.
func NewDevLogger(component string) *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger.With(zap.String("component", component))
}

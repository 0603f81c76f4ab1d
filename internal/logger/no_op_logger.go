package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

// NewNoOpLogger returns a logger that doesn't produce output
// which is useful for testing
func NewNoOpLogger() *Logger {
	return &Logger{
		Logger: zap.NewNop(),
	}
}

// NewObservedLogger returns a logger whose entries can be inspected by tests.
func NewObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{Logger: zap.New(core)}, logs
}

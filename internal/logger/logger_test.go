package logger

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewWithOptions_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "footprint.log")

	log := NewWithOptions(Options{Level: "info", Format: "json", File: path})
	log.Component("test").Info("hello", String("symbol", "BTCUSDT"))
	_ = log.Sync()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected log file to contain the entry")
	}
}

func TestObservedLogger(t *testing.T) {
	log, logs := NewObservedLogger(zapcore.WarnLevel)
	log.Info("ignored")
	log.Warn("kept", Int("attempt", 3))

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if logs.All()[0].ContextMap()["attempt"] != int64(3) {
		t.Errorf("unexpected context: %v", logs.All()[0].ContextMap())
	}
}

package utils

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		debug   bool
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"debug mode", true, "", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"production mode", false, "", zapcore.InfoLevel, zapcore.DebugLevel},
		{"override in production", false, "warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"override in debug", true, "error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.debug, tt.level)
			if err != nil {
				t.Fatalf("NewLogger error: %v", err)
			}
			defer func() { _ = logger.Sync() }()
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("level %s should be enabled", tt.enabled)
			}
			if logger.Core().Enabled(tt.muted) {
				t.Errorf("level %s should be muted", tt.muted)
			}
		})
	}
}

func TestNewLogger_invalidLevel(t *testing.T) {
	if _, err := NewLogger(false, "chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger: console output at debug level when debug is set,
// JSON at info level otherwise. A non-empty level ("debug", "info", "warn", "error")
// overrides the default level of either mode.
func NewLogger(debug bool, level ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	if len(level) > 0 && level[0] != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level[0])); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level[0], err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}

package logger

import (
	"fmt"
	"os"
)

// LegacyEnvVar switches New to the fmt-based logger
const LegacyEnvVar = "DEDUPLIFY_USE_LEGACY_LOGGER"

// New 建立 logger；呼叫端負責在結束時 Shutdown
//
// Loggers are passed explicitly to every component; there is no package-level
// default instance.
func New(config Config) (Logger, error) {
	// 檢查是否使用舊版 logger（回退機制）
	if os.Getenv(LegacyEnvVar) == "true" {
		legacy := NewLegacyLogger()
		legacy.SetLevel(config.Level)
		return legacy, nil
	}

	logger, err := NewSlogLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create slog logger: %w", err)
	}
	return logger, nil
}

// Nop returns a logger that discards everything
func Nop() Logger {
	return &NullLogger{}
}

// OrNop returns l, or a NullLogger when l is nil
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// NullLogger 空 logger（不做任何事）
type NullLogger struct{}

func (n *NullLogger) Debug(msg string, args ...any) {}
func (n *NullLogger) Info(msg string, args ...any)  {}
func (n *NullLogger) Warn(msg string, args ...any)  {}
func (n *NullLogger) Error(msg string, args ...any) {}
func (n *NullLogger) With(args ...any) Logger       { return n }
func (n *NullLogger) Sync() error                   { return nil }
func (n *NullLogger) Shutdown() error               { return nil }

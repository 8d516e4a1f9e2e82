// Package logging builds the process wide zap logger.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger at level. Development loggers write console output
// with stack traces on warnings, production loggers write JSON.
func New(level zapcore.Level, development bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableCaller = !development
	return cfg.Build()
}

// Install makes logger the global one returned by zap.L until the returned
// func is called. The logger is synced on restore.
func Install(logger *zap.Logger) (restore func()) {
	undo := zap.ReplaceGlobals(logger)
	return func() {
		undo()
		_ = logger.Sync()
	}
}

// Package logging builds the process logger.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process logger. Level can be changed while running; it is served
// over HTTP by the admin log-level route.
type Log struct {
	Base  *zap.Logger
	Level zap.AtomicLevel
}

// Init builds a JSON logger for production environments and a console logger
// otherwise. An unknown level name means info.
func Init(level, env string) (*Log, error) {
	lvl, err := zap.ParseAtomicLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	cfg := zap.NewDevelopmentConfig()
	if production(env) {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, err
	}
	return &Log{Base: base, Level: lvl}, nil
}

// Sync flushes buffered entries.
func (l *Log) Sync() {
	_ = l.Base.Sync()
}

func production(env string) bool {
	switch strings.ToLower(env) {
	case "prod", "production":
		return true
	}
	return false
}

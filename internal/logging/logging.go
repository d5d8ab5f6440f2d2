// Package logging builds the zap loggers used across the service.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger, or a console logger when env is
// "development".
func New(level, env string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if env == "development" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// WithFileSink tees base into a fresh timestamped plain-text file under dir.
// The returned release func must be called (defer it) once the scoped work
// is over; it flushes and closes the file. The file path is returned so the
// caller can hand the log to the operator.
func WithFileSink(base *zap.Logger, dir, tag string) (*zap.Logger, string, func() error, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", nil, fmt.Errorf("logging: ensure sink dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.txt", tag, time.Now().Format("2006-01-02_15-04-05.000"))
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", nil, fmt.Errorf("logging: open sink: %w", err)
	}

	// message-only lines, the file is meant to be read by a human
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	fileCore := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.DebugLevel)

	scoped := base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))

	release := func() error {
		_ = scoped.Sync()
		return f.Close()
	}
	return scoped, path, release, nil
}

// Package logging builds the zap loggers used across fieldscan.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the process logger.
type Options struct {
	Level       string
	Development bool
	// File, when set, receives log output instead of stderr. The TUI uses
	// this so logs do not corrupt the screen.
	File        string
	MaxFileSize int64
}

// New builds a logger from opts and installs it as the zap global.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil && opts.Level != "" {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	if opts.Level == "" {
		level = zapcore.InfoLevel
	}

	var enc zapcore.Encoder
	if opts.Development {
		cfg := zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	}

	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	if opts.File != "" {
		rf, err := NewRotatingFile(opts.File, opts.MaxFileSize)
		if err != nil {
			return nil, err
		}
		sink = rf
	}

	logger := zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller())
	zap.ReplaceGlobals(logger)
	return logger, nil
}

// NewFileLogger returns a JSON logger writing to a size-rotated file at
// path. It is used for dedicated event logs such as heartbeat warnings.
func NewFileLogger(path string, maxBytes int64) (*zap.Logger, error) {
	rf, err := NewRotatingFile(path, maxBytes)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), rf, zapcore.DebugLevel)
	return zap.New(core), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// Package logging builds the zap logger used by the builder: human-readable
// output on stderr, and the same events in a log file for later inspection.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is console or json.
	Format string
	// File, when set, receives a copy of every entry. It is truncated on open.
	File string
	// Console defaults to os.Stderr.
	Console io.Writer
}

// New returns a logger and a close func that syncs and releases the log file.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	switch opts.Format {
	case "", "console":
		cc := encCfg
		cc.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(cc)
	case "json":
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(console), level),
	}

	closeFn := func() error { return nil }
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
		closeFn = f.Close
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}

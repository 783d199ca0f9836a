// Package logging builds the zap logger used by every command.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger writing to stderr. format is "console" or "json".
func New(level, format string) (*zap.Logger, error) {
	return NewWithWriter(level, format, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(level, format string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	enc, err := newEncoder(format)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// NewFile creates a logger appending to the file at path. An empty path
// returns a logger that only writes errors, to stderr.
func NewFile(level, format, path string) (*zap.Logger, func() error, error) {
	if path == "" {
		logger, err := NewWithWriter("error", format, os.Stderr)
		return logger, func() error { return nil }, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("log file: %w", err)
	}
	logger, err := NewWithWriter(level, format, f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return logger, f.Close, nil
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case "", "console":
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encoderCfg), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Package observability holds the process-wide loggers.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger commands write diagnostics to. It always writes
// to stderr so stdout stays reserved for JSONL records.
var CLILogger = zap.NewNop()

// InitCLILogger replaces CLILogger with a console logger named name. Debug
// output is enabled when verbose is set.
func InitCLILogger(name string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	CLILogger = NewLogger(name, level, zapcore.Lock(os.Stderr))
}

// NewLogger builds a console logger writing to w at level.
func NewLogger(name string, level zapcore.Level, w zapcore.WriteSyncer) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), w, level)
	return zap.New(core).Named(name)
}

// ParseLevel maps a config level name ("debug", "info", "warn", "error")
// to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

// SetLevel rebuilds CLILogger at the configured level.
func SetLevel(name, level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	CLILogger = NewLogger(name, l, zapcore.Lock(os.Stderr))
	return nil
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logFilePath returns the path to the convo log file.
func logFilePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "convo.log"), nil
}

// LogPath returns the log file path.
func LogPath() string {
	p, err := logFilePath()
	if err != nil {
		return ""
	}
	return p
}

// NewLogger builds a JSON logger appending to ~/.local/share/convo/convo.log.
// The terminal belongs to the UI, so nothing is written to stderr. When the
// data directory is unavailable a no-op logger is returned.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return zap.NewNop(), err
	}
	p, err := logFilePath()
	if err != nil {
		return zap.NewNop(), nil
	}
	return newFileLogger(p, lvl)
}

func newFileLogger(path string, lvl zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop(), fmt.Errorf("building logger: %w", err)
	}
	return l, nil
}

// ParseLogLevel maps a level name to a zap level. Empty means info.
func ParseLogLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q (use debug, info, warn, error)", s)
	}
	return lvl, nil
}

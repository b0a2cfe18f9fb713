package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogMode selects where diagnostic logs go for the active surface
type LogMode int

const (
	// LogStderr writes warnings to stderr (plain, json and bridge surfaces)
	LogStderr LogMode = iota
	// LogFileOnly keeps the terminal clean for the live document
	LogFileOnly
)

// newLogger builds the process logger.
// Verbose drops the level to debug and adds a log file under ~/.vantage/logs.
// In LogFileOnly mode without verbose, logging is discarded.
func newLogger(mode LogMode, verbose bool) (*zap.Logger, error) {
	if mode == LogFileOnly && !verbose {
		return zap.NewNop(), nil
	}

	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)

	var outputs []string
	if mode == LogStderr {
		outputs = append(outputs, "stderr")
	}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		path, err := logFilePath(time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		outputs = append(outputs, path)
	}
	config.OutputPaths = outputs
	config.ErrorOutputPaths = outputs

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func logFilePath(now time.Time) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".vantage", "logs")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "vantage-"+now.UTC().Format("20060102-150405")+".log"), nil
}

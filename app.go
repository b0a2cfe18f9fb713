package main

import (
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

// app holds the long-lived collaborators shared by the commands
type app struct {
	cfg      *Config
	logger   *zap.Logger
	client   *OllamaClient
	history  *HistoryStore
	analyzer *Analyzer
}

// newApp loads configuration, applies the global flags and wires the pipeline
func newApp(mode LogMode) (*app, error) {
	cfg := LoadConfig()
	if modelFlag != "" {
		cfg.Model = modelFlag
	}
	if endpointFlag != "" {
		cfg.Endpoint = endpointFlag
	}

	logger, err := newLogger(mode, verbose || cfg.Debug)
	if err != nil {
		return nil, err
	}

	headers, err := NewHeaderFinder(logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		client: NewOllamaClient(cfg.Endpoint, cfg.ConnectTimeout, logger),
	}

	if cfg.HistoryPath != "" {
		history, err := OpenHistory(cfg.HistoryPath)
		if err != nil {
			logger.Warn("History disabled", zap.String("path", cfg.HistoryPath), zap.Error(err))
		} else {
			a.history = history
		}
	}

	a.analyzer = NewAnalyzer(cfg, a.client, headers, a.history, logger)

	logger.Debug("Configuration loaded",
		zap.String("model", cfg.Model),
		zap.String("endpoint", cfg.Endpoint),
		zap.Duration("connect_timeout", cfg.ConnectTimeout),
		zap.Int("max_prompt_chars", cfg.MaxPromptChars),
		zap.String("history", cfg.HistoryPath))
	return a, nil
}

func (a *app) Close() {
	a.client.Close()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("Failed to close history", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

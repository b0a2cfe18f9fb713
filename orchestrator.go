package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const readBufferSize = 32 * 1024

// Generator opens a streaming generation request
type Generator interface {
	Generate(ctx context.Context, req PromptRequest) (io.ReadCloser, error)
	Endpoint() string
	ConnectTimeout() time.Duration
}

// AnalysisRequest is one analysis of a selection from a file
type AnalysisRequest struct {
	FilePath  string
	Selection string
	Model     string
	// NoSave skips the artifact and history row
	NoSave bool
}

// Outcome summarizes a finished analysis
type Outcome struct {
	Reasoning string
	Answer    string
	// Completed is true when the server sent its terminal record
	Completed bool
	Artifact  *Artifact
	Err       *UserError
	Context   ContextInclusion
	Duration  time.Duration
}

// Succeeded reports a normal completion with a non-empty answer
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Completed
}

// Analyzer runs analyses one at a time against a model server
type Analyzer struct {
	cfg       *Config
	client    Generator
	builder   *PromptBuilder
	headers   *HeaderFinder
	persister *ResultPersister
	history   *HistoryStore
	logger    *zap.Logger

	slot chan struct{}
}

// NewAnalyzer wires the pipeline. history may be nil.
func NewAnalyzer(cfg *Config, client Generator, headers *HeaderFinder, history *HistoryStore, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		cfg:       cfg,
		client:    client,
		builder:   NewPromptBuilder(cfg),
		headers:   headers,
		persister: NewResultPersister(),
		history:   history,
		logger:    logger,
		slot:      make(chan struct{}, 1),
	}
}

// Run performs one analysis and streams progress to surface.
// Concurrent calls are serialized; a waiting call returns early only if ctx ends.
// Every failure is reported to the surface once and returned in the Outcome.
func (a *Analyzer) Run(ctx context.Context, req AnalysisRequest, surface Surface) Outcome {
	select {
	case a.slot <- struct{}{}:
	default:
		a.logger.Info("Waiting for in-flight analysis", zap.String("file", req.FilePath))
		select {
		case a.slot <- struct{}{}:
		case <-ctx.Done():
			return Outcome{Err: ErrStreamInterrupted(ctx.Err())}
		}
	}
	defer func() { <-a.slot }()

	start := time.Now()
	out := a.run(ctx, req, surface)
	out.Duration = time.Since(start)

	fields := []zap.Field{
		zap.String("file", req.FilePath),
		zap.Bool("completed", out.Completed),
		zap.Int("answer_chars", runeLen(out.Answer)),
		zap.Int("reasoning_chars", runeLen(out.Reasoning)),
		zap.Duration("duration", out.Duration),
	}
	if out.Err != nil {
		a.logger.Warn("Analysis failed", append(fields, zap.String("kind", string(out.Err.Kind)), zap.Error(out.Err))...)
	} else {
		a.logger.Info("Analysis complete", fields...)
	}
	return out
}

func (a *Analyzer) run(ctx context.Context, req AnalysisRequest, surface Surface) Outcome {
	started := time.Now()
	model := req.Model
	if model == "" {
		model = a.cfg.Model
	}

	if err := ValidateSelection(req.Selection, a.cfg.MaxPromptChars); err != nil {
		return a.reject(surface, err)
	}

	contextText := a.headers.Find(req.FilePath)
	built, err := a.builder.Build(req.Selection, contextText, BuildContextIntro(req.FilePath))
	if err != nil {
		return a.reject(surface, err)
	}

	prompt := PromptRequest{
		Model:  model,
		System: BuildSystemPrompt(filepath.Ext(req.FilePath)),
		Prompt: built.Text,
		Stream: true,
	}

	a.logger.Info("Starting analysis",
		zap.String("file", req.FilePath),
		zap.String("model", model),
		zap.Int("selection_chars", runeLen(req.Selection)),
		zap.Int("context_chars", runeLen(contextText)),
		zap.Stringer("context", built.Context),
		zap.Int("prompt_chars", runeLen(built.Text)),
		zap.Int("prompt_tokens_est", EstimateTokensOrZero(prompt.System+prompt.Prompt)))

	panel := NewPanel(surface, a.logger, filepath.Base(req.FilePath), req.Selection)
	defer func() {
		panel.Dispose()
		a.logger.Debug("Panel disposed", zap.Int("pushes", panel.Pushes()))
	}()

	out := Outcome{Context: built.Context}
	fail := func(err *UserError) Outcome {
		panel.Update(PresentationState{
			ReasoningText: out.Reasoning,
			AnswerText:    out.Answer,
			IsComplete:    true,
		})
		panel.Fail(err)
		out.Err = err
		return out
	}

	if err := sleepCtx(ctx, a.cfg.RenderDelay); err != nil {
		return fail(ErrStreamInterrupted(err))
	}

	body, err := a.client.Generate(ctx, prompt)
	if err != nil {
		return fail(classifyTransportError(err, a.client.Endpoint(), a.client.ConnectTimeout()))
	}
	defer body.Close()

	// Completion is pushed by this function, after persistence
	parser := NewStreamParser(a.logger, func(s PresentationState) {
		if !s.IsComplete {
			panel.Update(s)
		}
	})

	streamErr := consume(body, parser)
	res, finishErr := parser.Finish()
	out.Reasoning, out.Answer, out.Completed = res.Reasoning, res.Answer, res.Completed
	if res.Malformed > 0 {
		a.logger.Warn("Stream contained malformed records", zap.Int("count", res.Malformed))
	}
	if streamErr == nil {
		streamErr = finishErr
	}

	switch {
	case streamErr != nil:
		var userErr *UserError
		if errors.As(streamErr, &userErr) {
			return fail(userErr)
		}
		return fail(ErrStreamInterrupted(streamErr))
	case !res.Completed:
		return fail(ErrIncompleteResponse(runeLen(res.Answer)))
	case strings.TrimSpace(res.Answer) == "":
		return fail(ErrEmptyResponse())
	}

	if !req.NoSave {
		out.Artifact = a.save(ctx, req, model, built, res, started)
	}

	panel.Update(PresentationState{
		ReasoningText: res.Reasoning,
		AnswerText:    res.Answer,
		IsComplete:    true,
	})
	if out.Artifact != nil {
		panel.Saved(out.Artifact.Path)
	}
	return out
}

// reject reports a failure that happens before any panel exists
func (a *Analyzer) reject(surface Surface, err error) Outcome {
	userErr := AsUserError(err)
	(&Panel{surface: surface, logger: a.logger}).Fail(userErr)
	return Outcome{Err: userErr}
}

// save persists the artifact and its history row. Failures are logged only.
func (a *Analyzer) save(ctx context.Context, req AnalysisRequest, model string, built BuiltPrompt, res ParseResult, started time.Time) *Artifact {
	artifact, err := a.persister.Persist(req.Selection, model, res.Answer, req.FilePath)
	if err != nil {
		a.logger.Error("Failed to save analysis", zap.Error(err))
		return nil
	}
	a.logger.Info("Analysis saved", zap.String("path", artifact.Path))

	if a.history == nil {
		return artifact
	}
	entry := &HistoryEntry{
		AnalyzedAt:     artifact.Analyzed,
		File:           req.FilePath,
		Model:          model,
		ArtifactPath:   artifact.Path,
		AnswerChars:    runeLen(res.Answer),
		ReasoningChars: runeLen(res.Reasoning),
		PromptChars:    runeLen(built.Text),
		Duration:       time.Since(started),
	}
	if err := a.history.Record(ctx, entry); err != nil {
		a.logger.Error("Failed to record history", zap.Error(err))
	}
	return artifact
}

// consume feeds body to parser chunk by chunk until the terminal record, EOF or an error
func consume(body io.Reader, parser *StreamParser) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if ferr := parser.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if parser.Done() || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrStreamError, err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

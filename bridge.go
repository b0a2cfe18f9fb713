package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	maxBridgeLine = 8 * 1024 * 1024
	// analyses queued beyond this block the request reader
	bridgeQueueDepth = 64
)

// ModelLister lists the models a server can run
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// BridgeRequest is one JSON line from the editor plugin
type BridgeRequest struct {
	Action    string `json:"action"`
	RequestID string `json:"request_id"`
	File      string `json:"file"`
	Selection string `json:"selection"`
	Lines     string `json:"lines"`
	Model     string `json:"model"`
	NoSave    bool   `json:"no_save"`
}

// EventWriter serializes JSON-line events onto one stream
type EventWriter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *zap.Logger
}

// NewEventWriter writes one JSON object per line to w
func NewEventWriter(w io.Writer, logger *zap.Logger) *EventWriter {
	return &EventWriter{enc: json.NewEncoder(w), logger: logger}
}

// Send writes data tagged with reqID
func (e *EventWriter) Send(reqID string, data map[string]any) {
	if reqID != "" {
		data["request_id"] = reqID
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(data); err != nil {
		e.logger.Warn("Failed to write event", zap.Any("type", data["type"]), zap.Error(err))
	}
}

// SendError writes an error event for err
func (e *EventWriter) SendError(reqID string, err error) {
	userErr := AsUserError(err)
	e.Send(reqID, map[string]any{
		"type":       "error",
		"kind":       string(userErr.Kind),
		"message":    userErr.Message,
		"suggestion": userErr.Suggestion,
	})
}

// eventSurface streams presentation updates as JSON-line events
type eventSurface struct {
	w     *EventWriter
	reqID string
}

func (s *eventSurface) Open(title, source string) {
	s.w.Send(s.reqID, map[string]any{"type": "started", "file": title, "selection_chars": runeLen(source)})
}

func (s *eventSurface) Render(state PresentationState) {
	s.w.Send(s.reqID, map[string]any{
		"type":        "update",
		"thinking":    state.ReasoningText,
		"analysis":    state.AnswerText,
		"is_thinking": state.IsReasoningPhase,
		"is_complete": state.IsComplete,
	})
}

func (s *eventSurface) Notify(err *UserError) {
	s.w.SendError(s.reqID, err)
}

func (s *eventSurface) Saved(string) {}

func (s *eventSurface) Close() {}

// sendDone reports a successful analysis
func sendDone(w *EventWriter, reqID string, out Outcome) {
	data := map[string]any{
		"type":        "done",
		"duration_ms": out.Duration.Milliseconds(),
		"context":     out.Context.String(),
	}
	if out.Artifact != nil {
		data["artifact"] = out.Artifact.Path
	}
	if blocks := extractCodeBlocks(out.Answer); len(blocks) > 0 {
		data["snippets"] = blocks
	}
	w.Send(reqID, data)
}

// BridgeServer answers editor requests over a JSON-lines stream
type BridgeServer struct {
	analyzer *Analyzer
	models   ModelLister
	events   *EventWriter
	logger   *zap.Logger
	limit    int
}

// NewBridgeServer creates a bridge writing events to out
func NewBridgeServer(analyzer *Analyzer, models ModelLister, out io.Writer, maxChars int, logger *zap.Logger) *BridgeServer {
	return &BridgeServer{
		analyzer: analyzer,
		models:   models,
		events:   NewEventWriter(out, logger),
		logger:   logger,
		limit:    maxChars,
	}
}

// bridgeJob is an accepted analyze request waiting for the worker
type bridgeJob struct {
	reqID    string
	analysis AnalysisRequest
}

// Serve reads requests from in until EOF or ctx ends, then waits for queued analyses.
// Analyses run one at a time in arrival order; other actions are answered immediately.
func (b *BridgeServer) Serve(ctx context.Context, in io.Reader) error {
	var g errgroup.Group
	jobs := make(chan bridgeJob, bridgeQueueDepth)
	g.Go(func() error {
		for job := range jobs {
			b.runJob(ctx, job)
		}
		return nil
	})

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBridgeLine)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		b.handleRequest(ctx, scanner.Text(), jobs)
	}
	close(jobs)

	err := scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		b.events.Send("", map[string]any{
			"type":    "error",
			"kind":    string(KindValidation),
			"message": fmt.Sprintf("Request too large (max %d bytes)", maxBridgeLine),
		})
	}

	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

func (b *BridgeServer) handleRequest(ctx context.Context, line string, jobs chan<- bridgeJob) {
	if line == "" {
		return
	}

	var req BridgeRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		b.logger.Warn("Invalid JSON request", zap.String("line", truncateForLog(line)))
		b.events.Send("", map[string]any{"type": "error", "kind": string(KindValidation), "message": "Invalid JSON"})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	b.logger.Debug("Bridge request", zap.String("action", req.Action), zap.String("request_id", req.RequestID))

	switch req.Action {
	case "ping":
		b.events.Send(req.RequestID, map[string]any{"type": "ok"})

	case "version":
		b.events.Send(req.RequestID, map[string]any{"type": "version", "version": Version})

	case "models":
		models, err := b.models.ListModels(ctx)
		if err != nil {
			b.events.SendError(req.RequestID, classifyTransportError(err, b.analyzer.client.Endpoint(), b.analyzer.client.ConnectTimeout()))
			return
		}
		names := make([]string, 0, len(models))
		for _, m := range models {
			names = append(names, m.Name)
		}
		b.events.Send(req.RequestID, map[string]any{"type": "models", "models": names})

	case "analyze":
		analysis, err := b.analysisFor(req)
		if err != nil {
			b.events.SendError(req.RequestID, err)
			return
		}
		select {
		case jobs <- bridgeJob{reqID: req.RequestID, analysis: analysis}:
		case <-ctx.Done():
			b.events.SendError(req.RequestID, ErrStreamInterrupted(ctx.Err()))
		}

	default:
		b.events.Send(req.RequestID, map[string]any{
			"type":    "error",
			"kind":    string(KindValidation),
			"message": fmt.Sprintf("Unknown action: %q", req.Action),
		})
	}
}

func (b *BridgeServer) runJob(ctx context.Context, job bridgeJob) {
	surface := &eventSurface{w: b.events, reqID: job.reqID}
	out := b.analyzer.Run(ctx, job.analysis, surface)
	if out.Err == nil {
		sendDone(b.events, job.reqID, out)
	}
}

// analysisFor resolves the selection; an empty selection means the file (or --lines range of it)
func (b *BridgeServer) analysisFor(req BridgeRequest) (AnalysisRequest, error) {
	if req.File == "" {
		return AnalysisRequest{}, &UserError{Kind: KindValidation, Message: "Missing required field: file"}
	}

	selection := req.Selection
	if selection == "" {
		var err error
		if selection, err = ReadSelection(req.File, req.Lines); err != nil {
			return AnalysisRequest{}, err
		}
	}

	return AnalysisRequest{
		FilePath:  req.File,
		Selection: selection,
		Model:     req.Model,
		NoSave:    req.NoSave,
	}, nil
}

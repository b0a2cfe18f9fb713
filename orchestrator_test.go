package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func verifyNoLeaks(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

// streamHandler writes each piece as its own flushed chunk
func streamHandler(pieces ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, p := range pieces {
			_, _ = io.WriteString(w, p)
			flusher.Flush()
		}
	}
}

type pipelineFixture struct {
	dir      string
	file     string
	analyzer *Analyzer
	client   *OllamaClient
	surface  *recordingSurface
}

func newPipeline(t *testing.T, endpoint string, timeout time.Duration, history *HistoryStore) *pipelineFixture {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "Driver.c")
	writeFile(t, file, "EFI_STATUS EFIAPI DriverEntry(VOID) { return EFI_SUCCESS; }\n")
	writeFile(t, filepath.Join(dir, "Driver.h"), "#define DRIVER_SIGNATURE SIGNATURE_32('D','R','V','R')\n")

	cfg := DefaultConfig()
	cfg.RenderDelay = 0
	cfg.ConnectTimeout = timeout

	headers, err := NewHeaderFinder(zap.NewNop())
	require.NoError(t, err)

	client := NewOllamaClient(endpoint, timeout, zap.NewNop())
	return &pipelineFixture{
		dir:      dir,
		file:     file,
		analyzer: NewAnalyzer(cfg, client, headers, history, zap.NewNop()),
		client:   client,
		surface:  &recordingSurface{},
	}
}

func (f *pipelineFixture) run(t *testing.T, selection string) Outcome {
	t.Helper()
	return f.analyzer.Run(context.Background(), AnalysisRequest{FilePath: f.file, Selection: selection}, f.surface)
}

func (f *pipelineFixture) artifacts(t *testing.T) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(f.dir, artifactPrefix+"*.md"))
	require.NoError(t, err)
	return matches
}

func TestAnalyzerSuccessPersistsThenCompletes(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(
		`{"response":"<think>"}`+"\n",
		`{"response":"check the `, `signature"}`+"\n"+`{"response":"</think>"}`+"\n",
		`{"response":"Use `+"`CopyMem`"+` from BaseLib."}`+"\n",
		`{"done":true}`+"\n",
	))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	var persistedBeforeFinal bool
	f.surface.onRender = func(s PresentationState) {
		if s.IsComplete {
			persistedBeforeFinal = len(f.artifacts(t)) == 1
		}
	}

	out := f.run(t, "EFI_STATUS Status;")

	require.Nil(t, out.Err)
	assert.True(t, out.Succeeded())
	assert.Equal(t, "check the signature", out.Reasoning)
	assert.Equal(t, "Use `CopyMem` from BaseLib.", out.Answer)
	assert.Equal(t, ContextFull, out.Context)
	require.NotNil(t, out.Artifact)
	assert.True(t, persistedBeforeFinal, "artifact must exist before the completion push")

	states, errs, saved := f.surface.snapshot()
	assert.Empty(t, errs)
	assert.Equal(t, []string{out.Artifact.Path}, saved)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.True(t, last.IsComplete)
	assert.Equal(t, out.Answer, last.AnswerText)
	for _, s := range states[:len(states)-1] {
		assert.False(t, s.IsComplete, "only the final push is complete")
	}

	data, err := os.ReadFile(out.Artifact.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Use `CopyMem` from BaseLib.")
	assert.NotContains(t, string(data), "check the signature", "reasoning is not persisted")
}

func TestAnalyzerSendsHeadersAndLanguagePrompt(t *testing.T) {
	defer verifyNoLeaks(t)

	var got PromptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"response":"ok"}`+"\n"+`{"done":true}`+"\n")
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()
	f.analyzer.cfg.Model = "deepseek-r1:8b"

	out := f.run(t, "VOID Foo(VOID);")
	require.Nil(t, out.Err)

	assert.Equal(t, "deepseek-r1:8b", got.Model)
	assert.True(t, got.Stream)
	assert.Contains(t, got.System, "C programming language for UEFI/BIOS development")
	assert.Contains(t, got.Prompt, "[HEADER DEFINITIONS]\n#define DRIVER_SIGNATURE")
	assert.True(t, strings.HasSuffix(got.Prompt, "[SOURCE CODE]\nVOID Foo(VOID);"))
}

func TestAnalyzerEmptyAnswer(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(`{"response":"<think>only thinking</think>"}`+"\n"+`{"response":"  \n"}`+"\n"+`{"done":true}`+"\n"))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")

	require.NotNil(t, out.Err)
	assert.Equal(t, KindEmptyResponse, out.Err.Kind)
	assert.Equal(t, "Received empty response from Ollama", out.Err.Message)
	assert.Empty(t, f.artifacts(t))

	_, errs, saved := f.surface.snapshot()
	assert.Len(t, errs, 1)
	assert.Empty(t, saved)
}

func TestAnalyzerIncompleteStream(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(`{"response":"partial "}`+"\n", `{"response":"answer"}`+"\n"))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")

	require.NotNil(t, out.Err)
	assert.Equal(t, KindIncompleteResponse, out.Err.Kind)
	assert.False(t, out.Completed)
	assert.Equal(t, "partial answer", out.Answer)
	assert.Empty(t, f.artifacts(t))

	states, _, _ := f.surface.snapshot()
	require.NotEmpty(t, states)
	assert.Equal(t, "partial answer", states[len(states)-1].AnswerText)
	assert.True(t, states[len(states)-1].IsComplete)
}

func TestAnalyzerStreamInterrupted(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = io.WriteString(w, `{"response":"half an ans"}`+"\n")
		w.(http.Flusher).Flush()
		// drop the connection without the terminating chunk
		panic(http.ErrAbortHandler)
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")

	require.NotNil(t, out.Err)
	assert.Equal(t, KindTransport, out.Err.Kind)
	assert.ErrorIs(t, out.Err, ErrStreamError)
	assert.Equal(t, "half an ans", out.Answer)
	assert.Empty(t, f.artifacts(t))

	states, errs, _ := f.surface.snapshot()
	assert.Len(t, errs, 1)
	require.NotEmpty(t, states)
	assert.True(t, states[len(states)-1].IsComplete)
}

func TestAnalyzerMalformedLineIgnored(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(`{"response":"a"}`+"\n"+`{garbage`+"\n"+`{"response":"b"}`+"\n"+`{"done":true}`+"\n"))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")
	require.Nil(t, out.Err)
	assert.Equal(t, "ab", out.Answer)
	assert.Len(t, f.artifacts(t), 1)
}

func TestAnalyzerServerError(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")

	require.NotNil(t, out.Err)
	assert.Equal(t, KindTransport, out.Err.Kind)
	assert.Equal(t, "Ollama API error: 500 - boom", out.Err.Message)
	assert.Empty(t, f.artifacts(t))
}

func TestAnalyzerConnectionRefused(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	f := newPipeline(t, endpoint, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")

	require.NotNil(t, out.Err)
	assert.Equal(t, KindTransport, out.Err.Kind)
	assert.Contains(t, out.Err.Message, "Cannot connect to Ollama")
	assert.Contains(t, out.Err.Message, endpoint)
}

func TestAnalyzerConnectTimeout(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 100*time.Millisecond, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")

	require.NotNil(t, out.Err)
	assert.Equal(t, KindTransport, out.Err.Kind)
	assert.Contains(t, out.Err.Message, "Request timeout")
}

func TestAnalyzerTimeoutDoesNotLimitStream(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = io.WriteString(w, `{"response":"slow "}`+"\n")
		flusher.Flush()
		time.Sleep(300 * time.Millisecond)
		_, _ = io.WriteString(w, `{"response":"stream"}`+"\n"+`{"done":true}`+"\n")
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 100*time.Millisecond, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")
	require.Nil(t, out.Err)
	assert.Equal(t, "slow stream", out.Answer)
}

func TestAnalyzerModelErrorRecord(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(`{"response":"so far"}`+"\n"+`{"error":"out of memory"}`+"\n"))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, "int x;")
	require.NotNil(t, out.Err)
	assert.Contains(t, out.Err.Message, "out of memory")
	assert.Equal(t, "so far", out.Answer)
	assert.Empty(t, f.artifacts(t))
}

func TestAnalyzerValidationNeverCallsServer(t *testing.T) {
	defer verifyNoLeaks(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.run(t, " \n\t ")
	require.NotNil(t, out.Err)
	assert.Equal(t, KindValidation, out.Err.Kind)

	out = f.run(t, strings.Repeat("x", MaxPromptChars+1))
	require.NotNil(t, out.Err)
	assert.Equal(t, KindValidation, out.Err.Kind)

	assert.Equal(t, int32(0), hits.Load())
	assert.Empty(t, f.surface.opened)
	_, errs, _ := f.surface.snapshot()
	assert.Len(t, errs, 2)
}

func TestAnalyzerNoSave(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(`{"response":"fine"}` + "\n" + `{"done":true}` + "\n"))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	out := f.analyzer.Run(context.Background(), AnalysisRequest{FilePath: f.file, Selection: "int x;", NoSave: true}, f.surface)
	require.Nil(t, out.Err)
	assert.Nil(t, out.Artifact)
	assert.Empty(t, f.artifacts(t))
}

func TestAnalyzerPersistFailureStillCompletes(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(`{"response":"fine answer"}` + "\n" + `{"done":true}` + "\n"))
	defer srv.Close()

	core, logs := observer.New(zap.DebugLevel)
	cfg := DefaultConfig()
	cfg.RenderDelay = 0
	headers, err := NewHeaderFinder(zap.NewNop())
	require.NoError(t, err)
	client := NewOllamaClient(srv.URL, 5*time.Second, zap.NewNop())
	defer client.Close()
	analyzer := NewAnalyzer(cfg, client, headers, nil, zap.New(core))

	surface := &recordingSurface{}
	missing := filepath.Join(t.TempDir(), "gone", "Platform", "Driver.c")
	out := analyzer.Run(context.Background(), AnalysisRequest{FilePath: missing, Selection: "int x;"}, surface)

	require.Nil(t, out.Err)
	assert.True(t, out.Succeeded())
	assert.Nil(t, out.Artifact)

	states, errs, saved := surface.snapshot()
	assert.Empty(t, errs)
	assert.Empty(t, saved)
	require.NotEmpty(t, states)
	last := states[len(states)-1]
	assert.True(t, last.IsComplete)
	assert.Equal(t, "fine answer", last.AnswerText)

	saveErrs := logs.FilterMessage("Failed to save analysis").All()
	require.Len(t, saveErrs, 1)
	assert.Equal(t, zap.ErrorLevel, saveErrs[0].Level)

	disposed := logs.FilterMessage("Panel disposed").All()
	require.Len(t, disposed, 1)
	assert.EqualValues(t, len(states), disposed[0].ContextMap()["pushes"])
}

func TestAnalyzerRecordsHistory(t *testing.T) {
	defer verifyNoLeaks(t)

	srv := httptest.NewServer(streamHandler(`{"response":"<think>r</think>answer"}` + "\n" + `{"done":true}` + "\n"))
	defer srv.Close()

	history, err := OpenHistory(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { require.NoError(t, history.Close()) }()

	f := newPipeline(t, srv.URL, 5*time.Second, history)
	defer f.client.Close()

	out := f.run(t, "int x;")
	require.Nil(t, out.Err)

	entries, err := history.List(context.Background(), 10, f.file)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, out.Artifact.Path, entries[0].ArtifactPath)
	assert.Equal(t, 6, entries[0].AnswerChars)
	assert.Equal(t, 1, entries[0].ReasoningChars)
}

func TestAnalyzerSerializesRuns(t *testing.T) {
	defer verifyNoLeaks(t)

	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		_, _ = io.WriteString(w, `{"response":"ok"}`+"\n"+`{"done":true}`+"\n")
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 3)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.analyzer.Run(context.Background(),
				AnalysisRequest{FilePath: f.file, Selection: "int x;", NoSave: true}, &recordingSurface{})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	for _, o := range outcomes {
		assert.Nil(t, o.Err)
	}
}

func TestAnalyzerWaitingRunHonoursContext(t *testing.T) {
	f := newPipeline(t, "http://127.0.0.1:1", time.Second, nil)
	defer f.client.Close()

	f.analyzer.slot <- struct{}{}
	defer func() { <-f.analyzer.slot }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := f.analyzer.Run(ctx, AnalysisRequest{FilePath: f.file, Selection: "int x;"}, f.surface)
	require.NotNil(t, out.Err)
	assert.Equal(t, KindTransport, out.Err.Kind)
}

func TestAnalyzerWaitsRenderDelayBeforeRequest(t *testing.T) {
	defer verifyNoLeaks(t)

	var openedAtRequest atomic.Int32
	surface := &recordingSurface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		surface.mu.Lock()
		openedAtRequest.Store(int32(len(surface.opened)))
		surface.mu.Unlock()
		_, _ = io.WriteString(w, `{"response":"ok"}`+"\n"+`{"done":true}`+"\n")
	}))
	defer srv.Close()

	f := newPipeline(t, srv.URL, 5*time.Second, nil)
	defer f.client.Close()
	f.surface = surface
	f.analyzer.cfg.RenderDelay = 150 * time.Millisecond

	start := time.Now()
	out := f.analyzer.Run(context.Background(), AnalysisRequest{FilePath: f.file, Selection: "int x;", NoSave: true}, f.surface)

	require.Nil(t, out.Err)
	assert.Equal(t, int32(1), openedAtRequest.Load(), "surface opens before the request is sent")
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrRequestFailed = errors.New("API request failed")
	ErrStreamError   = errors.New("stream error")
)

// maxErrorBody bounds how much of a failed response body is kept for the message
const maxErrorBody = 4096

// StatusError is returned when the server answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d - %s", ErrRequestFailed, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrRequestFailed
}

// ModelInfo describes one locally installed model
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
	Details    struct {
		Family            string `json:"family"`
		ParameterSize     string `json:"parameter_size"`
		QuantizationLevel string `json:"quantization_level"`
	} `json:"details"`
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// OllamaClient talks to a local Ollama server
type OllamaClient struct {
	baseURL        string
	connectTimeout time.Duration
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewOllamaClient creates a client whose timeout covers dialing and waiting for
// response headers. Once the body starts streaming there is no deadline.
func NewOllamaClient(baseURL string, connectTimeout time.Duration, logger *zap.Logger) *OllamaClient {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &OllamaClient{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		connectTimeout: connectTimeout,
		httpClient:     &http.Client{Transport: transport},
		logger:         logger,
	}
}

// Endpoint returns the server base URL
func (c *OllamaClient) Endpoint() string {
	return c.baseURL
}

// ConnectTimeout returns the connection establishment timeout
func (c *OllamaClient) ConnectTimeout() time.Duration {
	return c.connectTimeout
}

// Generate posts req to /api/generate and returns the streaming NDJSON body.
// The caller must close the returned reader.
func (c *OllamaClient) Generate(ctx context.Context, req PromptRequest) (io.ReadCloser, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	c.logger.Debug("HTTP POST /api/generate",
		zap.String("endpoint", c.baseURL),
		zap.String("model", req.Model),
		zap.Int("prompt_chars", runeLen(req.Prompt)))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("HTTP request failed", zap.Error(err))
		return nil, err
	}

	c.logger.Debug("HTTP response status", zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readStatusError(resp)
	}
	return resp.Body, nil
}

// ListModels returns the models installed on the server
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decoding model list: %v", ErrRequestFailed, err)
	}
	return tags.Models, nil
}

// Close releases idle keep-alive connections
func (c *OllamaClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func readStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	// Ollama reports failures as {"error": "..."}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: msg}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrorKind groups user-facing failures so surfaces can react to the category
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindTransport          ErrorKind = "transport"
	KindEmptyResponse      ErrorKind = "empty_response"
	KindIncompleteResponse ErrorKind = "incomplete_response"
	KindPersistence        ErrorKind = "persistence"
	KindInternal           ErrorKind = "internal"
)

// UserError represents an error that should be displayed to the user with helpful context
type UserError struct {
	Kind       ErrorKind
	Message    string
	Cause      error
	Suggestion string
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// FormatUserError formats an error for user display with colors and suggestions
func FormatUserError(err error) string {
	var sb strings.Builder

	var userErr *UserError
	if errors.As(err, &userErr) {
		sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", userErr.Message))
		if userErr.Cause != nil {
			sb.WriteString(fmt.Sprintf("       Cause: %v\n", userErr.Cause))
		}
		if userErr.Suggestion != "" {
			sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", userErr.Suggestion))
		}
	} else {
		errStr := err.Error()
		sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", errStr))

		suggestion := getSuggestionForError(errStr)
		if suggestion != "" {
			sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", suggestion))
		}
	}

	return sb.String()
}

// AsUserError returns err as a *UserError, wrapping unknown errors as internal failures
func AsUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr
	}
	return &UserError{
		Kind:       KindInternal,
		Message:    "Unexpected error",
		Cause:      err,
		Suggestion: getSuggestionForError(err.Error()),
	}
}

// getSuggestionForError returns a helpful suggestion based on error content
func getSuggestionForError(errStr string) string {
	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "model") && strings.Contains(errLower, "not found") {
		return "The model is not installed locally. Run 'ollama pull <model>' or pick another with --model (see 'vantage models')."
	}

	if strings.Contains(errLower, "no such file") {
		return "Check the file path. Relative paths are resolved from the current directory."
	}

	if strings.Contains(errLower, "permission denied") {
		return "Check file permissions for the source directory; results are written next to the analysed file."
	}

	if strings.Contains(errLower, "timeout") {
		return "Loading a model can take minutes on first use. Try again, or raise VANTAGE_CONNECT_TIMEOUT."
	}

	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "network") {
		return "Make sure Ollama is running ('ollama serve') and that VANTAGE_ENDPOINT points at it."
	}

	return ""
}

// Common error constructors

// ErrEmptySelection is reported when the selection holds only whitespace
func ErrEmptySelection() *UserError {
	return &UserError{
		Kind:       KindValidation,
		Message:    "Please select code to analyze",
		Suggestion: "Pass --lines a:b to analyse part of a file, or omit it to analyse the whole file.",
	}
}

// ErrSelectionTooLarge is reported when the selection alone exceeds the prompt ceiling
func ErrSelectionTooLarge(size, limit int) *UserError {
	return &UserError{
		Kind:       KindValidation,
		Message:    fmt.Sprintf("Code selection too long (%d characters). Please select %d characters or less for analysis.", size, limit),
		Suggestion: "Narrow the selection with --lines a:b.",
	}
}

// ErrConnectionRefused is reported when nothing listens on the model endpoint
func ErrConnectionRefused(endpoint string, cause error) *UserError {
	return &UserError{
		Kind:       KindTransport,
		Message:    fmt.Sprintf("Cannot connect to Ollama. Please ensure Ollama is running on %s", endpoint),
		Cause:      cause,
		Suggestion: "Start the server with 'ollama serve', or set VANTAGE_ENDPOINT.",
	}
}

// ErrConnectTimeout is reported when the endpoint does not answer within the connect timeout
func ErrConnectTimeout(timeout time.Duration, cause error) *UserError {
	return &UserError{
		Kind:    KindTransport,
		Message: fmt.Sprintf("Request timeout. Ollama did not respond within %s. Try again or use a smaller code selection.", timeout),
		Cause:   cause,
		Suggestion: `Possible fixes:
       1. Wait for the model to finish loading and retry
       2. Raise VANTAGE_CONNECT_TIMEOUT (e.g. 10m)
       3. Use a smaller model with --model`,
	}
}

// ErrServerStatus is reported when the endpoint answers with a non-2xx status
func ErrServerStatus(status int, body string) *UserError {
	return &UserError{
		Kind:       KindTransport,
		Message:    fmt.Sprintf("Ollama API error: %d - %s", status, strings.TrimSpace(body)),
		Suggestion: getSuggestionForError(body),
	}
}

// ErrNetwork is reported for transport failures that are neither refusals nor timeouts
func ErrNetwork(cause error) *UserError {
	return &UserError{
		Kind:       KindTransport,
		Message:    "Network error: No response received from Ollama server",
		Cause:      cause,
		Suggestion: getSuggestionForError(cause.Error()),
	}
}

// ErrStreamInterrupted is reported when the connection fails after streaming started
func ErrStreamInterrupted(cause error) *UserError {
	return &UserError{
		Kind:       KindTransport,
		Message:    "Connection to Ollama was interrupted while streaming the analysis",
		Cause:      cause,
		Suggestion: "Nothing was saved. Run the analysis again.",
	}
}

// ErrEmptyResponse is reported when the stream finished without any answer text
func ErrEmptyResponse() *UserError {
	return &UserError{
		Kind:       KindEmptyResponse,
		Message:    "Received empty response from Ollama",
		Suggestion: "The model produced no answer outside its reasoning. Try again or use a different model.",
	}
}

// ErrIncompleteResponse is reported when the stream ended before the terminal record
func ErrIncompleteResponse(chars int) *UserError {
	return &UserError{
		Kind:       KindIncompleteResponse,
		Message:    fmt.Sprintf("Received empty or partial response from Ollama (%d characters before the stream ended)", chars),
		Suggestion: "The partial result is shown but was not saved. Run the analysis again.",
	}
}

// ErrPersist wraps a failure to write the analysis artifact
func ErrPersist(path string, cause error) *UserError {
	return &UserError{
		Kind:    KindPersistence,
		Message: fmt.Sprintf("Failed to save analysis to %s", path),
		Cause:   cause,
	}
}

// classifyTransportError maps a failure from the HTTP layer onto the transport categories
func classifyTransportError(err error, endpoint string, timeout time.Duration) *UserError {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ErrServerStatus(statusErr.StatusCode, statusErr.Body)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrConnectionRefused(endpoint, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectTimeout(timeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectTimeout(timeout, err)
	}

	return ErrNetwork(err)
}

// ErrModelReported wraps an error record sent by the model server mid-stream
func ErrModelReported(message string) *UserError {
	return &UserError{
		Kind:       KindTransport,
		Message:    fmt.Sprintf("Ollama reported an error: %s", message),
		Suggestion: getSuggestionForError(message),
	}
}

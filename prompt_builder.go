package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	contextSectionHeader = "\n\n[HEADER DEFINITIONS]\n"
	sourceSectionHeader  = "\n\n[SOURCE CODE]\n"
	noContextPlaceholder = "No header files found."
	truncationMarker     = "\n\n... (header content truncated due to length limit)"
)

// PromptRequest is the body sent to the generate endpoint
type PromptRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ContextInclusion records how much discovered context made it into a prompt
type ContextInclusion int

const (
	ContextFull ContextInclusion = iota
	ContextTruncated
	ContextDropped
)

func (c ContextInclusion) String() string {
	switch c {
	case ContextFull:
		return "full"
	case ContextTruncated:
		return "truncated"
	case ContextDropped:
		return "dropped"
	}
	return "unknown"
}

// BuiltPrompt is the user prompt plus a note on what happened to the context
type BuiltPrompt struct {
	Text    string
	Context ContextInclusion
}

// PromptBuilder assembles size-bounded prompts. Sizes are counted in characters (runes).
type PromptBuilder struct {
	MaxChars        int
	MinContextChars int
}

// NewPromptBuilder creates a builder using the configured budgets
func NewPromptBuilder(cfg *Config) *PromptBuilder {
	return &PromptBuilder{
		MaxChars:        cfg.MaxPromptChars,
		MinContextChars: cfg.MinContextChars,
	}
}

// Build concatenates intro, context section and source section.
// The source is never truncated; the context is cut (or dropped) first to stay under MaxChars.
func (b *PromptBuilder) Build(source, context, intro string) (BuiltPrompt, error) {
	if strings.TrimSpace(source) == "" {
		return BuiltPrompt{}, ErrEmptySelection()
	}

	sourceSection := sourceSectionHeader + source
	fixed := runeLen(intro) + runeLen(sourceSection)
	if fixed > b.MaxChars {
		return BuiltPrompt{}, ErrSelectionTooLarge(runeLen(source), b.MaxChars-runeLen(intro)-runeLen(sourceSectionHeader))
	}

	body := context
	if body == "" {
		body = noContextPlaceholder
	}
	full := intro + contextSectionHeader + body + sourceSection
	if runeLen(full) <= b.MaxChars {
		return BuiltPrompt{Text: full, Context: ContextFull}, nil
	}

	allowance := b.MaxChars - fixed - runeLen(contextSectionHeader) - runeLen(truncationMarker)
	if context == "" || allowance < b.MinContextChars {
		return BuiltPrompt{Text: intro + sourceSection, Context: ContextDropped}, nil
	}

	truncated := truncateRunes(context, allowance) + truncationMarker
	return BuiltPrompt{
		Text:    intro + contextSectionHeader + truncated + sourceSection,
		Context: ContextTruncated,
	}, nil
}

// ValidateSelection rejects whitespace-only and oversized selections before any work starts
func ValidateSelection(selection string, limit int) error {
	if strings.TrimSpace(selection) == "" {
		return ErrEmptySelection()
	}
	if n := runeLen(selection); n > limit {
		return ErrSelectionTooLarge(n, limit)
	}
	return nil
}

// ReadSelection loads path and returns the requested line range of it
func ReadSelection(path, lineRange string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &UserError{
			Kind:       KindValidation,
			Message:    "Cannot read " + path,
			Cause:      err,
			Suggestion: getSuggestionForError(err.Error()),
		}
	}
	return SelectLines(string(data), lineRange)
}

// SelectLines returns lines a..b (1-based, inclusive) of content for a range like "12:40".
// An empty range selects the whole content. "a:" runs to the end, ":b" starts at line 1.
func SelectLines(content, lineRange string) (string, error) {
	if lineRange == "" {
		return content, nil
	}

	startStr, endStr, ok := strings.Cut(lineRange, ":")
	if !ok {
		return "", &UserError{
			Kind:       KindValidation,
			Message:    fmt.Sprintf("Invalid line range %q", lineRange),
			Suggestion: "Use --lines start:end, e.g. --lines 10:42",
		}
	}

	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	start, end := 1, len(lines)
	var err error
	if startStr != "" {
		if start, err = strconv.Atoi(startStr); err != nil {
			return "", invalidRange(lineRange, err)
		}
	}
	if endStr != "" {
		if end, err = strconv.Atoi(endStr); err != nil {
			return "", invalidRange(lineRange, err)
		}
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start < 1 || start > end {
		return "", &UserError{
			Kind:       KindValidation,
			Message:    fmt.Sprintf("Line range %q is outside the file (%d lines)", lineRange, len(lines)),
			Suggestion: "Use --lines start:end with 1 <= start <= end",
		}
	}

	return strings.Join(lines[start-1:end], ""), nil
}

func invalidRange(lineRange string, cause error) *UserError {
	return &UserError{
		Kind:       KindValidation,
		Message:    fmt.Sprintf("Invalid line range %q", lineRange),
		Cause:      cause,
		Suggestion: "Use --lines start:end, e.g. --lines 10:42",
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// truncateRunes returns the first n runes of s
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

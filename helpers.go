package main

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	boldPattern       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	underBoldPattern  = regexp.MustCompile(`__([^_]+)__`)
	italicPattern     = regexp.MustCompile(`(^|[^*])\*([^*\n]+)\*`)
	inlineCodePattern = regexp.MustCompile("`([^`\n]+)`")
	headingPattern    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	fencePattern      = regexp.MustCompile("(?s)```([\\w+#.-]*)[ \\t]*\\r?\\n(.*?)\\r?\\n?```")
)

// CodeBlock is one fenced block from a model answer
type CodeBlock struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

// extractCodeBlocks returns every fenced code block in response, in order
func extractCodeBlocks(response string) []CodeBlock {
	var blocks []CodeBlock
	for _, m := range fencePattern.FindAllStringSubmatch(response, -1) {
		code := strings.TrimSpace(strings.ReplaceAll(m[2], "\r\n", "\n"))
		if code == "" {
			continue
		}
		blocks = append(blocks, CodeBlock{Language: m[1], Code: code})
	}
	return blocks
}

// stripMarkdown removes common inline markdown formatting for plain terminal display
func stripMarkdown(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = underBoldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1$2")
	text = inlineCodePattern.ReplaceAllString(text, "$1")
	text = headingPattern.ReplaceAllString(text, "")
	return text
}

// wrapText wraps text to a specified width, preserving paragraph breaks.
// A line's leading indentation is repeated on its continuation lines.
func wrapText(text string, width int) []string {
	var result []string
	for _, para := range strings.Split(text, "\n") {
		para = strings.TrimRight(para, " \t\r")
		if para == "" {
			result = append(result, "")
			continue
		}
		indent := para[:len(para)-len(strings.TrimLeft(para, " \t"))]

		var line string
		for _, word := range strings.Fields(para) {
			if line == "" {
				line = indent + word
			} else if runeLen(line)+1+runeLen(word) <= width {
				line += " " + word
			} else {
				result = append(result, line)
				line = indent + word
			}
		}
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}

// shortModelName drops the registry namespace from a model tag
// registry.ollama.ai/library/qwen2.5-coder:7b -> qwen2.5-coder:7b
func shortModelName(modelID string) string {
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		return modelID[i+1:]
	}
	return modelID
}

// humanSize formats a byte count the way model listings usually show it
func humanSize(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}

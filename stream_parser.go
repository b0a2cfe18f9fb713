package main

import (
	"bytes"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

const (
	reasoningOpen  = "<think>"
	reasoningClose = "</think>"

	maxLoggedLine = 200
)

// Channel tags which stream a piece of model output belongs to
type Channel int

const (
	ChannelAnswer Channel = iota
	ChannelReasoning
)

func (c Channel) String() string {
	if c == ChannelReasoning {
		return "reasoning"
	}
	return "answer"
}

// Segment is a run of text classified onto one channel
type Segment struct {
	Channel Channel
	Text    string
}

// ReasoningSplitter classifies text deltas into answer and reasoning segments.
// Markers may arrive split across deltas; at most len(marker)-1 bytes are held back
// until the next delta decides whether they start a marker.
type ReasoningSplitter struct {
	mode    Channel
	pending string
}

// Mode reports the channel new text is currently routed to
func (s *ReasoningSplitter) Mode() Channel {
	return s.mode
}

// Push classifies delta and returns the segments that are now certain
func (s *ReasoningSplitter) Push(delta string) []Segment {
	buf := s.pending + delta
	s.pending = ""

	var out []Segment
	for {
		marker := reasoningOpen
		if s.mode == ChannelReasoning {
			marker = reasoningClose
		}

		idx := strings.Index(buf, marker)
		if idx == -1 {
			hold := partialMarkerSuffix(buf, marker)
			out = appendSegment(out, s.mode, buf[:len(buf)-hold])
			s.pending = buf[len(buf)-hold:]
			return out
		}

		out = appendSegment(out, s.mode, buf[:idx])
		buf = buf[idx+len(marker):]
		if s.mode == ChannelReasoning {
			s.mode = ChannelAnswer
		} else {
			s.mode = ChannelReasoning
		}
	}
}

// Flush releases held-back bytes as text of the current channel
func (s *ReasoningSplitter) Flush() []Segment {
	text := s.pending
	s.pending = ""
	return appendSegment(nil, s.mode, text)
}

// partialMarkerSuffix returns the length of the longest suffix of buf that is a proper prefix of marker
func partialMarkerSuffix(buf, marker string) int {
	n := len(marker) - 1
	if n > len(buf) {
		n = len(buf)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(buf, marker[:n]) {
			return n
		}
	}
	return 0
}

func appendSegment(out []Segment, ch Channel, text string) []Segment {
	if text == "" {
		return out
	}
	return append(out, Segment{Channel: ch, Text: text})
}

// StreamRecord is one NDJSON line from the generate endpoint
type StreamRecord struct {
	Response string `json:"response,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ParseResult is the parser's view of a finished stream
type ParseResult struct {
	Reasoning string
	Answer    string
	// Completed is true only when a terminal record was seen
	Completed bool
	// Malformed counts skipped lines
	Malformed int
}

// StreamParser folds raw response chunks into reasoning and answer buffers.
// Chunks may split lines anywhere; partial lines are carried to the next Feed.
type StreamParser struct {
	logger   *zap.Logger
	onUpdate func(PresentationState)

	splitter  ReasoningSplitter
	line      bytes.Buffer
	reasoning strings.Builder
	answer    strings.Builder
	done      bool
	failed    bool
	malformed int
}

// NewStreamParser creates a parser that reports a snapshot after every folded delta
func NewStreamParser(logger *zap.Logger, onUpdate func(PresentationState)) *StreamParser {
	if onUpdate == nil {
		onUpdate = func(PresentationState) {}
	}
	return &StreamParser{logger: logger, onUpdate: onUpdate}
}

// Done reports whether the terminal record has been seen
func (p *StreamParser) Done() bool {
	return p.done
}

// Feed consumes one transport chunk. Data after the terminal record or a
// failure record is ignored. The only error is a model-reported failure record.
func (p *StreamParser) Feed(chunk []byte) error {
	if p.done || p.failed {
		return nil
	}
	p.line.Write(chunk)

	for !p.done {
		data := p.line.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return nil
		}
		line := string(data[:i])
		p.line.Next(i + 1)

		if err := p.handleLine(line); err != nil {
			p.failed = true
			p.line.Reset()
			return err
		}
	}
	p.line.Reset()
	return nil
}

// Finish ends the stream. A trailing line without a newline is still parsed.
func (p *StreamParser) Finish() (ParseResult, error) {
	var err error
	if !p.done && !p.failed && p.line.Len() > 0 {
		line := p.line.String()
		p.line.Reset()
		err = p.handleLine(line)
	}
	if !p.done {
		p.fold(p.splitter.Flush())
	}
	return ParseResult{
		Reasoning: p.reasoning.String(),
		Answer:    p.answer.String(),
		Completed: p.done,
		Malformed: p.malformed,
	}, err
}

// Snapshot returns the current view of the buffers
func (p *StreamParser) Snapshot() PresentationState {
	return PresentationState{
		ReasoningText:    p.reasoning.String(),
		AnswerText:       p.answer.String(),
		IsReasoningPhase: p.splitter.Mode() == ChannelReasoning,
		IsComplete:       p.done,
	}
}

func (p *StreamParser) handleLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var rec StreamRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		p.malformed++
		p.logger.Warn("Skipping malformed stream record",
			zap.String("line", truncateForLog(line)),
			zap.Error(err))
		return nil
	}

	if rec.Error != "" {
		return ErrModelReported(rec.Error)
	}

	if rec.Response != "" {
		p.fold(p.splitter.Push(rec.Response))
		p.onUpdate(p.Snapshot())
	}

	if rec.Done {
		p.fold(p.splitter.Flush())
		p.done = true
		p.onUpdate(p.Snapshot())
	}
	return nil
}

func (p *StreamParser) fold(segments []Segment) {
	for _, seg := range segments {
		if seg.Channel == ChannelReasoning {
			p.reasoning.WriteString(seg.Text)
		} else {
			p.answer.WriteString(seg.Text)
		}
	}
}

func truncateForLog(s string) string {
	if len(s) <= maxLoggedLine {
		return s
	}
	return s[:maxLoggedLine] + "..."
}

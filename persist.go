package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const artifactPrefix = "vantage-analysis-"

// Artifact describes a saved analysis
type Artifact struct {
	Path     string
	Source   string
	Model    string
	File     string
	Answer   string
	Analyzed time.Time
}

// ResultPersister writes completed analyses next to the analysed file
type ResultPersister struct {
	now func() time.Time
}

// NewResultPersister creates a persister using the wall clock
func NewResultPersister() *ResultPersister {
	return &ResultPersister{now: time.Now}
}

// Persist writes a markdown artifact and returns it. Only the answer text is recorded.
func (p *ResultPersister) Persist(source, model, answer, filePath string) (*Artifact, error) {
	now := p.now()
	path := filepath.Join(filepath.Dir(filePath), ArtifactFileName(now))

	content := RenderArtifact(source, model, answer, filePath, now)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, ErrPersist(path, err)
	}

	return &Artifact{
		Path:     path,
		Source:   source,
		Model:    model,
		File:     filePath,
		Answer:   answer,
		Analyzed: now,
	}, nil
}

// ArtifactFileName returns a name that sorts by UTC analysis time
func ArtifactFileName(t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return artifactPrefix + stamp + ".md"
}

// RenderArtifact formats the markdown record of one analysis
func RenderArtifact(source, model, answer, filePath string, t time.Time) string {
	var sb strings.Builder
	sb.WriteString("# UEFI Code Analysis\n\n")
	fmt.Fprintf(&sb, "**Analysis Time:** %s\n", t.Local().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&sb, "**File:** %s\n", filePath)
	fmt.Fprintf(&sb, "**Model:** %s\n\n", model)
	sb.WriteString("## Original Code\n")
	fmt.Fprintf(&sb, "```%s\n%s\n```\n\n", FenceLanguage(filePath), strings.TrimRight(source, "\n"))
	sb.WriteString("## Analysis Results\n\n")
	sb.WriteString(answer)
	if !strings.HasSuffix(answer, "\n") {
		sb.WriteString("\n")
	}
	return sb.String()
}

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPersister(t time.Time) *ResultPersister {
	return &ResultPersister{now: func() time.Time { return t }}
}

func TestArtifactFileName(t *testing.T) {
	ts := time.Date(2026, 3, 9, 14, 5, 7, 123_000_000, time.UTC)
	assert.Equal(t, "vantage-analysis-2026-03-09T14-05-07-123Z.md", ArtifactFileName(ts))
}

func TestArtifactFileNamesSort(t *testing.T) {
	a := ArtifactFileName(time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC))
	b := ArtifactFileName(time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC))
	assert.Less(t, a, b)
}

func TestPersistWritesNextToSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "PlatformInit.c")
	ts := time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC)

	art, err := fixedPersister(ts).Persist("VOID Foo(VOID) {}\n", "qwen2.5-coder:7b", "Use BaseLib.", src)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(art.Path))
	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "# UEFI Code Analysis\n\n**Analysis Time:** "))
	assert.Contains(t, content, "**File:** "+src+"\n")
	assert.Contains(t, content, "**Model:** qwen2.5-coder:7b\n")
	assert.Contains(t, content, "## Original Code\n```c\nVOID Foo(VOID) {}\n```\n")
	assert.True(t, strings.HasSuffix(content, "## Analysis Results\n\nUse BaseLib.\n"))
}

func TestPersistFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "missing-dir", "x.c")

	_, err := fixedPersister(time.Now()).Persist("x", "m", "answer", src)
	require.Error(t, err)
	assert.Equal(t, KindPersistence, AsUserError(err).Kind)
}

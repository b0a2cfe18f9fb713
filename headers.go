package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const headerCacheSize = 64

// HeaderFinder discovers the header files that accompany a source file and
// returns them as one opaque context string.
type HeaderFinder struct {
	logger *zap.Logger
	cache  *lru.Cache[string, string]
}

// NewHeaderFinder creates a finder with an LRU cache of recent directories
func NewHeaderFinder(logger *zap.Logger) (*HeaderFinder, error) {
	cache, err := lru.New[string, string](headerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create header cache: %w", err)
	}
	return &HeaderFinder{logger: logger, cache: cache}, nil
}

type headerFile struct {
	name    string
	modTime time.Time
}

// Find returns the companion headers of sourcePath: <base>.h first, then every other
// *.h in the same directory in name order, joined by a blank line.
// An unreadable directory yields an empty context.
func (f *HeaderFinder) Find(sourcePath string) string {
	dir := filepath.Dir(sourcePath)
	self := filepath.Base(sourcePath)
	base := strings.TrimSuffix(self, filepath.Ext(self))
	primary := base + ".h"

	entries, err := os.ReadDir(dir)
	if err != nil {
		f.logger.Warn("Cannot scan directory for headers", zap.String("dir", dir), zap.Error(err))
		return ""
	}

	var headers []headerFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".h") || name == self {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		headers = append(headers, headerFile{name: name, modTime: info.ModTime()})
	}

	sort.SliceStable(headers, func(i, j int) bool {
		pi, pj := headers[i].name == primary, headers[j].name == primary
		if pi != pj {
			return pi
		}
		return headers[i].name < headers[j].name
	})

	key := cacheKey(dir, primary, headers)
	if cached, ok := f.cache.Get(key); ok {
		f.logger.Debug("Header cache hit", zap.String("dir", dir))
		return cached
	}

	parts := make([]string, 0, len(headers))
	for _, h := range headers {
		data, err := os.ReadFile(filepath.Join(dir, h.name))
		if err != nil {
			f.logger.Warn("Skipping unreadable header", zap.String("file", h.name), zap.Error(err))
			continue
		}
		f.logger.Debug("Found header", zap.String("file", h.name), zap.Bool("primary", h.name == primary))
		parts = append(parts, string(data))
	}

	context := strings.Join(parts, "\n\n")
	f.cache.Add(key, context)
	return context
}

// cacheKey changes whenever a header is added, removed or rewritten
func cacheKey(dir, primary string, headers []headerFile) string {
	var newest time.Time
	for _, h := range headers {
		if h.modTime.After(newest) {
			newest = h.modTime
		}
	}
	return fmt.Sprintf("%s|%s|%d|%d", dir, primary, len(headers), newest.UnixNano())
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver with CGO
)

// HistoryEntry is one persisted analysis
type HistoryEntry struct {
	ID             string
	AnalyzedAt     time.Time
	File           string
	Model          string
	ArtifactPath   string
	AnswerChars    int
	ReasoningChars int
	PromptChars    int
	Duration       time.Duration
}

// HistoryStore records completed analyses in SQLite
type HistoryStore struct {
	db *sql.DB
}

// OpenHistory creates or opens the history database at path
func OpenHistory(path string) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initHistorySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &HistoryStore{db: db}, nil
}

func initHistorySchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		analyzed_at INTEGER NOT NULL,
		file TEXT NOT NULL,
		model TEXT NOT NULL,
		artifact_path TEXT NOT NULL,
		answer_chars INTEGER NOT NULL,
		reasoning_chars INTEGER NOT NULL,
		prompt_chars INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_time ON analyses(analyzed_at);
	CREATE INDEX IF NOT EXISTS idx_analyses_file ON analyses(file);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database
func (h *HistoryStore) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Record inserts entry, assigning an ID when it has none
func (h *HistoryStore) Record(ctx context.Context, entry *HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO analyses (id, analyzed_at, file, model, artifact_path, answer_chars, reasoning_chars, prompt_chars, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AnalyzedAt.UnixNano(), entry.File, entry.Model, entry.ArtifactPath,
		entry.AnswerChars, entry.ReasoningChars, entry.PromptChars, entry.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record analysis: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-empty file restricts results to that file.
func (h *HistoryStore) List(ctx context.Context, limit int, file string) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, analyzed_at, file, model, artifact_path, answer_chars, reasoning_chars, prompt_chars, duration_ms
		FROM analyses`
	args := []any{}
	if file != "" {
		query += ` WHERE file = ?`
		args = append(args, file)
	}
	query += ` ORDER BY analyzed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var analyzedAt, durationMs int64
		if err := rows.Scan(&e.ID, &analyzedAt, &e.File, &e.Model, &e.ArtifactPath,
			&e.AnswerChars, &e.ReasoningChars, &e.PromptChars, &durationMs); err != nil {
			return nil, err
		}
		e.AnalyzedAt = time.Unix(0, analyzedAt)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded analyses
func (h *HistoryStore) Count(ctx context.Context) (int, error) {
	var n int
	err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM analyses").Scan(&n)
	return n, err
}

// Package knowledge provides storage backends for the guidance corpus.
//
// This file implements the SQLite-backed store.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists knowledge entries in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN. The DSN is a
// file path; its directory is created if missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("knowledge.NewSQLiteStore: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if cfg.DSN != ":memory:" {
		dir := filepath.Dir(cfg.DSN)
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			slog.Error("knowledge.NewSQLiteStore: failed to create database directory", "error", err, "dir", dir)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("knowledge.NewSQLiteStore: failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("knowledge.NewSQLiteStore: SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("knowledge.NewSQLiteStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("knowledge.NewSQLiteStore: store ready", "in_memory", cfg.DSN == ":memory:")
	return &SQLiteStore{db: db}, nil
}

// UpsertEntry inserts or replaces an entry by ID.
func (s *SQLiteStore) UpsertEntry(ctx context.Context, entry Entry) error {
	tags, embedding, err := encodeEntryColumns(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO knowledge_entries (id, title, content, language, tags, embedding) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Title, entry.Content, entry.Language, tags, embedding)
	if err != nil {
		return fmt.Errorf("failed to upsert knowledge entry %s: %w", entry.ID, err)
	}
	return nil
}

// ListEntries returns all stored entries.
func (s *SQLiteStore) ListEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, language, tags, embedding FROM knowledge_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// HasEntry reports whether an entry with the given ID exists.
func (s *SQLiteStore) HasEntry(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM knowledge_entries WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check knowledge entry %s: %w", id, err)
	}
	return count > 0, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodeEntryColumns serializes the JSON-encoded tag and embedding columns.
func encodeEntryColumns(entry Entry) (string, string, error) {
	tags, err := json.Marshal(entry.Tags)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode tags for %s: %w", entry.ID, err)
	}
	embedding, err := json.Marshal(entry.Embedding)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode embedding for %s: %w", entry.ID, err)
	}
	return string(tags), string(embedding), nil
}

// scanEntries decodes rows into entries, shared by both backends.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var language, tags, embedding sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.Content, &language, &tags, &embedding); err != nil {
			return nil, fmt.Errorf("scan knowledge entry failed: %w", err)
		}
		entry.Language = language.String
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &entry.Tags); err != nil {
				slog.Warn("knowledge.scanEntries: invalid tags column, skipping", "id", entry.ID, "error", err)
			}
		}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &entry.Embedding); err != nil {
				slog.Warn("knowledge.scanEntries: invalid embedding column, skipping", "id", entry.ID, "error", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

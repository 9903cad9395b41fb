// Package knowledge provides storage backends for the guidance corpus.
//
// This file implements the PostgreSQL-backed store.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists knowledge entries in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("knowledge.NewPostgresStore: DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("knowledge.NewPostgresStore: failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("knowledge.NewPostgresStore: PostgreSQL ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("knowledge.NewPostgresStore: failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("knowledge.NewPostgresStore: store ready")
	return &PostgresStore{db: db}, nil
}

// UpsertEntry inserts or replaces an entry by ID.
func (s *PostgresStore) UpsertEntry(ctx context.Context, entry Entry) error {
	tags, embedding, err := encodeEntryColumns(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO knowledge_entries (id, title, content, language, tags, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title,
		   content = EXCLUDED.content,
		   language = EXCLUDED.language,
		   tags = EXCLUDED.tags,
		   embedding = EXCLUDED.embedding`,
		entry.ID, entry.Title, entry.Content, entry.Language, tags, embedding)
	if err != nil {
		return fmt.Errorf("failed to upsert knowledge entry %s: %w", entry.ID, err)
	}
	return nil
}

// ListEntries returns all stored entries.
func (s *PostgresStore) ListEntries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, language, tags, embedding FROM knowledge_entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query knowledge entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// HasEntry reports whether an entry with the given ID exists.
func (s *PostgresStore) HasEntry(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM knowledge_entries WHERE id = $1`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check knowledge entry %s: %w", id, err)
	}
	return count > 0, nil
}

// Close releases the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

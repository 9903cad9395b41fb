// Package knowledge provides the local similarity store for health guidance
// snippets used to ground triage classification.
//
// It supports SQLite and PostgreSQL backends behind a common interface.
// Snippets are ranked by embedding cosine similarity when an embedder is
// configured, falling back to keyword-overlap scoring otherwise.
package knowledge

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/connectedhealth/triagepipe/internal/models"
)

// Entry is one knowledge snippet stored in the corpus.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Language  string    `json:"language,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Embedding []float64 `json:"-"`
}

// Document returns the text indexed and returned for this entry.
func (e Entry) Document() string {
	if e.Title == "" {
		return e.Content
	}
	return e.Title + "\n" + e.Content
}

// Store defines the persistence operations for knowledge entries.
type Store interface {
	// UpsertEntry inserts or replaces an entry by ID.
	UpsertEntry(ctx context.Context, entry Entry) error

	// ListEntries returns all stored entries.
	ListEntries(ctx context.Context) ([]Entry, error)

	// HasEntry reports whether an entry with the given ID exists.
	HasEntry(ctx context.Context, id string) (bool, error)

	// Close releases the underlying database handle.
	Close() error
}

// Embedder produces embedding vectors for text. Satisfied by genai.Client.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Opts holds configuration for knowledge store backends.
type Opts struct {
	DSN string
}

// Option configures a knowledge store backend.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType determines whether a DSN refers to PostgreSQL or SQLite.
// URLs with a postgres scheme or key=value connection strings are treated as
// PostgreSQL; anything else is assumed to be a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// NewStore creates the appropriate store backend for the DSN.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}

// Retriever ranks stored entries against a query text.
type Retriever struct {
	store    Store
	embedder Embedder
}

// NewRetriever creates a retriever over the given store. The embedder may be
// nil, in which case ranking falls back to keyword-overlap scoring.
func NewRetriever(store Store, embedder Embedder) *Retriever {
	return &Retriever{store: store, embedder: embedder}
}

// Query returns up to topK entries most relevant to the given text, ordered
// by descending score. Empty or whitespace-only text yields no matches
// without touching the store.
func (r *Retriever) Query(ctx context.Context, text string, topK int) ([]models.KnowledgeMatch, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 4
	}

	entries, err := r.store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var queryVec []float64
	if r.embedder != nil {
		queryVec, err = r.embedder.Embed(ctx, text)
		if err != nil {
			slog.Warn("knowledge.Query: embedding failed, falling back to keyword scoring", "error", err)
			queryVec = nil
		}
	}

	scored := make([]models.KnowledgeMatch, 0, len(entries))
	for _, entry := range entries {
		var score float64
		if queryVec != nil && len(entry.Embedding) == len(queryVec) && len(entry.Embedding) > 0 {
			score = cosineSimilarity(queryVec, entry.Embedding)
		} else {
			score = keywordScore(text, entry.Document())
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, models.KnowledgeMatch{
			ID:       entry.ID,
			Document: entry.Document(),
			Metadata: entryMetadata(entry),
			Score:    score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func entryMetadata(entry Entry) map[string]string {
	meta := map[string]string{}
	if entry.Language != "" {
		meta["language"] = entry.Language
	}
	if len(entry.Tags) > 0 {
		meta["tags"] = strings.Join(entry.Tags, ",")
	}
	return meta
}

// keywordScore counts how many query terms appear in the text, case-insensitive.
func keywordScore(query, text string) float64 {
	t := strings.ToLower(text)
	var score float64
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(t, term) {
			score++
		}
	}
	return score
}

// cosineSimilarity computes the cosine of the angle between two equal-length vectors.
func cosineSimilarity(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"
)

//go:embed seed_corpus.json
var seedCorpus []byte

// Seed loads the embedded guidance corpus into the store, inserting only
// entries whose IDs are not already present. Embeddings are computed
// best-effort when an embedder is provided; an embedding failure stores the
// entry without a vector so keyword scoring can still find it.
func Seed(ctx context.Context, store Store, embedder Embedder) error {
	var entries []Entry
	if err := json.Unmarshal(seedCorpus, &entries); err != nil {
		return fmt.Errorf("failed to parse seed corpus: %w", err)
	}

	inserted := 0
	for _, entry := range entries {
		exists, err := store.HasEntry(ctx, entry.ID)
		if err != nil {
			return fmt.Errorf("failed to check seed entry %s: %w", entry.ID, err)
		}
		if exists {
			continue
		}
		if embedder != nil {
			vec, err := embedder.Embed(ctx, entry.Document())
			if err != nil {
				slog.Warn("knowledge.Seed: embedding failed, storing entry without vector", "id", entry.ID, "error", err)
			} else {
				entry.Embedding = vec
			}
		}
		if err := store.UpsertEntry(ctx, entry); err != nil {
			return err
		}
		inserted++
	}
	slog.Info("knowledge.Seed: corpus seeded", "total", len(entries), "inserted", inserted)
	return nil
}

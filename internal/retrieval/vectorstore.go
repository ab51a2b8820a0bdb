package retrieval

import (
	"context"
	"time"
)

// VectorStore is the interface for vector storage and similarity search
// backends. Two implementations exist: SQLite with brute-force cosine
// similarity (the default, zero extra infrastructure) and Qdrant for
// deployments where the corpus outgrows a flat scan.
type VectorStore interface {
	// Insert adds records to the store.
	Insert(ctx context.Context, records []Record) error

	// Search returns the top-K records most similar to the query vector,
	// ordered by descending cosine similarity.
	Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Reset removes all records. Called before a full corpus rebuild.
	Reset(ctx context.Context) error
}

// Record is one stored corpus passage with its embedding and the
// citation metadata attached at indexing time.
type Record struct {
	ID         string
	SourceFile string
	Page       int
	Section    string
	Act        string
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}

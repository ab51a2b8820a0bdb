package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sabitax/sabitax/internal/retrieval"
)

// ErrNoDocuments is returned when the documents directory holds no PDFs.
var ErrNoDocuments = errors.New("no documents found")

// ErrRebuildInProgress is returned when Build is called while another
// build is still running.
var ErrRebuildInProgress = errors.New("index rebuild already in progress")

// Indexer builds the passage index from the PDF documents directory:
// extract page text, chunk it, attach section and act metadata, embed,
// and store.
type Indexer struct {
	docsDir  string
	embedder *retrieval.Embedder
	store    retrieval.VectorStore
	logger   *slog.Logger

	mu    sync.Mutex
	ready atomic.Bool
}

// NewIndexer creates an Indexer over the given documents directory.
func NewIndexer(docsDir string, embedder *retrieval.Embedder, store retrieval.VectorStore, logger *slog.Logger) *Indexer {
	return &Indexer{
		docsDir:  docsDir,
		embedder: embedder,
		store:    store,
		logger:   logger,
	}
}

// Ready reports whether the index holds passages and can serve retrieval.
func (ix *Indexer) Ready() bool {
	return ix.ready.Load()
}

// Build indexes all documents and returns the total passage count.
// With force=false an already-populated store is left untouched; with
// force=true the store is cleared and rebuilt from scratch. Only one
// build runs at a time; concurrent calls get ErrRebuildInProgress.
func (ix *Indexer) Build(ctx context.Context, force bool) (int, error) {
	if !ix.mu.TryLock() {
		return 0, ErrRebuildInProgress
	}
	defer ix.mu.Unlock()

	if !force {
		n, err := ix.store.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("counting existing passages: %w", err)
		}
		if n > 0 {
			ix.logger.Info("corpus index already populated", "passages", n)
			ix.ready.Store(true)
			return n, nil
		}
	}

	docs, err := ListDocuments(ix.docsDir)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, ErrNoDocuments
	}

	if force {
		if err := ix.store.Reset(ctx); err != nil {
			return 0, fmt.Errorf("clearing passage store: %w", err)
		}
		ix.ready.Store(false)
	}

	start := time.Now()
	total := 0
	for _, doc := range docs {
		n, err := ix.indexDocument(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			ix.logger.Warn("skipping document", "file", filepath.Base(doc), "error", err)
			continue
		}
		ix.logger.Info("indexed document", "file", filepath.Base(doc), "passages", n)
		total += n
	}

	if total == 0 {
		return 0, fmt.Errorf("no passages indexed from %d documents", len(docs))
	}

	ix.logger.Info("corpus index built", "documents", len(docs), "passages", total, "elapsed", time.Since(start).Round(time.Millisecond))
	ix.ready.Store(true)
	return total, nil
}

// indexDocument chunks, embeds, and stores a single PDF.
func (ix *Indexer) indexDocument(ctx context.Context, path string) (int, error) {
	pages, err := LoadPDF(path)
	if err != nil {
		return 0, err
	}

	sourceFile := filepath.Base(path)
	act := ActForFile(sourceFile)

	var passages []Passage
	for _, page := range pages {
		for _, chunk := range SplitText(page.Text, DefaultChunkSize, DefaultChunkOverlap) {
			passages = append(passages, Passage{
				ID:         uuid.New().String(),
				Text:       chunk,
				SourceFile: sourceFile,
				Page:       page.Page,
				Section:    SectionLabel(chunk),
				Act:        act,
			})
		}
	}
	if len(passages) == 0 {
		return 0, fmt.Errorf("no chunks produced")
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding passages: %w", err)
	}

	now := time.Now().UTC()
	records := make([]retrieval.Record, len(passages))
	for i, p := range passages {
		records[i] = retrieval.Record{
			ID:         p.ID,
			SourceFile: p.SourceFile,
			Page:       p.Page,
			Section:    p.Section,
			Act:        p.Act,
			Text:       p.Text,
			Embedding:  embeddings[i],
			CreatedAt:  now,
		}
	}

	if err := ix.store.Insert(ctx, records); err != nil {
		return 0, fmt.Errorf("storing passages: %w", err)
	}
	return len(records), nil
}

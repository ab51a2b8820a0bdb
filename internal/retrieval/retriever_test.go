package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// mockVectorStore implements VectorStore for testing.
type mockVectorStore struct {
	insertFn func(ctx context.Context, records []Record) error
	searchFn func(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error)
	countFn  func(ctx context.Context) (int, error)
	resetFn  func(ctx context.Context) error
}

func (m *mockVectorStore) Insert(ctx context.Context, records []Record) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, records)
	}
	return nil
}
func (m *mockVectorStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	return m.searchFn(ctx, vector, topK)
}
func (m *mockVectorStore) Count(ctx context.Context) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 1, nil
}
func (m *mockVectorStore) Reset(ctx context.Context) error {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return nil
}

func TestRetrieve_EmptyStore(t *testing.T) {
	eng := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			t.Fatal("embed should not be called when store is empty")
			return nil, nil
		},
	}
	store := &mockVectorStore{
		countFn: func(_ context.Context) (int, error) { return 0, nil },
		searchFn: func(_ context.Context, _ []float32, _ int) ([]ScoredRecord, error) {
			return nil, nil
		},
	}

	retriever := NewRetriever(NewEmbedder(eng, "nomic-embed-text"), store)

	_, err := retriever.Retrieve(context.Background(), "what is VAT", 4)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("err = %v, want ErrNotReady", err)
	}
}

func TestRetrieve_OverFetchesCandidates(t *testing.T) {
	eng := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return makeVector(768), nil
		},
	}

	var gotTopK int
	store := &mockVectorStore{
		searchFn: func(_ context.Context, _ []float32, topK int) ([]ScoredRecord, error) {
			gotTopK = topK
			return []ScoredRecord{
				{Record: Record{ID: "r1", Embedding: makeVector(768)}, Score: 0.9},
			}, nil
		},
	}

	retriever := NewRetriever(NewEmbedder(eng, "nomic-embed-text"), store)

	results, err := retriever.Retrieve(context.Background(), "query", 4)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if gotTopK != 8 {
		t.Errorf("search topK = %d, want 8 (2x requested)", gotTopK)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestRetrieve_TopKRespected(t *testing.T) {
	eng := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return makeVector(768), nil
		},
	}
	store := &mockVectorStore{
		searchFn: func(_ context.Context, _ []float32, topK int) ([]ScoredRecord, error) {
			var results []ScoredRecord
			for i := 0; i < topK; i++ {
				results = append(results, ScoredRecord{
					Record: Record{ID: fmt.Sprintf("r%d", i), Embedding: makeVector(768)},
					Score:  float32(topK-i) * 0.1,
				})
			}
			return results, nil
		},
	}

	retriever := NewRetriever(NewEmbedder(eng, "nomic-embed-text"), store)

	results, err := retriever.Retrieve(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "r0" {
		t.Errorf("first result = %q, want the most relevant candidate r0", results[0].ID)
	}
}

func TestRetrieve_MMRPrefersDiversity(t *testing.T) {
	eng := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return []float32{1, 0}, nil
		},
	}

	// Candidates in descending relevance: a near-duplicate of the top
	// result and one orthogonal passage. With lambda=0.7 the duplicate's
	// redundancy penalty pushes it below the diverse candidate.
	store := &mockVectorStore{
		searchFn: func(_ context.Context, _ []float32, _ int) ([]ScoredRecord, error) {
			return []ScoredRecord{
				{Record: Record{ID: "top", Embedding: []float32{1, 0}}, Score: 0.95},
				{Record: Record{ID: "duplicate", Embedding: []float32{1, 0}}, Score: 0.90},
				{Record: Record{ID: "diverse", Embedding: []float32{0, 1}}, Score: 0.50},
			}, nil
		},
	}

	retriever := NewRetriever(NewEmbedder(eng, "nomic-embed-text"), store)

	results, err := retriever.Retrieve(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "top" {
		t.Errorf("results[0] = %q, want top", results[0].ID)
	}
	if results[1].ID != "diverse" {
		t.Errorf("results[1] = %q, want diverse (duplicate should be penalized)", results[1].ID)
	}
}

func TestRetrieve_EmbedFails(t *testing.T) {
	eng := &mockEngine{
		embedFn: func(_ context.Context, _ string, _ string) ([]float32, error) {
			return nil, errors.New("embed error")
		},
	}
	store := &mockVectorStore{
		searchFn: func(_ context.Context, _ []float32, _ int) ([]ScoredRecord, error) {
			t.Fatal("search should not be called when embed fails")
			return nil, nil
		},
	}

	retriever := NewRetriever(NewEmbedder(eng, "nomic-embed-text"), store)

	_, err := retriever.Retrieve(context.Background(), "query", 4)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

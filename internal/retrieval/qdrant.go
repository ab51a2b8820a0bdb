package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
)

// Compile-time check that QdrantStore implements VectorStore.
var _ VectorStore = (*QdrantStore)(nil)

// collectionName is the single Qdrant collection holding corpus passages.
const collectionName = "tax_passages"

// QdrantStore is a VectorStore backed by a Qdrant instance over gRPC.
// Selected with vector.backend = "qdrant" for corpora too large for the
// SQLite flat scan.
type QdrantStore struct {
	client *qdrant.Client
}

// NewQdrantStore connects to Qdrant and ensures the passages collection
// exists with the given vector size.
func NewQdrantStore(host string, port int, vectorSize uint64) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &QdrantStore{client: client}
	if err := s.ensureCollection(context.Background(), vectorSize); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize uint64) error {
	existing, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}
	for _, name := range existing {
		if name == collectionName {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", collectionName, err)
	}
	return nil
}

// Insert upserts records into the passages collection.
func (s *QdrantStore) Insert(ctx context.Context, records []Record) error {
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(r.ID),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"source_file": r.SourceFile,
				"page":        int64(r.Page),
				"section":     r.Section,
				"act":         r.Act,
				"text_chunk":  r.Text,
				"created_at":  createdAt.Format(time.RFC3339),
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points: %w", len(points), err)
	}
	return nil
}

// Search queries Qdrant for the top-K nearest passages. Vectors are
// requested along with payloads so callers can run diversity reranking.
func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]ScoredRecord, error) {
	limit := uint64(topK)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying qdrant: %w", err)
	}

	results := make([]ScoredRecord, 0, len(hits))
	for _, hit := range hits {
		r := hitToRecord(hit)
		if r == nil {
			continue
		}
		results = append(results, ScoredRecord{Record: *r, Score: hit.GetScore()})
	}
	return results, nil
}

func hitToRecord(hit *qdrant.ScoredPoint) *Record {
	payload := hit.GetPayload()
	if payload == nil {
		return nil
	}

	r := &Record{}
	if id := hit.GetId(); id != nil {
		r.ID = id.GetUuid()
	}
	if val, ok := payload["source_file"]; ok {
		r.SourceFile = extractStringValue(val)
	}
	if val, ok := payload["page"]; ok {
		r.Page = int(extractIntValue(val))
	}
	if val, ok := payload["section"]; ok {
		r.Section = extractStringValue(val)
	}
	if val, ok := payload["act"]; ok {
		r.Act = extractStringValue(val)
	}
	if val, ok := payload["text_chunk"]; ok {
		r.Text = extractStringValue(val)
	}
	if val, ok := payload["created_at"]; ok {
		if t, err := time.Parse(time.RFC3339, extractStringValue(val)); err == nil {
			r.CreatedAt = t
		}
	}
	if vectors := hit.GetVectors(); vectors != nil {
		if v := vectors.GetVector(); v != nil {
			r.Embedding = v.GetData()
		}
	}
	return r
}

// extractStringValue pulls a string out of a qdrant payload value.
func extractStringValue(val *qdrant.Value) string {
	if val == nil {
		return ""
	}
	return val.GetStringValue()
}

// extractIntValue pulls an integer out of a qdrant payload value,
// tolerating double-encoded numbers.
func extractIntValue(val *qdrant.Value) int64 {
	if val == nil {
		return 0
	}
	if intVal := val.GetIntegerValue(); intVal != 0 {
		return intVal
	}
	if dblVal := val.GetDoubleValue(); dblVal != 0 {
		return int64(dblVal)
	}
	return 0
}

// Count returns the exact number of points in the passages collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collectionName,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

// Reset drops and recreates the passages collection.
func (s *QdrantStore) Reset(ctx context.Context) error {
	info, err := s.client.GetCollectionInfo(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("inspecting collection: %w", err)
	}

	var vectorSize uint64
	if params := info.GetConfig().GetParams().GetVectorsConfig().GetParams(); params != nil {
		vectorSize = params.GetSize()
	}

	if err := s.client.DeleteCollection(ctx, collectionName); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return s.ensureCollection(ctx, vectorSize)
}

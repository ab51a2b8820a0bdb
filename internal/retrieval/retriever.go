package retrieval

import (
	"context"
	"errors"
)

// ErrNotReady is returned when the vector store holds no passages,
// either because indexing never ran or because it failed.
var ErrNotReady = errors.New("corpus index is empty")

// mmrLambda balances relevance against diversity in the reranking step.
// 1.0 is pure relevance; 0.0 is pure diversity.
const mmrLambda = 0.7

// Retriever combines embedding and vector search to find relevant passages.
// Candidates are over-fetched at twice the requested K and reranked with
// maximal marginal relevance so near-duplicate chunks from adjacent pages
// don't crowd out the rest of the context window.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns up to topK diverse, relevant passages.
// Returns ErrNotReady if the store holds no passages.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredRecord, error) {
	n, err := r.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotReady
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	candidates, err := r.store.Search(ctx, vec, 2*topK)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= topK {
		return candidates, nil
	}

	return rerankMMR(candidates, topK), nil
}

// rerankMMR selects topK records from candidates by maximal marginal
// relevance: each pick maximizes lambda*relevance - (1-lambda)*redundancy,
// where redundancy is the highest cosine similarity to an already-selected
// record. Candidates must arrive sorted by descending relevance.
func rerankMMR(candidates []ScoredRecord, topK int) []ScoredRecord {
	selected := make([]ScoredRecord, 0, topK)
	remaining := make([]ScoredRecord, len(candidates))
	copy(remaining, candidates)

	// The most relevant candidate is always the first pick.
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := 0
		bestScore := float32(-2) // below any possible MMR value

		for i, c := range remaining {
			var maxSim float32 = -1
			for _, s := range selected {
				sim := cosine(c.Embedding, s.Embedding)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmr := mmrLambda*c.Score - (1-mmrLambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = i
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

// cosine returns the cosine similarity of two vectors.
func cosine(a, b []float32) float32 {
	aNorm := norm(a)
	if aNorm == 0 {
		return 0
	}
	return dotProduct(a, b, aNorm)
}

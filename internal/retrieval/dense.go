package retrieval

import (
	"context"
	"fmt"

	"github.com/clausescan/clausescan/pkg/models"
)

// DenseRetriever embeds the question and delegates ranking to the store's
// vector similarity query. Chunks without an embedding never appear as
// candidates; ties are broken by chunk id ascending so results are
// reproducible across runs.
type DenseRetriever struct {
	Embedder Embedder
	Store    SimilaritySearcher
}

func NewDenseRetriever(e Embedder, s SimilaritySearcher) *DenseRetriever {
	return &DenseRetriever{Embedder: e, Store: s}
}

func (r *DenseRetriever) Query(ctx context.Context, question string, topK int, documentIDs []string) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	vec, err := r.Embedder.Embed(question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.Store.SearchSimilar(ctx, vec, topK, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

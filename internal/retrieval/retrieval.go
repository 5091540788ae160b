// Package retrieval ranks stored contract chunks against a free-text
// question. Two strategies implement the same capability: a sparse in-memory
// term-frequency index and a dense embedding similarity query delegated to
// the store. Callers pick the strategy at the boundary.
package retrieval

import (
	"context"

	"github.com/clausescan/clausescan/pkg/models"
)

// Retriever produces at most topK ranked results for a question. An empty
// documentIDs slice means all documents are eligible.
type Retriever interface {
	Query(ctx context.Context, question string, topK int, documentIDs []string) ([]models.RetrievalResult, error)
}

// Embedder is the slice of the AI client the dense retriever needs.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// SimilaritySearcher is the slice of the store the dense retriever needs.
type SimilaritySearcher interface {
	SearchSimilar(ctx context.Context, queryVec []float32, k int, documentIDs []string) ([]models.RetrievalResult, error)
}

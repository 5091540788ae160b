package retrieval

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/clausescan/clausescan/pkg/models"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// SparseRetriever ranks chunks by TF-IDF cosine similarity over unigrams and
// bigrams, with no external models involved. Fit replaces the index
// wholesale; the live index is swapped atomically so a concurrent Query
// observes either the old or the new index, never a partial one. Querying
// before the first Fit returns no results.
type SparseRetriever struct {
	idx atomic.Pointer[sparseIndex]
}

type sparseIndex struct {
	vocab  map[string]int
	idf    []float64
	vecs   []map[int]float64 // L2-normalized TF-IDF vector per chunk
	chunks []models.Chunk
}

func NewSparseRetriever() *SparseRetriever {
	return &SparseRetriever{}
}

// Fit builds a fresh index over the given chunks and swaps it in. Callers
// must refit after any change to the chunk set; there is no incremental
// update.
func (r *SparseRetriever) Fit(chunks []models.Chunk) {
	idx := &sparseIndex{
		vocab:  make(map[string]int),
		chunks: append([]models.Chunk(nil), chunks...),
	}

	// Document frequencies over the term set of each chunk.
	df := make(map[string]int)
	docTerms := make([][]string, len(chunks))
	for i, c := range chunks {
		terms := ngrams(c.Text)
		docTerms[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}

	// Stable vocabulary ordering keeps scores reproducible across fits.
	vocabTerms := make([]string, 0, len(df))
	for t := range df {
		vocabTerms = append(vocabTerms, t)
	}
	sort.Strings(vocabTerms)

	n := float64(len(chunks))
	idx.idf = make([]float64, len(vocabTerms))
	for i, t := range vocabTerms {
		idx.vocab[t] = i
		idx.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	idx.vecs = make([]map[int]float64, len(chunks))
	for i := range chunks {
		idx.vecs[i] = idx.vectorize(docTerms[i])
	}

	r.idx.Store(idx)
}

// Query vectorizes the question against the fit vocabulary and scores every
// indexed chunk by dot product (cosine similarity, both sides normalized).
// Results with score <= 0 are excluded; ties keep original chunk order.
func (r *SparseRetriever) Query(_ context.Context, question string, topK int, documentIDs []string) ([]models.RetrievalResult, error) {
	idx := r.idx.Load()
	if idx == nil || len(idx.chunks) == 0 || topK <= 0 {
		return nil, nil
	}

	qvec := idx.vectorize(ngrams(question))
	if len(qvec) == 0 {
		return nil, nil
	}

	var filter map[string]struct{}
	if len(documentIDs) > 0 {
		filter = make(map[string]struct{}, len(documentIDs))
		for _, id := range documentIDs {
			filter[id] = struct{}{}
		}
	}

	var results []models.RetrievalResult
	for i, c := range idx.chunks {
		if filter != nil {
			if _, ok := filter[c.DocumentID]; !ok {
				continue
			}
		}
		score := dot(qvec, idx.vecs[i])
		if score <= 0 {
			continue
		}
		results = append(results, models.RetrievalResult{Chunk: c, Score: score})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, nil
}

// vectorize maps terms to an L2-normalized TF-IDF vector over the index
// vocabulary; out-of-vocabulary terms contribute nothing.
func (idx *sparseIndex) vectorize(terms []string) map[int]float64 {
	tf := make(map[int]int)
	total := 0
	for _, t := range terms {
		if i, ok := idx.vocab[t]; ok {
			tf[i]++
			total++
		}
	}
	if total == 0 {
		return nil
	}
	vec := make(map[int]float64, len(tf))
	norm := 0.0
	for i, count := range tf {
		w := float64(count) / float64(total) * idx.idf[i]
		vec[i] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// ngrams returns lowercase unigrams plus adjacent-word bigrams.
func ngrams(text string) []string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(words) == 0 {
		return nil
	}
	terms := make([]string, 0, 2*len(words)-1)
	terms = append(terms, words...)
	for i := 0; i+1 < len(words); i++ {
		terms = append(terms, words[i]+" "+words[i+1])
	}
	return terms
}

func dot(a, b map[int]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	s := 0.0
	for i, v := range a {
		if w, ok := b[i]; ok {
			s += v * w
		}
	}
	return s
}

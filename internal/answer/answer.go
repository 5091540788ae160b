package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clausescan/clausescan/internal/ai"
	"github.com/clausescan/clausescan/internal/retrieval"
	"github.com/clausescan/clausescan/pkg/models"
)

// ErrNoResults is returned when retrieval finds nothing relevant.
var ErrNoResults = errors.New("no relevant passages found")

const citationPreviewLen = 200

// Response is the full answer to a question: synthesized text plus the
// citations it was built from, in retrieval rank order.
type Response struct {
	Answer    string            `json:"answer"`
	Citations []models.Citation `json:"citations"`
	Degraded  bool              `json:"degraded,omitempty"`
}

// Service answers questions over ingested contracts. When the primary
// retriever fails it falls back to the secondary one; when answer synthesis
// fails the citations are still returned with a stock degraded answer.
type Service struct {
	Retriever retrieval.Retriever
	Fallback  retrieval.Retriever
	Client    ai.Client
	TopK      int
}

// Ask retrieves the passages most relevant to question and synthesizes an
// answer over them.
func (s *Service) Ask(ctx context.Context, question string, documentIDs []string) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, errors.New("question must not be empty")
	}

	topK := s.TopK
	if topK <= 0 {
		topK = 5
	}

	results, err := s.Retriever.Query(ctx, question, topK, documentIDs)
	if err != nil {
		if s.Fallback == nil {
			return Response{}, fmt.Errorf("retrieval: %w", err)
		}
		log.Warn().Err(err).Msg("primary retrieval failed, trying fallback")
		results, err = s.Fallback.Query(ctx, question, topK, documentIDs)
		if err != nil {
			return Response{}, fmt.Errorf("fallback retrieval: %w", err)
		}
	}
	if len(results) == 0 {
		return Response{}, ErrNoResults
	}

	citations := make([]models.Citation, 0, len(results))
	contexts := make([]string, 0, len(results))
	for _, r := range results {
		citations = append(citations, Cite(r.Chunk))
		contexts = append(contexts, r.Chunk.Text)
	}

	text, err := s.Client.Answer(ctx, question, contexts)
	if err != nil {
		log.Warn().Err(err).Msg("answer synthesis failed, returning citations only")
		return Response{
			Answer:    "Answer synthesis is unavailable; the most relevant contract passages are cited below.",
			Citations: citations,
			Degraded:  true,
		}, nil
	}

	return Response{Answer: text, Citations: citations}, nil
}

// Cite maps a chunk back to its source location. The preview text is
// truncated so responses stay small; offsets always refer to the full chunk.
func Cite(c models.Chunk) models.Citation {
	text := c.Text
	if len(text) > citationPreviewLen {
		text = text[:citationPreviewLen] + "..."
	}
	return models.Citation{
		DocumentID: c.DocumentID,
		Page:       c.PageNumber,
		CharStart:  c.CharStart,
		CharEnd:    c.CharEnd,
		Text:       text,
	}
}

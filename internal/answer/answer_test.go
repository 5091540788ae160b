package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/clausescan/clausescan/pkg/models"
)

type mockRetriever struct {
	results []models.RetrievalResult
	err     error
	calls   int
}

func (m *mockRetriever) Query(ctx context.Context, question string, topK int, documentIDs []string) ([]models.RetrievalResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

type mockClient struct {
	answer    string
	answerErr error
	contexts  []string
}

func (m *mockClient) Embed(text string) ([]float32, error) { return nil, nil }

func (m *mockClient) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	m.contexts = contexts
	if m.answerErr != nil {
		return "", m.answerErr
	}
	return m.answer, nil
}

func (m *mockClient) Extract(ctx context.Context, text string) (string, error) { return "", nil }

func (m *mockClient) Dim() int { return 0 }

func results(texts ...string) []models.RetrievalResult {
	var out []models.RetrievalResult
	for i, t := range texts {
		out = append(out, models.RetrievalResult{
			Chunk: models.Chunk{
				ID:         "c" + string(rune('a'+i)),
				DocumentID: "doc-1",
				PageNumber: i + 1,
				CharStart:  i * 100,
				CharEnd:    i*100 + len(t),
				Text:       t,
			},
			Score: 1.0 / float64(i+1),
			Rank:  i + 1,
		})
	}
	return out
}

func TestAskReturnsAnswerWithCitations(t *testing.T) {
	svc := &Service{
		Retriever: &mockRetriever{results: results("The term is two years.", "Renewal is annual.")},
		Client:    &mockClient{answer: "The contract term is two years."},
	}

	resp, err := svc.Ask(context.Background(), "What is the term?", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if resp.Answer != "The contract term is two years." {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Degraded {
		t.Error("healthy path marked degraded")
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("got %d citations, want 2", len(resp.Citations))
	}
	c := resp.Citations[0]
	if c.DocumentID != "doc-1" || c.Page != 1 || c.CharStart != 0 {
		t.Errorf("citation = %+v", c)
	}
}

func TestAskPassesChunkTextsAsContext(t *testing.T) {
	client := &mockClient{answer: "ok"}
	svc := &Service{
		Retriever: &mockRetriever{results: results("first passage", "second passage")},
		Client:    client,
	}
	if _, err := svc.Ask(context.Background(), "q", nil); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(client.contexts) != 2 || client.contexts[0] != "first passage" {
		t.Errorf("contexts = %v", client.contexts)
	}
}

func TestAskFallsBackWhenPrimaryFails(t *testing.T) {
	primary := &mockRetriever{err: errors.New("vector store unreachable")}
	fallback := &mockRetriever{results: results("lexical hit")}
	svc := &Service{
		Retriever: primary,
		Fallback:  fallback,
		Client:    &mockClient{answer: "from fallback"},
	}

	resp, err := svc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if fallback.calls != 1 {
		t.Error("fallback retriever not used")
	}
	if resp.Answer != "from fallback" {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestAskErrorsWhenBothRetrieversFail(t *testing.T) {
	svc := &Service{
		Retriever: &mockRetriever{err: errors.New("down")},
		Fallback:  &mockRetriever{err: errors.New("also down")},
		Client:    &mockClient{},
	}
	if _, err := svc.Ask(context.Background(), "q", nil); err == nil {
		t.Fatal("expected error when both retrievers fail")
	}
}

func TestAskNoResults(t *testing.T) {
	svc := &Service{
		Retriever: &mockRetriever{},
		Client:    &mockClient{},
	}
	if _, err := svc.Ask(context.Background(), "unanswerable", nil); !errors.Is(err, ErrNoResults) {
		t.Fatalf("error = %v, want ErrNoResults", err)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	svc := &Service{Retriever: &mockRetriever{}, Client: &mockClient{}}
	if _, err := svc.Ask(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for blank question")
	}
}

func TestAskDegradesWhenSynthesisFails(t *testing.T) {
	svc := &Service{
		Retriever: &mockRetriever{results: results("relevant passage")},
		Client:    &mockClient{answerErr: errors.New("model quota exceeded")},
	}

	resp, err := svc.Ask(context.Background(), "q", nil)
	if err != nil {
		t.Fatalf("Ask() error = %v, want degraded response", err)
	}
	if !resp.Degraded {
		t.Error("response not marked degraded")
	}
	if len(resp.Citations) != 1 {
		t.Errorf("got %d citations, want 1", len(resp.Citations))
	}
}

func TestCiteTruncatesPreviewOnly(t *testing.T) {
	long := strings.Repeat("x", 500)
	c := Cite(models.Chunk{DocumentID: "d", PageNumber: 3, CharStart: 10, CharEnd: 510, Text: long})
	if len(c.Text) != citationPreviewLen+3 {
		t.Errorf("preview length = %d", len(c.Text))
	}
	if !strings.HasSuffix(c.Text, "...") {
		t.Error("truncated preview missing ellipsis")
	}
	if c.CharStart != 10 || c.CharEnd != 510 {
		t.Errorf("offsets changed by truncation: [%d,%d]", c.CharStart, c.CharEnd)
	}
}

package extract

import (
	"context"
	"errors"
	"math"
	"testing"
)

type mockClient struct {
	raw string
	err error
}

func (m *mockClient) Embed(text string) ([]float32, error) { return nil, nil }

func (m *mockClient) Answer(ctx context.Context, q string, c []string) (string, error) {
	return "", nil
}

func (m *mockClient) Extract(ctx context.Context, text string) (string, error) {
	return m.raw, m.err
}

func (m *mockClient) Dim() int { return 0 }

func TestExtractFromModelJSON(t *testing.T) {
	raw := `{
		"parties": ["Acme Corp", "Widget LLC"],
		"effective_date": "January 1, 2025",
		"term": "two years",
		"governing_law": "Delaware",
		"liability_cap_amount": 100000,
		"liability_cap_currency": "USD",
		"signatories": [{"name": "Jane Roe", "title": "CEO"}]
	}`
	svc := &Service{Client: &mockClient{raw: raw}}

	res, err := svc.Extract(context.Background(), "contract text")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Method != "llm" {
		t.Errorf("method = %q, want llm", res.Method)
	}
	if len(res.Fields.Parties) != 2 || res.Fields.Parties[0] != "Acme Corp" {
		t.Errorf("parties = %v", res.Fields.Parties)
	}
	if res.Fields.GoverningLaw != "Delaware" {
		t.Errorf("governing law = %q", res.Fields.GoverningLaw)
	}
	if res.Fields.LiabilityCapAmount.String() != "100000" {
		t.Errorf("cap amount = %v", res.Fields.LiabilityCapAmount)
	}
	if len(res.Fields.Signatories) != 1 || res.Fields.Signatories[0].Title != "CEO" {
		t.Errorf("signatories = %v", res.Fields.Signatories)
	}
	// 7 of the 12 fields filled.
	if want := 7.0 / 12.0; math.Abs(res.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", res.Confidence, want)
	}
}

func TestExtractStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"term\": \"one year\"}\n```"
	svc := &Service{Client: &mockClient{raw: raw}}
	res, err := svc.Extract(context.Background(), "text")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Method != "llm" || res.Fields.Term != "one year" {
		t.Errorf("result = %+v", res)
	}
}

func TestExtractFallsBackOnModelError(t *testing.T) {
	text := "This Agreement is effective as of March 15, 2024 and shall be governed by the laws of the State of New York, without regard to conflicts. The agreement runs for a term of three years."
	svc := &Service{Client: &mockClient{err: errors.New("extraction not supported")}}

	res, err := svc.Extract(context.Background(), text)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Method != "rule_based" {
		t.Errorf("method = %q, want rule_based", res.Method)
	}
	if res.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6", res.Confidence)
	}
	if res.Fields.EffectiveDate != "March 15, 2024" {
		t.Errorf("effective date = %q", res.Fields.EffectiveDate)
	}
	if res.Fields.GoverningLaw != "New York" {
		t.Errorf("governing law = %q", res.Fields.GoverningLaw)
	}
	if res.Fields.Term != "three years" {
		t.Errorf("term = %q", res.Fields.Term)
	}
}

func TestExtractFallsBackOnBadJSON(t *testing.T) {
	svc := &Service{Client: &mockClient{raw: "I could not extract anything, sorry."}}
	res, err := svc.Extract(context.Background(), "Dated as of June 1, 2023, between the parties.")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Method != "rule_based" {
		t.Errorf("method = %q, want rule_based", res.Method)
	}
	if res.Fields.EffectiveDate != "June 1, 2023" {
		t.Errorf("effective date = %q", res.Fields.EffectiveDate)
	}
}

func TestExtractNilClientUsesRules(t *testing.T) {
	svc := &Service{}
	res, err := svc.Extract(context.Background(), "no extractable fields here")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Method != "rule_based" {
		t.Errorf("method = %q, want rule_based", res.Method)
	}
	if res.Fields.EffectiveDate != "" || res.Fields.GoverningLaw != "" {
		t.Errorf("unexpected fields from empty text: %+v", res.Fields)
	}
}

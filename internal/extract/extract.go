// Package extract pulls structured fields out of contract text, preferring
// the model provider's structured extraction and falling back to regex rules
// when the provider cannot serve.
package extract

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clausescan/clausescan/internal/ai"
)

const fieldCount = 12

// Fields is the structured view of a contract. Missing fields stay at their
// zero value and are omitted from JSON.
type Fields struct {
	Parties              []string    `json:"parties,omitempty"`
	EffectiveDate        string      `json:"effective_date,omitempty"`
	Term                 string      `json:"term,omitempty"`
	GoverningLaw         string      `json:"governing_law,omitempty"`
	PaymentTerms         string      `json:"payment_terms,omitempty"`
	Termination          string      `json:"termination,omitempty"`
	AutoRenewal          string      `json:"auto_renewal,omitempty"`
	Confidentiality      string      `json:"confidentiality,omitempty"`
	Indemnity            string      `json:"indemnity,omitempty"`
	LiabilityCapAmount   json.Number `json:"liability_cap_amount,omitempty"`
	LiabilityCapCurrency string      `json:"liability_cap_currency,omitempty"`
	Signatories          []Signatory `json:"signatories,omitempty"`
}

type Signatory struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Result carries the extracted fields plus how they were obtained and how
// complete the extraction is (filled fields over total fields).
type Result struct {
	Fields     Fields  `json:"fields"`
	Method     string  `json:"method"`
	Confidence float64 `json:"confidence"`
}

// Service extracts structured fields from contracts.
type Service struct {
	Client ai.Client
}

// Extract runs model-based extraction and falls back to the rule-based
// extractor when the model is unavailable or returns unusable JSON.
func (s *Service) Extract(ctx context.Context, contractText string) (Result, error) {
	if s.Client != nil {
		raw, err := s.Client.Extract(ctx, contractText)
		if err == nil {
			var f Fields
			if jerr := json.Unmarshal([]byte(stripFences(raw)), &f); jerr == nil {
				return Result{
					Fields:     f,
					Method:     "llm",
					Confidence: completeness(f),
				}, nil
			} else {
				log.Warn().Err(jerr).Msg("model returned unparseable extraction JSON, using rules")
			}
		} else {
			log.Warn().Err(err).Msg("model extraction failed, using rules")
		}
	}

	return Result{
		Fields:     extractByRules(contractText),
		Method:     "rule_based",
		Confidence: 0.6,
	}, nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// completeness scores how many of the known fields came back non-empty.
func completeness(f Fields) float64 {
	filled := 0
	if len(f.Parties) > 0 {
		filled++
	}
	for _, v := range []string{
		f.EffectiveDate, f.Term, f.GoverningLaw, f.PaymentTerms,
		f.Termination, f.AutoRenewal, f.Confidentiality, f.Indemnity,
		f.LiabilityCapCurrency,
	} {
		if strings.TrimSpace(v) != "" {
			filled++
		}
	}
	if f.LiabilityCapAmount != "" {
		filled++
	}
	if len(f.Signatories) > 0 {
		filled++
	}
	return float64(filled) / float64(fieldCount)
}

var (
	effectiveDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)effective\s+(?:as\s+of\s+|date[:\s]+)([A-Z][a-z]+\s+\d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(?i)effective\s+(?:as\s+of\s+|date[:\s]+)(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
		regexp.MustCompile(`(?i)dated\s+(?:as\s+of\s+)?([A-Z][a-z]+\s+\d{1,2},?\s+\d{4})`),
	}
	governingLawRe = regexp.MustCompile(`(?i)governed\s+by\s+.*?laws?\s+of\s+(?:the\s+)?(?:State\s+of\s+)?([A-Z][A-Za-z ]{2,40}?)[,.;]`)
	termRe         = regexp.MustCompile(`(?i)(?:term\s+of|for\s+a\s+(?:period|term)\s+of)\s+((?:\w+[\s-]){0,3}(?:years?|months?|days?))`)
)

// extractByRules is the deterministic fallback. It fills only the fields the
// patterns can find reliably.
func extractByRules(text string) Fields {
	var f Fields
	for _, re := range effectiveDatePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			f.EffectiveDate = strings.TrimSpace(m[1])
			break
		}
	}
	if m := governingLawRe.FindStringSubmatch(text); m != nil {
		f.GoverningLaw = strings.TrimSpace(m[1])
	}
	if m := termRe.FindStringSubmatch(text); m != nil {
		f.Term = strings.TrimSpace(m[1])
	}
	return f
}

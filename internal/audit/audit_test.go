package audit

import (
	"strings"
	"testing"

	"github.com/clausescan/clausescan/pkg/models"
)

func findingsOfType(findings []models.Finding, riskType string) []models.Finding {
	var out []models.Finding
	for _, f := range findings {
		if f.RiskType == riskType {
			out = append(out, f)
		}
	}
	return out
}

func checkSpans(t *testing.T, findings []models.Finding, textLen int) {
	t.Helper()
	for _, f := range findings {
		if (f.CharStart == nil) != (f.CharEnd == nil) {
			t.Errorf("%s: half-open span pointers", f.RiskType)
			continue
		}
		if f.CharStart == nil {
			continue
		}
		if *f.CharStart < 0 || *f.CharEnd > textLen || *f.CharStart > *f.CharEnd {
			t.Errorf("%s: span [%d,%d] outside [0,%d]", f.RiskType, *f.CharStart, *f.CharEnd, textLen)
		}
	}
}

func TestAutoRenewalNoticePeriods(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCount    int
		wantSeverity models.Severity
	}{
		{
			name:         "short notice is high",
			text:         "This agreement shall auto-renew for successive one-year terms unless either party provides 10 days notice of non-renewal.",
			wantCount:    1,
			wantSeverity: models.SeverityHigh,
		},
		{
			name:         "moderate notice is medium",
			text:         "This agreement shall auto-renew for successive one-year terms unless either party provides 20 days notice of non-renewal.",
			wantCount:    1,
			wantSeverity: models.SeverityMedium,
		},
		{
			name:      "generous notice is clean",
			text:      "This agreement shall auto-renew for successive one-year terms unless either party provides 45 days notice of non-renewal.",
			wantCount: 0,
		},
		{
			name:         "spelled-out automatic renewal",
			text:         "The subscription will automatically renew annually; cancellation requires 14 days notice before the renewal date.",
			wantCount:    1,
			wantSeverity: models.SeverityHigh,
		},
	}

	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			all := engine.Audit(tt.text)
			checkSpans(t, all, len(tt.text))
			got := findingsOfType(all, "auto_renewal_short_notice")
			if len(got) != tt.wantCount {
				t.Fatalf("got %d auto-renewal findings, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", got[0].Severity, tt.wantSeverity)
			}
		})
	}
}

func TestAutoRenewalUnclearNotice(t *testing.T) {
	text := "The contract will automatically renew for additional twelve-month periods at the then-current rates."
	all := NewEngine().Audit(text)

	got := findingsOfType(all, "auto_renewal_unclear_notice")
	if len(got) != 1 {
		t.Fatalf("got %d unclear-notice findings, want 1", len(got))
	}
	f := got[0]
	if f.Severity != models.SeverityMedium {
		t.Errorf("severity = %s, want medium", f.Severity)
	}
	if f.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", f.Confidence)
	}
}

func TestAutoRenewalRulesDoNotDoubleFire(t *testing.T) {
	// With a notice-day pattern present anywhere, the global unclear-notice
	// rule must stay silent even though renewal language exists.
	text := "This agreement shall auto-renew unless cancelled with 10 days notice."
	all := NewEngine().Audit(text)
	if got := findingsOfType(all, "auto_renewal_unclear_notice"); len(got) != 0 {
		t.Errorf("unclear-notice rule fired alongside the notice-period rule: %d findings", len(got))
	}
	if got := findingsOfType(all, "auto_renewal_short_notice"); len(got) != 1 {
		t.Errorf("got %d short-notice findings, want 1", len(got))
	}
}

func TestUnlimitedLiability(t *testing.T) {
	texts := []string{
		"Each party accepts unlimited liability for breaches of this section.",
		"There shall be no cap on liability arising from gross negligence.",
		"The vendor's liability shall not be limited in respect of data loss.",
		"Claims may be brought without limitation of liability hereunder.",
	}
	engine := NewEngine()
	for _, text := range texts {
		all := engine.Audit(text)
		checkSpans(t, all, len(text))
		got := findingsOfType(all, "unlimited_liability")
		if len(got) < 1 {
			t.Errorf("no unlimited-liability finding for %q", text)
			continue
		}
		for _, f := range got {
			if f.Severity != models.SeverityCritical {
				t.Errorf("severity = %s, want critical", f.Severity)
			}
			if f.Confidence != 0.95 {
				t.Errorf("confidence = %v, want 0.95", f.Confidence)
			}
		}
	}
}

func TestMissingLiabilityCap(t *testing.T) {
	t.Run("liability without cap", func(t *testing.T) {
		text := "The parties' liability under this agreement is addressed in Section 9."
		got := findingsOfType(NewEngine().Audit(text), "no_liability_cap")
		if len(got) != 1 {
			t.Fatalf("got %d findings, want 1", len(got))
		}
		f := got[0]
		if f.Severity != models.SeverityHigh {
			t.Errorf("severity = %s, want high", f.Severity)
		}
		if f.Confidence != 0.7 {
			t.Errorf("confidence = %v, want 0.7", f.Confidence)
		}
		if f.CharStart != nil || f.CharEnd != nil {
			t.Error("document-level absence must carry no evidence span")
		}
	})

	t.Run("capped liability is clean", func(t *testing.T) {
		text := "Aggregate liability is capped at $100,000 for all claims."
		if got := findingsOfType(NewEngine().Audit(text), "no_liability_cap"); len(got) != 0 {
			t.Errorf("got %d findings for capped liability, want 0", len(got))
		}
	})

	t.Run("no liability language at all", func(t *testing.T) {
		text := "This order covers delivery schedules and acceptance testing."
		if got := findingsOfType(NewEngine().Audit(text), "no_liability_cap"); len(got) != 0 {
			t.Errorf("got %d findings without liability language, want 0", len(got))
		}
	})
}

func TestBroadIndemnity(t *testing.T) {
	t.Run("no carve-out is high", func(t *testing.T) {
		text := "Supplier shall indemnify Customer against any and all claims arising out of the services."
		got := findingsOfType(NewEngine().Audit(text), "broad_indemnity")
		if len(got) == 0 {
			t.Fatal("expected a broad-indemnity finding")
		}
		if got[0].Severity != models.SeverityHigh {
			t.Errorf("severity = %s, want high", got[0].Severity)
		}
		if got[0].Confidence != 0.85 {
			t.Errorf("confidence = %v, want 0.85", got[0].Confidence)
		}
	})

	t.Run("carve-out softens to medium", func(t *testing.T) {
		text := "Supplier shall indemnify Customer against any and all claims, except claims caused by Customer's negligence."
		got := findingsOfType(NewEngine().Audit(text), "broad_indemnity")
		if len(got) == 0 {
			t.Fatal("expected a broad-indemnity finding")
		}
		if got[0].Severity != models.SeverityMedium {
			t.Errorf("severity = %s, want medium", got[0].Severity)
		}
	})

	t.Run("hold harmless", func(t *testing.T) {
		text := "Contractor agrees to hold harmless the Owner from any and all losses sustained during the works."
		if got := findingsOfType(NewEngine().Audit(text), "broad_indemnity"); len(got) == 0 {
			t.Error("expected a hold-harmless finding")
		}
	})
}

func TestUnilateralTermination(t *testing.T) {
	texts := []string{
		"The Company may terminate this agreement at any time upon written notice.",
		"Provider can terminate the service without cause.",
		"Either party may terminate this order for any reason.",
		"Licensor reserves the right to terminate the license at its sole discretion.",
	}
	engine := NewEngine()
	for _, text := range texts {
		got := findingsOfType(engine.Audit(text), "unilateral_termination")
		if len(got) < 1 {
			t.Errorf("no unilateral-termination finding for %q", text)
			continue
		}
		if got[0].Severity != models.SeverityMedium {
			t.Errorf("severity = %s, want medium", got[0].Severity)
		}
		if got[0].Confidence != 0.8 {
			t.Errorf("confidence = %v, want 0.8", got[0].Confidence)
		}
	}
}

func TestAssignmentRestriction(t *testing.T) {
	t.Run("strict consent is medium", func(t *testing.T) {
		text := "Neither party may not assign this agreement without the prior written consent of the other party."
		got := findingsOfType(NewEngine().Audit(text), "assignment_restriction")
		if len(got) == 0 {
			t.Fatal("expected an assignment-restriction finding")
		}
		if got[0].Severity != models.SeverityMedium {
			t.Errorf("severity = %s, want medium", got[0].Severity)
		}
		if len(got[0].EvidenceText) > 200 {
			t.Errorf("evidence length %d exceeds the 200-char cap", len(got[0].EvidenceText))
		}
	})

	t.Run("reasonable consent is low", func(t *testing.T) {
		text := "The Customer may not assign this agreement without consent, which consent shall not be unreasonably withheld."
		got := findingsOfType(NewEngine().Audit(text), "assignment_restriction")
		if len(got) == 0 {
			t.Fatal("expected an assignment-restriction finding")
		}
		if got[0].Severity != models.SeverityLow {
			t.Errorf("severity = %s, want low", got[0].Severity)
		}
	})
}

func TestPerpetualConfidentiality(t *testing.T) {
	texts := []string{
		"The confidentiality obligations of this section are perpetual.",
		"Confidentiality obligations shall survive termination of this agreement.",
		"All confidential information shall be protected with no time limit.",
	}
	engine := NewEngine()
	for _, text := range texts {
		got := findingsOfType(engine.Audit(text), "perpetual_confidentiality")
		if len(got) < 1 {
			t.Errorf("no perpetual-confidentiality finding for %q", text)
			continue
		}
		if got[0].Severity != models.SeverityMedium {
			t.Errorf("severity = %s, want medium", got[0].Severity)
		}
	}
}

func TestAuditCleanContract(t *testing.T) {
	text := "The parties agree to deliver the goods on the first business day of each month. Payment is due net thirty."
	if got := NewEngine().Audit(text); len(got) != 0 {
		t.Errorf("clean contract produced %d findings: %+v", len(got), got)
	}
}

func TestAuditEvidenceWithinBounds(t *testing.T) {
	// Matches near the end of the text exercise the clamp on the trailing
	// evidence padding.
	text := "Termination: the Provider may terminate this contract at any time."
	findings := NewEngine().Audit(text)
	if len(findings) == 0 {
		t.Fatal("expected findings")
	}
	checkSpans(t, findings, len(text))
	for _, f := range findings {
		if f.CharStart == nil {
			continue
		}
		if f.EvidenceText != text[*f.CharStart:*f.CharEnd] {
			t.Errorf("%s: evidence text does not match its span", f.RiskType)
		}
	}
}

type panicRule struct{}

func (panicRule) RiskType() string { return "panic_rule" }
func (panicRule) Scan(text string) []models.Finding {
	panic("rule exploded")
}

type staticRule struct{}

func (staticRule) RiskType() string { return "static_rule" }
func (staticRule) Scan(text string) []models.Finding {
	return []models.Finding{{RiskType: "static_rule", Severity: models.SeverityLow}}
}

func TestRuleFailureIsIsolated(t *testing.T) {
	engine := NewEngineWithRules(panicRule{}, staticRule{})
	findings := engine.Audit("any text")
	if len(findings) != 1 || findings[0].RiskType != "static_rule" {
		t.Fatalf("expected only the healthy rule's finding, got %+v", findings)
	}
}

func TestRepeatedAuditsRecompute(t *testing.T) {
	text := "Each party accepts unlimited liability. " + strings.Repeat("Filler sentence here. ", 5)
	engine := NewEngine()
	first := engine.Audit(text)
	second := engine.Audit(text)
	if len(first) == 0 || len(first) != len(second) {
		t.Fatalf("audit runs differ: %d vs %d findings", len(first), len(second))
	}
}

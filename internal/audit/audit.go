// Package audit scans full contract text for risky clauses using an ordered
// battery of independent pattern rules. Every rule runs on every call; a
// single audit may return zero or many findings per category, and repeated
// audits recompute a fresh set each time.
package audit

import (
	"github.com/rs/zerolog/log"

	"github.com/clausescan/clausescan/pkg/models"
)

const detectionRuleBased = "rule_based"

// Rule is one independent risk check over the full document text.
type Rule interface {
	// RiskType is the category tag stamped on the rule's findings.
	RiskType() string
	// Scan returns zero or more findings for the text.
	Scan(text string) []models.Finding
}

// Engine runs its rules in a fixed order. Rules do not see each other's
// results, and a failing rule contributes no findings without stopping the
// rest of the battery.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine with the standard rule catalogue.
func NewEngine() *Engine {
	return NewEngineWithRules(
		&autoRenewalRule{},
		&autoRenewalNoNoticeRule{},
		&unlimitedLiabilityRule{},
		&missingLiabilityCapRule{},
		&broadIndemnityRule{},
		&unilateralTerminationRule{},
		&assignmentRestrictionRule{},
		&perpetualConfidentialityRule{},
	)
}

func NewEngineWithRules(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// Audit runs every rule over the text and concatenates their findings in
// rule order.
func (e *Engine) Audit(fullText string) []models.Finding {
	var findings []models.Finding
	for _, r := range e.rules {
		findings = append(findings, scanSafe(r, fullText)...)
	}
	return findings
}

func scanSafe(r Rule, text string) (findings []models.Finding) {
	defer func() {
		if p := recover(); p != nil {
			log.Warn().Str("risk_type", r.RiskType()).Any("panic", p).Msg("audit rule failed, skipping")
			findings = nil
		}
	}()
	return r.Scan(text)
}

// span clamps an evidence range to the text bounds and returns pointers for
// the finding record.
func span(start, end, textLen int) (*int, *int) {
	if start < 0 {
		start = 0
	}
	if end > textLen {
		end = textLen
	}
	if start > end {
		start = end
	}
	return &start, &end
}

package audit

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/clausescan/clausescan/pkg/models"
)

// Auto-renewal with a stated notice period. Fewer than 15 days is high risk,
// 15-29 medium; 30 or more days is considered workable and yields nothing.
type autoRenewalRule struct{}

// Hyphenated "auto-renew" is as common as the spaced form, so the joiner
// accepts either.
var autoRenewalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)auto(?:matically)?[\s-]+renew(?:al|s|ed)?.*?(\d+)\s*days?`),
	regexp.MustCompile(`(?i)renew(?:al|s|ed)?\s+(?:automatically|auto).*?(\d+)\s*days?`),
	regexp.MustCompile(`(?i)auto(?:matic)?[\s-]+renewal.*?notice.*?(\d+)\s*days?`),
}

func (autoRenewalRule) RiskType() string { return "auto_renewal_short_notice" }

func (r autoRenewalRule) Scan(text string) []models.Finding {
	var findings []models.Finding
	for _, re := range autoRenewalPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			days, err := strconv.Atoi(text[m[2]:m[3]])
			if err != nil || days >= 30 {
				continue
			}
			severity := models.SeverityMedium
			if days < 15 {
				severity = models.SeverityHigh
			}
			start, end := span(m[0], m[1]+100, len(text))
			findings = append(findings, models.Finding{
				RiskType:        r.RiskType(),
				Severity:        severity,
				Title:           fmt.Sprintf("Auto-renewal with %d-day notice period", days),
				Description:     fmt.Sprintf("Contract automatically renews with only %d days' notice, which may be insufficient to cancel before renewal.", days),
				EvidenceText:    text[*start:*end],
				CharStart:       start,
				CharEnd:         end,
				DetectionMethod: detectionRuleBased,
				Confidence:      0.9,
			})
		}
	}
	return findings
}

// Auto-renewal language with no "<N> days notice" pattern anywhere in the
// document. Global check: fires at most once, and only when the notice-day
// pattern is entirely absent so it does not double up with the rule above.
type autoRenewalNoNoticeRule struct{}

var (
	renewalLanguageRe = regexp.MustCompile(`(?i)auto(?:matically)?[\s-]+renew(?:al|s)?`)
	noticeDaysRe      = regexp.MustCompile(`(?i)(\d+)\s*days?\s*(?:notice|prior|advance)`)
	renewalClauseRe   = regexp.MustCompile(`(?i)auto(?:matically)?[\s-]+renew(?:al|s)?[^.]{0,200}`)
)

func (autoRenewalNoNoticeRule) RiskType() string { return "auto_renewal_unclear_notice" }

func (r autoRenewalNoNoticeRule) Scan(text string) []models.Finding {
	if !renewalLanguageRe.MatchString(text) || noticeDaysRe.MatchString(text) {
		return nil
	}
	m := renewalClauseRe.FindStringIndex(text)
	if m == nil {
		return nil
	}
	start, end := span(m[0], m[1], len(text))
	return []models.Finding{{
		RiskType:        r.RiskType(),
		Severity:        models.SeverityMedium,
		Title:           "Auto-renewal clause without clear notice period",
		Description:     "Contract contains auto-renewal language but does not specify a clear notice period for cancellation.",
		EvidenceText:    text[*start:*end],
		CharStart:       start,
		CharEnd:         end,
		DetectionMethod: detectionRuleBased,
		Confidence:      0.8,
	}}
}

// Explicit unlimited-liability phrasings. Always critical.
type unlimitedLiabilityRule struct{}

var unlimitedLiabilityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)unlimited\s+liability`),
	regexp.MustCompile(`(?i)no\s+(?:limit|cap)\s+(?:on|to)\s+liability`),
	regexp.MustCompile(`(?i)liability\s+shall\s+not\s+be\s+limited`),
	regexp.MustCompile(`(?i)without\s+(?:limit|limitation)\s+of\s+liability`),
}

func (unlimitedLiabilityRule) RiskType() string { return "unlimited_liability" }

func (r unlimitedLiabilityRule) Scan(text string) []models.Finding {
	var findings []models.Finding
	for _, re := range unlimitedLiabilityPatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			start, end := span(m[0]-50, m[1]+100, len(text))
			findings = append(findings, models.Finding{
				RiskType:        r.RiskType(),
				Severity:        models.SeverityCritical,
				Title:           "Unlimited liability clause detected",
				Description:     "Contract contains language indicating unlimited liability, which could expose the party to significant financial risk.",
				EvidenceText:    text[*start:*end],
				CharStart:       start,
				CharEnd:         end,
				DetectionMethod: detectionRuleBased,
				Confidence:      0.95,
			})
		}
	}
	return findings
}

// Liability is discussed but no monetary cap appears anywhere. This is a
// document-level absence, so the finding carries no evidence span.
type missingLiabilityCapRule struct{}

var (
	liabilityWordRe = regexp.MustCompile(`(?i)liabilit(?:y|ies)`)
	liabilityCapRe  = regexp.MustCompile(`(?i)(?:limited|capped|cap)\s+(?:to|at)\s+(?:\$|USD|EUR)?[\d,]+`)
)

func (missingLiabilityCapRule) RiskType() string { return "no_liability_cap" }

func (r missingLiabilityCapRule) Scan(text string) []models.Finding {
	if !liabilityWordRe.MatchString(text) || liabilityCapRe.MatchString(text) {
		return nil
	}
	return []models.Finding{{
		RiskType:        r.RiskType(),
		Severity:        models.SeverityHigh,
		Title:           "No clear liability cap specified",
		Description:     "Contract mentions liability but does not specify a clear monetary cap or limitation.",
		EvidenceText:    "Liability section present but no cap found",
		DetectionMethod: detectionRuleBased,
		Confidence:      0.7,
	}}
}

// Broad indemnification obligations. A carve-out marker inside the evidence
// window softens the severity to medium.
type broadIndemnityRule struct{}

var broadIndemnityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)indemnif(?:y|ication).*?(?:any|all).*?(?:claims?|losses?|damages?|liabilities)`),
	regexp.MustCompile(`(?is)hold\s+harmless.*?(?:any|all).*?(?:claims?|losses?)`),
	regexp.MustCompile(`(?is)indemnif(?:y|ication).*?(?:including|without\s+limitation)`),
}

var carveOutRe = regexp.MustCompile(`(?i)except|excluding|other\s+than`)

func (broadIndemnityRule) RiskType() string { return "broad_indemnity" }

func (r broadIndemnityRule) Scan(text string) []models.Finding {
	var findings []models.Finding
	for _, re := range broadIndemnityPatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			start, end := span(m[0], m[1]+100, len(text))
			evidence := text[*start:*end]
			severity := models.SeverityHigh
			if carveOutRe.MatchString(evidence) {
				severity = models.SeverityMedium
			}
			findings = append(findings, models.Finding{
				RiskType:        r.RiskType(),
				Severity:        severity,
				Title:           "Broad indemnification obligation",
				Description:     "Contract contains broad indemnification language that may expose party to extensive liability for third-party claims.",
				EvidenceText:    evidence,
				CharStart:       start,
				CharEnd:         end,
				DetectionMethod: detectionRuleBased,
				Confidence:      0.85,
			})
		}
	}
	return findings
}

// One-sided termination rights.
type unilateralTerminationRule struct{}

var unilateralTerminationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:may|shall|can)\s+terminate.*?(?:at\s+any\s+time|without\s+cause|for\s+any\s+reason)`),
	regexp.MustCompile(`(?i)terminate.*?(?:at\s+its\s+sole\s+discretion|in\s+its\s+sole\s+discretion)`),
}

func (unilateralTerminationRule) RiskType() string { return "unilateral_termination" }

func (r unilateralTerminationRule) Scan(text string) []models.Finding {
	var findings []models.Finding
	for _, re := range unilateralTerminationPatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			start, end := span(m[0]-50, m[1]+100, len(text))
			findings = append(findings, models.Finding{
				RiskType:        r.RiskType(),
				Severity:        models.SeverityMedium,
				Title:           "Unilateral termination right",
				Description:     "Contract allows one party to terminate at will, which may create imbalance in contractual obligations.",
				EvidenceText:    text[*start:*end],
				CharStart:       start,
				CharEnd:         end,
				DetectionMethod: detectionRuleBased,
				Confidence:      0.8,
			})
		}
	}
	return findings
}

// Assignment restricted without consent. Consent that may not be
// unreasonably withheld downgrades the finding to low.
type assignmentRestrictionRule struct{}

var assignmentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:may|shall)\s+not\s+assign.*?without.*?(?:consent|approval)`),
	regexp.MustCompile(`(?i)assignment.*?prohibited.*?without.*?(?:consent|approval)`),
}

var reasonableConsentRe = regexp.MustCompile(`(?i)not\s+(?:be\s+)?unreasonably\s+withheld`)

func (assignmentRestrictionRule) RiskType() string { return "assignment_restriction" }

func (r assignmentRestrictionRule) Scan(text string) []models.Finding {
	var findings []models.Finding
	for _, re := range assignmentPatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			start, end := span(m[0]-50, m[1]+200, len(text))
			evidence := text[*start:*end]
			severity := models.SeverityMedium
			if reasonableConsentRe.MatchString(evidence) {
				severity = models.SeverityLow
			}
			if len(evidence) > 200 {
				evidence = evidence[:200]
			}
			findings = append(findings, models.Finding{
				RiskType:        r.RiskType(),
				Severity:        severity,
				Title:           "Restrictive assignment clause",
				Description:     "Contract restricts assignment rights, potentially limiting flexibility in business transactions.",
				EvidenceText:    evidence,
				CharStart:       start,
				CharEnd:         end,
				DetectionMethod: detectionRuleBased,
				Confidence:      0.75,
			})
		}
	}
	return findings
}

// Confidentiality obligations with no end.
type perpetualConfidentialityRule struct{}

var perpetualConfidentialityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)confidential(?:ity)?.*?(?:perpetual|indefinite|forever)`),
	regexp.MustCompile(`(?is)confidential(?:ity)?.*?(?:survive|continue).*?(?:indefinitely|termination)`),
	regexp.MustCompile(`(?is)confidential(?:ity)?.*?no\s+time\s+limit`),
}

func (perpetualConfidentialityRule) RiskType() string { return "perpetual_confidentiality" }

func (r perpetualConfidentialityRule) Scan(text string) []models.Finding {
	var findings []models.Finding
	for _, re := range perpetualConfidentialityPatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			start, end := span(m[0], m[1]+100, len(text))
			findings = append(findings, models.Finding{
				RiskType:        r.RiskType(),
				Severity:        models.SeverityMedium,
				Title:           "Perpetual confidentiality obligation",
				Description:     "Contract requires confidentiality obligations to continue indefinitely, which may be impractical or overly burdensome.",
				EvidenceText:    text[*start:*end],
				CharStart:       start,
				CharEnd:         end,
				DetectionMethod: detectionRuleBased,
				Confidence:      0.8,
			})
		}
	}
	return findings
}

package triage

import (
	"fmt"
	"strings"
)

// evidenceCounts is the per-finding tally the decision rules evaluate.
// Duplicate records are excluded so merged matches are not double counted.
type evidenceCounts struct {
	docTotal     int
	staticTotal  int
	staticStrong int
	staticUsable int // strong or weak
	dynTotal     int
	dynStrong    int
	dynSignal    int // strength other than none
	dynBlocked   int // strength none representing an explicit block/denial
}

func countEvidence(evidence []EvidenceRecord) evidenceCounts {
	var c evidenceCounts
	for _, ev := range evidence {
		if ev.Duplicate {
			continue
		}
		switch ev.Source {
		case SourceDocument:
			c.docTotal++
		case SourceStatic:
			c.staticTotal++
			if ev.Strength == StrengthStrong {
				c.staticStrong++
			}
			if ev.Strength == StrengthStrong || ev.Strength == StrengthWeak {
				c.staticUsable++
			}
		case SourceDynamic:
			c.dynTotal++
			if ev.Strength == StrengthStrong {
				c.dynStrong++
			}
			if ev.Strength != StrengthNone {
				c.dynSignal++
			}
			if ev.Strength == StrengthNone && ev.Dynamic != nil && ev.Dynamic.Blocked {
				c.dynBlocked++
			}
		}
	}
	return c
}

// decisionRule pairs a predicate with its outcome. Rules are evaluated
// top-down and the first match wins, which keeps the policy order auditable
// and testable in isolation.
type decisionRule struct {
	number     int
	name       string
	applies    func(evidenceCounts) bool
	status     Status
	confidence Confidence
}

var decisionRules = []decisionRule{
	{
		number:     1,
		name:       "dynamic exploitation confirmed",
		applies:    func(c evidenceCounts) bool { return c.dynStrong > 0 },
		status:     StatusVulnerable,
		confidence: ConfidenceHigh,
	},
	{
		number:     2,
		name:       "strong static evidence with dynamic signal",
		applies:    func(c evidenceCounts) bool { return c.staticStrong > 0 && c.dynSignal > 0 },
		status:     StatusVulnerable,
		confidence: ConfidenceMedium,
	},
	{
		number:     3,
		name:       "static evidence without dynamic contradiction",
		applies:    func(c evidenceCounts) bool { return c.staticUsable > 0 && c.dynBlocked == 0 },
		status:     StatusPossible,
		confidence: ConfidenceLow,
	},
	{
		number:     4,
		name:       "no credible evidence",
		applies:    func(evidenceCounts) bool { return true },
		status:     StatusNotVulnerable,
		confidence: ConfidenceHigh,
	},
}

// Decide computes the verdict for one finding from its correlated evidence.
// It is a pure, total function: every input resolves to exactly one status,
// confidence and priority, and the rationale depends only on the matched
// rule and the evidence counts.
func Decide(f Finding, evidence []EvidenceRecord) TriageVerdict {
	counts := countEvidence(evidence)

	var matched decisionRule
	for _, rule := range decisionRules {
		if rule.applies(counts) {
			matched = rule
			break
		}
	}

	verdict := TriageVerdict{
		FindingID:        f.ID,
		Title:            f.Title,
		Origin:           f.Origin,
		OriginalSeverity: f.Severity,
		Status:           matched.status,
		Confidence:       matched.confidence,
		Priority:         MapPriority(matched.status, f.Severity),
		Rule:             matched.number,
		Rationale:        rationale(matched, counts),
		Evidence:         evidence,
	}
	return verdict
}

// MapPriority maps (status, document-reported severity) to a priority. The
// mapping is total: a missing or unrecognized severity is treated as
// Medium-equivalent input.
func MapPriority(status Status, severity string) Priority {
	switch status {
	case StatusVulnerable:
		switch normalizeSeverity(severity) {
		case "critical", "high":
			return PriorityCritical
		default:
			return PriorityHigh
		}
	case StatusPossible:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return "critical"
	case "high":
		return "high"
	case "low":
		return "low"
	default:
		return "medium"
	}
}

func rationale(rule decisionRule, c evidenceCounts) string {
	return fmt.Sprintf(
		"rule %d (%s): dynamic=%d (strong=%d, blocked=%d), static=%d (strong=%d), document=%d",
		rule.number, rule.name,
		c.dynTotal, c.dynStrong, c.dynBlocked,
		c.staticTotal, c.staticStrong,
		c.docTotal,
	)
}

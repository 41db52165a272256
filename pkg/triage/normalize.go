package triage

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed raw stage output. The orchestrator drops
// the affected stage contribution and continues with partial evidence.
type ValidationError struct {
	Stage  Source
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s stage output invalid: %s", e.Stage, e.Reason)
}

// DynamicCriteria classifies one probe record into a strength. The default
// rules treat a demonstrated exploit as strong, an inconclusive indicator
// (server error, timing anomaly, leaked error text) as weak, and anything
// else, including an explicit block, as none.
type DynamicCriteria func(ProbeRecord) Strength

// DefaultDynamicCriteria is used when the caller passes no criteria.
func DefaultDynamicCriteria(p ProbeRecord) Strength {
	if p.Exploited {
		return StrengthStrong
	}
	if p.Blocked {
		return StrengthNone
	}
	if p.Indicator != "" {
		return StrengthWeak
	}
	return StrengthNone
}

// NormalizeDocument validates the reader output and converts each reported
// finding into one document evidence record already linked to its finding.
// A candidate with neither a severity nor a description carries no
// identifying content and rejects the whole document contribution.
func NormalizeDocument(doc *DocumentResult) ([]Finding, []EvidenceRecord, error) {
	if doc == nil {
		return nil, nil, nil
	}

	findings := make([]Finding, 0, len(doc.Findings))
	records := make([]EvidenceRecord, 0, len(doc.Findings))

	for i, f := range doc.Findings {
		if f.Severity == "" && f.Description == "" {
			return nil, nil, &ValidationError{
				Stage:  SourceDocument,
				Reason: fmt.Sprintf("finding %q has no severity and no description", f.ID),
			}
		}
		if f.ID == "" {
			f.ID = fmt.Sprintf("VULN-%03d", i+1)
		}
		if f.Origin == "" {
			f.Origin = OriginDocument
		}
		findings = append(findings, f)

		records = append(records, EvidenceRecord{
			Source:     SourceDocument,
			FindingRef: f.ID,
			Strength:   StrengthWeak, // a report claim alone is never confirmation
			Location:   firstComponent(f.AffectedComponents),
			Category:   f.Type,
			Document: &DocumentPayload{
				ReportTitle: doc.Title,
				Excerpt:     truncate(f.Description, 400),
			},
		})
	}
	return findings, records, nil
}

// NormalizeStatic converts raw scanner matches into evidence records. A
// match is strong only when it carries an exact reproducible location (file
// and line) and a non-empty vulnerable snippet; a mitigating match is kept
// with strength none so the verdict rationale can reference it.
func NormalizeStatic(matches []StaticMatch) []EvidenceRecord {
	records := make([]EvidenceRecord, 0, len(matches))
	for _, m := range matches {
		strength := StrengthWeak
		switch {
		case m.Negative:
			strength = StrengthNone
		case m.File != "" && m.Line > 0 && strings.TrimSpace(m.Snippet) != "":
			strength = StrengthStrong
		}
		records = append(records, EvidenceRecord{
			Source:     SourceStatic,
			FindingRef: m.FindingID,
			Strength:   strength,
			Location:   m.File,
			Category:   m.Category,
			Static: &StaticPayload{
				RuleID:  m.RuleID,
				File:    m.File,
				Line:    m.Line,
				Snippet: m.Snippet,
				Message: m.Message,
			},
		})
	}
	return records
}

// NormalizeDynamic converts raw probe records into evidence records using
// the supplied success criteria. Non-exploiting and blocked probes are
// retained with strength none for rationale purposes.
func NormalizeDynamic(probes []ProbeRecord, criteria DynamicCriteria) []EvidenceRecord {
	if criteria == nil {
		criteria = DefaultDynamicCriteria
	}
	records := make([]EvidenceRecord, 0, len(probes))
	for _, p := range probes {
		records = append(records, EvidenceRecord{
			Source:     SourceDynamic,
			FindingRef: p.FindingID,
			Strength:   criteria(p),
			Location:   p.Endpoint,
			Category:   p.Category,
			Dynamic: &DynamicPayload{
				Request:    p.RequestLine,
				Response:   truncate(p.Response, 800),
				Payload:    p.Payload,
				StatusCode: p.StatusCode,
				DurationMS: p.Duration.Milliseconds(),
				Blocked:    p.Blocked,
				Indicator:  p.Indicator,
			},
		})
	}
	return records
}

func firstComponent(components []string) string {
	if len(components) == 0 {
		return ""
	}
	return components[0]
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

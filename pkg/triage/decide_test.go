package triage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticEvidence(ref string, strength Strength) EvidenceRecord {
	return EvidenceRecord{
		Source:     SourceStatic,
		FindingRef: ref,
		Strength:   strength,
		Location:   "auth.py",
		Category:   "SQL Injection",
		Static:     &StaticPayload{RuleID: "python.lang.sqli", File: "auth.py", Line: 23, Snippet: "cursor.execute(q)"},
	}
}

func dynamicEvidence(ref string, strength Strength, blocked bool) EvidenceRecord {
	return EvidenceRecord{
		Source:     SourceDynamic,
		FindingRef: ref,
		Strength:   strength,
		Location:   "/login",
		Category:   "SQL Injection",
		Dynamic:    &DynamicPayload{Request: "POST /login HTTP/1.1", StatusCode: 200, Blocked: blocked},
	}
}

func TestDecideRuleOrder(t *testing.T) {
	f := Finding{ID: "VULN-001", Title: "SQLi in login", Severity: "High", Origin: OriginDocument}

	t.Run("strong dynamic wins regardless of static", func(t *testing.T) {
		v := Decide(f, []EvidenceRecord{
			staticEvidence(f.ID, StrengthWeak),
			dynamicEvidence(f.ID, StrengthStrong, false),
		})
		assert.Equal(t, StatusVulnerable, v.Status)
		assert.Equal(t, ConfidenceHigh, v.Confidence)
		assert.Equal(t, 1, v.Rule)
	})

	t.Run("strong static plus dynamic signal", func(t *testing.T) {
		v := Decide(f, []EvidenceRecord{
			staticEvidence(f.ID, StrengthStrong),
			dynamicEvidence(f.ID, StrengthWeak, false),
		})
		assert.Equal(t, StatusVulnerable, v.Status)
		assert.Equal(t, ConfidenceMedium, v.Confidence)
		assert.Equal(t, 2, v.Rule)
	})

	t.Run("static only is possible", func(t *testing.T) {
		v := Decide(f, []EvidenceRecord{staticEvidence(f.ID, StrengthWeak)})
		assert.Equal(t, StatusPossible, v.Status)
		assert.Equal(t, ConfidenceLow, v.Confidence)
		assert.Equal(t, 3, v.Rule)
	})

	t.Run("static evidence contradicted by explicit block", func(t *testing.T) {
		v := Decide(f, []EvidenceRecord{
			staticEvidence(f.ID, StrengthWeak),
			dynamicEvidence(f.ID, StrengthNone, true),
		})
		assert.Equal(t, StatusNotVulnerable, v.Status)
		assert.Equal(t, 4, v.Rule)
	})

	t.Run("no evidence defaults to not vulnerable", func(t *testing.T) {
		v := Decide(f, nil)
		assert.Equal(t, StatusNotVulnerable, v.Status)
		assert.Equal(t, ConfidenceHigh, v.Confidence)
		assert.Equal(t, 4, v.Rule)
	})
}

// Scenario: strong static match on auth.py:23 plus a confirmed login bypass.
func TestDecideConfirmedExploit(t *testing.T) {
	f := Finding{ID: "VULN-001", Title: "Login bypass", Severity: "High", Origin: OriginDocument}
	v := Decide(f, []EvidenceRecord{
		staticEvidence(f.ID, StrengthStrong),
		dynamicEvidence(f.ID, StrengthStrong, false),
	})
	assert.Equal(t, StatusVulnerable, v.Status)
	assert.Equal(t, ConfidenceHigh, v.Confidence)
	assert.Equal(t, PriorityCritical, v.Priority)
}

// Scenario: a lone weak pattern match and no dynamic evidence.
func TestDecideWeakStaticOnly(t *testing.T) {
	f := Finding{ID: "VULN-002", Title: "Reflected XSS", Severity: "Medium", Origin: OriginDocument}
	weak := staticEvidence(f.ID, StrengthWeak)
	weak.Static.Line = 0
	weak.Static.Snippet = ""

	v := Decide(f, []EvidenceRecord{weak})
	assert.Equal(t, StatusPossible, v.Status)
	assert.Equal(t, ConfidenceLow, v.Confidence)
	assert.Equal(t, PriorityMedium, v.Priority)
}

// Scenario: mitigating static evidence plus a blocked probe (HTTP 400).
func TestDecideMitigatedFinding(t *testing.T) {
	f := Finding{ID: "VULN-003", Title: "Path traversal", Severity: "High", Origin: OriginDocument}
	mitigation := staticEvidence(f.ID, StrengthNone)
	blocked := dynamicEvidence(f.ID, StrengthNone, true)
	blocked.Dynamic.StatusCode = 400

	v := Decide(f, []EvidenceRecord{mitigation, blocked})
	assert.Equal(t, StatusNotVulnerable, v.Status)
	assert.Equal(t, ConfidenceHigh, v.Confidence)
	assert.Equal(t, PriorityLow, v.Priority)
}

// Scenario: only-static run, strong match. Rules 1 and 2 cannot fire
// without dynamic evidence.
func TestDecideStaticOnlyRun(t *testing.T) {
	f := Finding{ID: "VULN-004", Title: "Command injection", Severity: "Critical", Origin: OriginDocument}
	v := Decide(f, []EvidenceRecord{staticEvidence(f.ID, StrengthStrong)})
	assert.Equal(t, StatusPossible, v.Status)
	assert.Equal(t, ConfidenceLow, v.Confidence)
	assert.Equal(t, 3, v.Rule)
}

func TestDecideDuplicatesNotDoubleCounted(t *testing.T) {
	f := Finding{ID: "VULN-005", Title: "SQLi", Severity: "High", Origin: OriginDocument}
	dup := dynamicEvidence(f.ID, StrengthStrong, false)
	dup.Duplicate = true

	// Only a duplicate carries the strong dynamic signal, so rule 1 must
	// not fire on it.
	v := Decide(f, []EvidenceRecord{staticEvidence(f.ID, StrengthWeak), dup})
	assert.Equal(t, StatusPossible, v.Status)
	assert.Len(t, v.Evidence, 2, "duplicates are kept in the verdict evidence")
}

// Adding a strong dynamic record never decreases the status rank.
func TestDecideMonotonicity(t *testing.T) {
	f := Finding{ID: "VULN-006", Title: "SSRF", Severity: "Low", Origin: OriginDocument}
	baselines := [][]EvidenceRecord{
		nil,
		{staticEvidence(f.ID, StrengthWeak)},
		{staticEvidence(f.ID, StrengthStrong)},
		{dynamicEvidence(f.ID, StrengthNone, true)},
	}
	for i, base := range baselines {
		before := Decide(f, base)
		after := Decide(f, append(append([]EvidenceRecord{}, base...), dynamicEvidence(f.ID, StrengthStrong, false)))
		assert.GreaterOrEqual(t, StatusRank(after.Status), StatusRank(before.Status), "baseline %d", i)
	}
}

func TestMapPriorityTotal(t *testing.T) {
	statuses := []Status{StatusVulnerable, StatusPossible, StatusNotVulnerable}
	severities := []string{"Critical", "High", "Medium", "Low", "", "bogus", "HIGH", " medium "}

	for _, st := range statuses {
		for _, sev := range severities {
			p := MapPriority(st, sev)
			assert.Contains(t, []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}, p,
				"status=%s severity=%q", st, sev)
		}
	}

	assert.Equal(t, PriorityCritical, MapPriority(StatusVulnerable, "Critical"))
	assert.Equal(t, PriorityCritical, MapPriority(StatusVulnerable, "High"))
	assert.Equal(t, PriorityHigh, MapPriority(StatusVulnerable, "Low"))
	assert.Equal(t, PriorityHigh, MapPriority(StatusVulnerable, ""), "missing severity maps as Medium-equivalent")
	assert.Equal(t, PriorityMedium, MapPriority(StatusPossible, "Critical"))
	assert.Equal(t, PriorityLow, MapPriority(StatusNotVulnerable, "Critical"))
}

func TestRationaleDeterministic(t *testing.T) {
	f := Finding{ID: "VULN-007", Title: "IDOR", Severity: "Medium", Origin: OriginDocument}
	ev := []EvidenceRecord{
		staticEvidence(f.ID, StrengthStrong),
		dynamicEvidence(f.ID, StrengthWeak, false),
	}
	first := Decide(f, ev)
	second := Decide(f, ev)
	require.Equal(t, first.Rationale, second.Rationale)
	assert.Equal(t, "rule 2 (strong static evidence with dynamic signal): dynamic=1 (strong=0, blocked=0), static=1 (strong=1), document=0", first.Rationale)
}

// Totality: every combination of evidence strengths resolves to exactly one
// status.
func TestDecideTotality(t *testing.T) {
	strengths := []Strength{StrengthStrong, StrengthWeak, StrengthNone}
	f := Finding{ID: "VULN-008", Title: "Anything", Severity: "High", Origin: OriginDocument}

	for _, ss := range strengths {
		for _, ds := range strengths {
			for _, blocked := range []bool{true, false} {
				name := fmt.Sprintf("static=%s dynamic=%s blocked=%v", ss, ds, blocked)
				v := Decide(f, []EvidenceRecord{
					staticEvidence(f.ID, ss),
					dynamicEvidence(f.ID, ds, blocked),
				})
				assert.Contains(t, []Status{StatusVulnerable, StatusPossible, StatusNotVulnerable}, v.Status, name)
				assert.NotEmpty(t, v.Rationale, name)
			}
		}
	}
}

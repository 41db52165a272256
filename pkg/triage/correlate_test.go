package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelateExplicitLinkage(t *testing.T) {
	findings := []Finding{{ID: "VULN-001", Title: "SQLi", Type: "SQL Injection", Origin: OriginDocument}}
	evidence := []EvidenceRecord{
		{Source: SourceStatic, FindingRef: "VULN-001", Strength: StrengthStrong, Location: "auth.py", Category: "SQL Injection"},
	}

	all, out := NewCorrelator(0).Correlate(findings, evidence)
	require.Len(t, all, 1)
	require.Len(t, out, 1)
	assert.Equal(t, "VULN-001", out[0].FindingRef)
}

func TestCorrelateBySimilarity(t *testing.T) {
	findings := []Finding{
		{ID: "VULN-001", Title: "SQL Injection in login", Type: "SQL Injection", AffectedComponents: []string{"/login"}, Origin: OriginDocument},
		{ID: "VULN-002", Title: "Stored XSS in comments", Type: "Cross-Site Scripting", AffectedComponents: []string{"/comments"}, Origin: OriginDocument},
	}
	evidence := []EvidenceRecord{
		{Source: SourceDynamic, Strength: StrengthStrong, Location: "/login", Category: "SQL Injection"},
	}

	_, out := NewCorrelator(0).Correlate(findings, evidence)
	assert.Equal(t, "VULN-001", out[0].FindingRef)
}

func TestCorrelateTieBreaksOnSmallerID(t *testing.T) {
	// Two findings that score identically for the evidence record.
	findings := []Finding{
		{ID: "VULN-B", Title: "SQL Injection", Type: "SQL Injection", Origin: OriginDocument},
		{ID: "VULN-A", Title: "SQL Injection", Type: "SQL Injection", Origin: OriginDocument},
	}
	evidence := []EvidenceRecord{
		{Source: SourceStatic, Strength: StrengthWeak, Category: "SQL Injection"},
	}

	_, out := NewCorrelator(0).Correlate(findings, evidence)
	assert.Equal(t, "VULN-A", out[0].FindingRef)
}

func TestCorrelateSpawnsSyntheticFinding(t *testing.T) {
	findings := []Finding{
		{ID: "VULN-001", Title: "SQL Injection in login", Type: "SQL Injection", AffectedComponents: []string{"/login"}, Origin: OriginDocument},
	}
	evidence := []EvidenceRecord{
		{Source: SourceDynamic, Strength: StrengthStrong, Location: "/admin/backup", Category: "Information Disclosure"},
	}

	all, out := NewCorrelator(0).Correlate(findings, evidence)
	require.Len(t, all, 2, "unmatched evidence must create exactly one new finding, never a silent drop")
	syn := all[1]
	assert.Equal(t, "unreported-001", syn.ID)
	assert.Equal(t, OriginUnreported, syn.Origin)
	assert.Equal(t, "Information Disclosure", syn.Title)
	assert.Equal(t, syn.ID, out[0].FindingRef)
}

func TestCorrelateFollowUpEvidenceJoinsSynthetic(t *testing.T) {
	evidence := []EvidenceRecord{
		{Source: SourceStatic, Strength: StrengthStrong, Location: "backup.go", Category: "Information Disclosure"},
		{Source: SourceDynamic, Strength: StrengthWeak, Location: "", Category: "Information Disclosure"},
	}

	all, out := NewCorrelator(0).Correlate(nil, evidence)
	require.Len(t, all, 1, "second record should match the synthetic finding, not spawn another")
	assert.Equal(t, out[0].FindingRef, out[1].FindingRef)
}

func TestCorrelateDanglingLinkageFallsBackToMatching(t *testing.T) {
	findings := []Finding{
		{ID: "VULN-001", Title: "SQL Injection", Type: "SQL Injection", Origin: OriginDocument},
	}
	evidence := []EvidenceRecord{
		{Source: SourceStatic, FindingRef: "VULN-999", Strength: StrengthWeak, Category: "SQL Injection"},
	}

	_, out := NewCorrelator(0).Correlate(findings, evidence)
	assert.Equal(t, "VULN-001", out[0].FindingRef)
}

func TestCorrelateDeduplicatesPerSourceLocationCategory(t *testing.T) {
	findings := []Finding{{ID: "VULN-001", Title: "SQLi", Type: "SQL Injection", Origin: OriginDocument}}
	evidence := []EvidenceRecord{
		{Source: SourceStatic, FindingRef: "VULN-001", Strength: StrengthStrong, Location: "auth.py", Category: "SQL Injection"},
		{Source: SourceStatic, FindingRef: "VULN-001", Strength: StrengthStrong, Location: "auth.py", Category: "SQL Injection"},
		{Source: SourceDynamic, FindingRef: "VULN-001", Strength: StrengthStrong, Location: "auth.py", Category: "SQL Injection"},
	}

	_, out := NewCorrelator(0).Correlate(findings, evidence)
	require.Len(t, out, 3, "duplicates are merged, not discarded")
	assert.False(t, out[0].Duplicate)
	assert.True(t, out[1].Duplicate, "same source, location and category")
	assert.False(t, out[2].Duplicate, "different source is not a duplicate")
}

func TestCorrelateThresholdConfigurable(t *testing.T) {
	findings := []Finding{
		{ID: "VULN-001", Title: "SQL Injection login form", Type: "SQL Injection", Origin: OriginDocument},
	}
	// Partial token overlap with the finding title/type.
	evidence := []EvidenceRecord{
		{Source: SourceStatic, Strength: StrengthWeak, Category: "SQL error"},
	}

	_, loose := NewCorrelator(0.1).Correlate(findings, evidence)
	assert.Equal(t, "VULN-001", loose[0].FindingRef)

	allStrict, strict := NewCorrelator(0.99).Correlate(findings, evidence)
	assert.Len(t, allStrict, 2)
	assert.Equal(t, "unreported-001", strict[0].FindingRef)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, similarity("SQL Injection", "sql injection"))
	assert.Equal(t, 0.0, similarity("XSS", "SQL Injection"))
	assert.Equal(t, 0.0, similarity("", "anything"))
	assert.InDelta(t, 1.0/3.0, similarity("sql injection", "sql error"), 1e-9)
}

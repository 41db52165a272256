package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vulnvalid/pkg/triage"
)

func sampleResult() *triage.Report {
	return &triage.Report{
		Verdicts: []triage.TriageVerdict{
			{
				FindingID:        "VULN-001",
				Title:            "SQL injection in product search",
				Origin:           triage.OriginDocument,
				OriginalSeverity: "Critical",
				Status:           triage.StatusVulnerable,
				Confidence:       triage.ConfidenceHigh,
				Priority:         triage.PriorityCritical,
			},
			{
				FindingID:        "VULN-002",
				Title:            "Missing headers",
				Origin:           triage.OriginDocument,
				OriginalSeverity: "Low",
				Status:           triage.StatusNotVulnerable,
				Confidence:       triage.ConfidenceHigh,
				Priority:         triage.PriorityLow,
			},
			{
				FindingID:        "unreported-001",
				Title:            "debug enabled",
				Origin:           triage.OriginUnreported,
				OriginalSeverity: "unknown",
				Status:           triage.StatusPossible,
				Confidence:       triage.ConfidenceLow,
				Priority:         triage.PriorityMedium,
			},
		},
		Summary: triage.Summary{
			Total:         3,
			Vulnerable:    1,
			Possible:      1,
			NotVulnerable: 1,
			Synthetic:     1,
		},
	}
}

func TestBuildEnglish(t *testing.T) {
	r := Build(sampleResult(), Metadata{ReportPath: "report.pdf", Mode: "full"}, "en")

	assert.NotEmpty(t, r.Metadata.RunID)
	assert.False(t, r.Metadata.GeneratedAt.IsZero())
	assert.Equal(t, "en", r.Metadata.Language)

	assert.Contains(t, r.ExecutiveSummary, "2 reported findings were analyzed")
	assert.Contains(t, r.ExecutiveSummary, "1 were confirmed as vulnerable")
	assert.Contains(t, r.ExecutiveSummary, "1 additional findings were discovered")

	require.Len(t, r.NextSteps, 3)
	assert.Contains(t, r.NextSteps[0], "Remediate the 1 confirmed findings")
	assert.Contains(t, r.NextSteps[2], "unreported findings")
}

func TestBuildSpanish(t *testing.T) {
	r := Build(sampleResult(), Metadata{ReportPath: "report.pdf", Mode: "full"}, "es")

	assert.Equal(t, "es", r.Metadata.Language)
	assert.Contains(t, r.ExecutiveSummary, "Se analizaron 2 hallazgos reportados")
	assert.Contains(t, r.NextSteps[0], "Remediar de inmediato")
}

func TestBuildUnknownLangDefaultsToEnglish(t *testing.T) {
	r := Build(sampleResult(), Metadata{}, "fr")
	assert.Equal(t, "en", r.Metadata.Language)
}

func TestBuildDeterministicNarrative(t *testing.T) {
	meta := Metadata{RunID: "fixed", ReportPath: "r.pdf", Mode: "full"}
	a := Build(sampleResult(), meta, "en")
	b := Build(sampleResult(), meta, "en")

	assert.Equal(t, a.ExecutiveSummary, b.ExecutiveSummary)
	assert.Equal(t, a.NextSteps, b.NextSteps)
	assert.Equal(t, a.RiskMatrix, b.RiskMatrix)
}

func TestRiskMatrix(t *testing.T) {
	r := Build(sampleResult(), Metadata{}, "en")

	assert.Equal(t, 1, r.RiskMatrix["critical"]["Vulnerable"])
	assert.Equal(t, 1, r.RiskMatrix["low"]["Not Vulnerable"])
	// Unknown severity lands in the medium row.
	assert.Equal(t, 1, r.RiskMatrix["medium"]["Possible"])
}

func TestNextStepsAllClear(t *testing.T) {
	result := &triage.Report{
		Verdicts: []triage.TriageVerdict{{
			FindingID: "VULN-001",
			Status:    triage.StatusNotVulnerable,
		}},
		Summary: triage.Summary{Total: 1, NotVulnerable: 1},
	}

	r := Build(result, Metadata{}, "en")
	require.Len(t, r.NextSteps, 1)
	assert.Contains(t, r.NextSteps[0], "No vulnerability was confirmed")
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	r := Build(sampleResult(), Metadata{RunID: "fixed"}, "en")
	require.NoError(t, r.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var loaded FinalReport
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "fixed", loaded.Metadata.RunID)
	assert.Len(t, loaded.Verdicts, 3)
	assert.Equal(t, r.Summary, loaded.Summary)
}

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/vulnvalid/pkg/triage"
)

// Metadata describes one validation run.
type Metadata struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	ReportPath  string    `json:"report_path"`
	TargetURL   string    `json:"target_url,omitempty"`
	SourcePath  string    `json:"source_path,omitempty"`
	Mode        string    `json:"mode"`
	Model       string    `json:"model,omitempty"`
	Language    string    `json:"language"`
}

// FinalReport is the complete artifact of one run: triage verdicts plus the
// narrative layer built on top of them.
type FinalReport struct {
	Metadata         Metadata                  `json:"metadata"`
	ExecutiveSummary string                    `json:"executive_summary"`
	NextSteps        []string                  `json:"next_steps"`
	RiskMatrix       map[string]map[string]int `json:"risk_matrix"`
	Verdicts         []triage.TriageVerdict    `json:"verdicts"`
	Summary          triage.Summary            `json:"summary"`
}

var severityOrder = []string{"critical", "high", "medium", "low"}

// Build assembles the final report from the triage result. The narrative is
// fully derived from the verdicts, so two runs over the same evidence produce
// the same text.
func Build(result *triage.Report, meta Metadata, lang string) *FinalReport {
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now().UTC()
	}
	lang = normalizeLang(lang)
	meta.Language = lang

	return &FinalReport{
		Metadata:         meta,
		ExecutiveSummary: executiveSummary(result.Summary, lang),
		NextSteps:        nextSteps(result, lang),
		RiskMatrix:       riskMatrix(result.Verdicts),
		Verdicts:         result.Verdicts,
		Summary:          result.Summary,
	}
}

func normalizeLang(lang string) string {
	if strings.ToLower(lang) == "es" {
		return "es"
	}
	return "en"
}

func executiveSummary(s triage.Summary, lang string) string {
	if lang == "es" {
		return fmt.Sprintf(
			"Se analizaron %d hallazgos reportados. %d fueron confirmados como vulnerables, "+
				"%d son posibles y requieren revisión manual, y %d no pudieron ser validados. "+
				"%d hallazgos adicionales fueron descubiertos durante el análisis sin estar en el informe original.",
			s.Total-s.Synthetic, s.Vulnerable, s.Possible, s.NotVulnerable, s.Synthetic)
	}
	return fmt.Sprintf(
		"%d reported findings were analyzed. %d were confirmed as vulnerable, "+
			"%d are possible and require manual review, and %d could not be validated. "+
			"%d additional findings were discovered during analysis that were absent from the original report.",
		s.Total-s.Synthetic, s.Vulnerable, s.Possible, s.NotVulnerable, s.Synthetic)
}

func nextSteps(result *triage.Report, lang string) []string {
	var steps []string
	s := result.Summary

	if lang == "es" {
		if s.Vulnerable > 0 {
			steps = append(steps, fmt.Sprintf("Remediar de inmediato los %d hallazgos confirmados, empezando por los de prioridad Critical.", s.Vulnerable))
		}
		if s.Possible > 0 {
			steps = append(steps, fmt.Sprintf("Revisar manualmente los %d hallazgos marcados como posibles.", s.Possible))
		}
		if s.Synthetic > 0 {
			steps = append(steps, fmt.Sprintf("Investigar los %d hallazgos no reportados detectados durante el análisis.", s.Synthetic))
		}
		if len(steps) == 0 {
			steps = append(steps, "No se confirmó ninguna vulnerabilidad; repetir la validación tras el próximo cambio relevante.")
		}
		return steps
	}

	if s.Vulnerable > 0 {
		steps = append(steps, fmt.Sprintf("Remediate the %d confirmed findings immediately, starting with Critical priority.", s.Vulnerable))
	}
	if s.Possible > 0 {
		steps = append(steps, fmt.Sprintf("Manually review the %d findings marked as possible.", s.Possible))
	}
	if s.Synthetic > 0 {
		steps = append(steps, fmt.Sprintf("Investigate the %d unreported findings discovered during analysis.", s.Synthetic))
	}
	if len(steps) == 0 {
		steps = append(steps, "No vulnerability was confirmed; re-run validation after the next relevant change.")
	}
	return steps
}

// riskMatrix counts verdicts per original severity and status.
func riskMatrix(verdicts []triage.TriageVerdict) map[string]map[string]int {
	matrix := make(map[string]map[string]int)
	for _, v := range verdicts {
		sev := strings.ToLower(v.OriginalSeverity)
		if !knownSeverity(sev) {
			sev = "medium"
		}
		if matrix[sev] == nil {
			matrix[sev] = make(map[string]int)
		}
		matrix[sev][string(v.Status)]++
	}
	return matrix
}

func knownSeverity(sev string) bool {
	for _, s := range severityOrder {
		if s == sev {
			return true
		}
	}
	return false
}

// Save writes the report as indented JSON.
func (r *FinalReport) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// Render prints the human-readable report to stdout.
func (r *FinalReport) Render() {
	fmt.Println(strings.Repeat("=", 64))
	fmt.Println("  VULNERABILITY VALIDATION REPORT")
	fmt.Println(strings.Repeat("=", 64))
	fmt.Printf("Run:       %s\n", r.Metadata.RunID)
	fmt.Printf("Generated: %s\n", r.Metadata.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("Report:    %s\n", r.Metadata.ReportPath)
	if r.Metadata.TargetURL != "" {
		fmt.Printf("Target:    %s\n", r.Metadata.TargetURL)
	}
	if r.Metadata.SourcePath != "" {
		fmt.Printf("Source:    %s\n", r.Metadata.SourcePath)
	}
	fmt.Printf("Mode:      %s\n", r.Metadata.Mode)
	fmt.Println()

	fmt.Println(r.ExecutiveSummary)
	fmt.Println()

	fmt.Println("FINDINGS")
	fmt.Println(strings.Repeat("-", 64))
	for _, v := range r.Verdicts {
		fmt.Printf("[%s] %s — %s\n", v.FindingID, v.Title, v.Status)
		fmt.Printf("    confidence=%s priority=%s severity=%s\n", v.Confidence, v.Priority, v.OriginalSeverity)
		fmt.Printf("    %s\n", v.Rationale)
	}
	fmt.Println()

	fmt.Println("RISK MATRIX (original severity x status)")
	fmt.Println(strings.Repeat("-", 64))
	for _, sev := range severityOrder {
		row, ok := r.RiskMatrix[sev]
		if !ok {
			continue
		}
		statuses := make([]string, 0, len(row))
		for st := range row {
			statuses = append(statuses, st)
		}
		sort.Strings(statuses)
		var cells []string
		for _, st := range statuses {
			cells = append(cells, fmt.Sprintf("%s=%d", st, row[st]))
		}
		fmt.Printf("%-10s %s\n", sev, strings.Join(cells, "  "))
	}
	fmt.Println()

	fmt.Println("NEXT STEPS")
	fmt.Println(strings.Repeat("-", 64))
	for i, step := range r.NextSteps {
		fmt.Printf("%d. %s\n", i+1, step)
	}
	fmt.Println(strings.Repeat("=", 64))
}

package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/user/vulnvalid/pkg/llm"
	"github.com/user/vulnvalid/pkg/triage"
)

// maxPromptChars caps the report text handed to the model so a large report
// does not blow the context window.
const maxPromptChars = 10000

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Reader extracts the vulnerability report text and structures it into
// finding candidates with the configured model. PDF parsing itself is
// delegated to pdftotext; plain-text reports are read directly.
type Reader struct {
	LLM llm.Provider
	Log *zap.Logger
}

func NewReader(provider llm.Provider, log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{LLM: provider, Log: log.Named("reader")}
}

// Read produces the document stage output for one report file.
func (r *Reader) Read(ctx context.Context, reportPath string) (*triage.DocumentResult, error) {
	text, err := r.extractText(ctx, reportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to extract report text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("report %s contains no extractable text", reportPath)
	}
	r.Log.Info("Report text extracted", zap.String("path", reportPath), zap.Int("chars", len(text)))

	reply, err := r.LLM.Generate(ctx, []llm.Message{
		{Role: "user", Content: buildReaderPrompt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("report interpretation failed: %w", err)
	}

	doc, err := parseReaderReply(reply)
	if err != nil {
		// Keep the raw text available rather than failing the stage.
		r.Log.Warn("Falling back to unstructured document result", zap.Error(err))
		return &triage.DocumentResult{
			Title:   filepath.Base(reportPath),
			Summary: truncateText(text, 5000),
		}, nil
	}

	r.Log.Info("Report structured", zap.Int("findings", len(doc.Findings)))
	return doc, nil
}

func (r *Reader) extractText(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		return string(data), err
	default:
		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, "pdftotext", path, "-")
		cmd.Stdout = &out
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("pdftotext failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
		}
		return out.String(), nil
	}
}

func buildReaderPrompt(text string) string {
	return fmt.Sprintf(`You are a vulnerability report reader. Extract and structure the
vulnerability information from this report text.

REPORT TEXT:
%s

Extract every reported vulnerability with its identifier, title, type
(XSS, SQLi, CSRF, ...), severity, CVSS score if present, affected
endpoints or components, description, proof of concept and remediation.

Respond ONLY with a JSON object in exactly this shape:
{
  "report_metadata": {"title": "string", "date": "string", "target": "string"},
  "executive_summary": "string",
  "vulnerabilities": [
    {
      "id": "string",
      "title": "string",
      "type": "string",
      "severity": "Critical|High|Medium|Low",
      "cvss_score": "string",
      "affected_components": ["string"],
      "description": "string",
      "proof_of_concept": "string",
      "remediation": "string"
    }
  ]
}`, truncateText(text, maxPromptChars))
}

// readerReply mirrors the JSON shape the prompt asks for.
type readerReply struct {
	ReportMetadata struct {
		Title  string `json:"title"`
		Date   string `json:"date"`
		Target string `json:"target"`
	} `json:"report_metadata"`
	ExecutiveSummary string `json:"executive_summary"`
	Vulnerabilities  []struct {
		ID                 string   `json:"id"`
		Title              string   `json:"title"`
		Type               string   `json:"type"`
		Severity           string   `json:"severity"`
		CVSSScore          string   `json:"cvss_score"`
		AffectedComponents []string `json:"affected_components"`
		Description        string   `json:"description"`
		ProofOfConcept     string   `json:"proof_of_concept"`
		Remediation        string   `json:"remediation"`
	} `json:"vulnerabilities"`
}

func parseReaderReply(reply string) (*triage.DocumentResult, error) {
	raw := jsonObjectRe.FindString(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in model reply")
	}

	var parsed readerReply
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("malformed JSON in model reply: %w", err)
	}

	doc := &triage.DocumentResult{
		Title:   parsed.ReportMetadata.Title,
		Date:    parsed.ReportMetadata.Date,
		Target:  parsed.ReportMetadata.Target,
		Summary: parsed.ExecutiveSummary,
	}
	for _, v := range parsed.Vulnerabilities {
		doc.Findings = append(doc.Findings, triage.Finding{
			ID:                 v.ID,
			Title:              v.Title,
			Type:               v.Type,
			Severity:           v.Severity,
			CVSSScore:          v.CVSSScore,
			AffectedComponents: v.AffectedComponents,
			Description:        v.Description,
			ProofOfConcept:     v.ProofOfConcept,
			Remediation:        v.Remediation,
			Origin:             triage.OriginDocument,
		})
	}
	return doc, nil
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/vulnvalid/pkg/triage"
)

// Static runs semgrep over the source tree and converts its findings into
// raw match records for the triage core. The scanner itself stays an
// external tool; only its JSON output contract lives here.
type Static struct {
	Log            *zap.Logger
	Timeout        time.Duration
	MaxTargetBytes int
}

func NewStatic(log *zap.Logger, timeout time.Duration) *Static {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Static{Log: log.Named("static"), Timeout: timeout, MaxTargetBytes: 1000000}
}

// Scan executes semgrep and links matches to the reported findings where a
// match path overlaps an affected component. Exit code 1 means findings
// were found and is not an error.
func (s *Static) Scan(ctx context.Context, sourcePath string, findings []triage.Finding) ([]triage.StaticMatch, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	args := []string{
		"--config=auto",
		"--json",
		"--no-git-ignore",
		fmt.Sprintf("--max-target-bytes=%d", s.MaxTargetBytes),
		sourcePath,
	}

	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "semgrep", args...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	s.Log.Info("Running semgrep scan", zap.String("source", sourcePath))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("semgrep failed: %v (%s)", err, strings.TrimSpace(stderr.String()))
		}
	}

	matches, err := ParseSemgrepOutput(out.Bytes())
	if err != nil {
		return nil, err
	}
	for i := range matches {
		matches[i].FindingID = linkMatch(matches[i], findings)
	}
	s.Log.Info("Semgrep scan complete", zap.Int("matches", len(matches)))
	return matches, nil
}

// semgrepOutput is the subset of the semgrep JSON schema the stage consumes.
type semgrepOutput struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Message  string `json:"message"`
			Lines    string `json:"lines"`
			Severity string `json:"severity"`
		} `json:"extra"`
	} `json:"results"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ParseSemgrepOutput converts raw semgrep JSON into match records.
func ParseSemgrepOutput(data []byte) ([]triage.StaticMatch, error) {
	var parsed semgrepOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse semgrep output: %w", err)
	}

	matches := make([]triage.StaticMatch, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		matches = append(matches, triage.StaticMatch{
			RuleID:   r.CheckID,
			File:     r.Path,
			Line:     r.Start.Line,
			Snippet:  strings.TrimSpace(r.Extra.Lines),
			Message:  r.Extra.Message,
			Category: categoryFromRule(r.CheckID),
		})
	}
	return matches, nil
}

// categoryFromRule derives a readable category from a semgrep check id like
// "python.django.security.injection.sql.sql-injection-db-cursor-execute".
func categoryFromRule(checkID string) string {
	parts := strings.Split(checkID, ".")
	last := parts[len(parts)-1]
	return strings.ReplaceAll(last, "-", " ")
}

// linkMatch associates a semgrep match with a reported finding when the
// match path contains one of the finding's affected components (or the
// other way round). Ambiguity is left to the correlation engine.
func linkMatch(m triage.StaticMatch, findings []triage.Finding) string {
	path := strings.ToLower(m.File)
	for _, f := range findings {
		for _, comp := range f.AffectedComponents {
			c := strings.ToLower(strings.Trim(comp, "/"))
			if c == "" {
				continue
			}
			if strings.Contains(path, c) || strings.Contains(c, strings.ToLower(baseName(m.File))) {
				return f.ID
			}
		}
	}
	return ""
}

func baseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		path = path[idx+1:]
	}
	if idx := strings.LastIndexByte(path, '.'); idx > 0 {
		path = path[:idx]
	}
	return path
}

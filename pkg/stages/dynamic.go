package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/vulnvalid/pkg/llm"
	"github.com/user/vulnvalid/pkg/triage"
)

const probeUserAgent = "vulnvalid/1.0"

// maxResponseBytes bounds how much of a probe response is read and kept.
const maxResponseBytes = 64 * 1024

// slowResponseThreshold marks a probe as a possible time-based indicator.
const slowResponseThreshold = 5 * time.Second

var (
	requestLineRe = regexp.MustCompile(`(GET|POST|PUT|DELETE)\s+(\S+)`)
	payloadRe     = regexp.MustCompile(`(?i)payload[\s=:]+['"]([^'"]+)['"]`)
	queryPairRe   = regexp.MustCompile(`[?&]([^=&\s]+)=([^&\s]+)`)
)

// exploitMarkers are response fragments that indicate the probe reached
// something it should not have. Checked case-insensitively.
var exploitMarkers = []string{
	"sql syntax", "sqlite error", "psql:", "ora-", "mysql_fetch",
	"uid=", "root:x:", "/etc/passwd", "system32",
	"traceback (most recent call last)", "stack trace",
}

// Dynamic replays each reported vulnerability against the live target
// exactly as reported and records the outcome. It validates, it does not
// explore: no reconnaissance, no extra payloads.
type Dynamic struct {
	Client *http.Client
	LLM    llm.Provider // optional; refines indicator analysis
	Log    *zap.Logger
}

func NewDynamic(provider llm.Provider, log *zap.Logger, timeout time.Duration) *Dynamic {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dynamic{
		Client: &http.Client{Timeout: timeout},
		LLM:    provider,
		Log:    log.Named("dynamic"),
	}
}

// Probe tests every finding against the target and returns one record per
// probe. Individual probe failures degrade to an unexploited record; they
// never abort the stage.
func (d *Dynamic) Probe(ctx context.Context, targetURL string, findings []triage.Finding) []triage.ProbeRecord {
	records := make([]triage.ProbeRecord, 0, len(findings))
	for _, f := range findings {
		rec := d.probeOne(ctx, targetURL, f)
		records = append(records, rec)
		d.Log.Info("Probe complete",
			zap.String("finding", f.ID),
			zap.Int("status", rec.StatusCode),
			zap.Bool("exploited", rec.Exploited),
			zap.Bool("blocked", rec.Blocked),
		)
	}
	return records
}

func (d *Dynamic) probeOne(ctx context.Context, targetURL string, f triage.Finding) triage.ProbeRecord {
	spec := DeriveProbe(f)
	rec := triage.ProbeRecord{
		FindingID: f.ID,
		Category:  f.Type,
		Method:    spec.Method,
		Endpoint:  spec.Endpoint,
		Parameter: spec.Parameter,
		Payload:   spec.Payload,
	}

	probeURL, body, contentType := spec.build(targetURL)
	rec.RequestLine = fmt.Sprintf("%s %s HTTP/1.1", spec.Method, probeURL)

	req, err := http.NewRequestWithContext(ctx, spec.Method, probeURL, strings.NewReader(body))
	if err != nil {
		rec.Indicator = fmt.Sprintf("request build failed: %v", err)
		return rec
	}
	req.Header.Set("User-Agent", probeUserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := d.Client.Do(req)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Indicator = fmt.Sprintf("request failed: %v", err)
		return rec
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	rec.StatusCode = resp.StatusCode
	rec.Response = string(respBody)

	rec.Exploited, rec.Blocked, rec.Indicator = ClassifyResponse(resp.StatusCode, rec.Duration, string(respBody), spec.Payload)

	// An LLM can pick up effect indicators the marker list misses, but it
	// is only ever allowed to upgrade, never to veto a marker hit.
	if !rec.Exploited && !rec.Blocked && d.LLM != nil {
		if ok, evidence := d.analyzeWithLLM(ctx, f, spec.Payload, string(respBody)); ok {
			rec.Exploited = true
			rec.Indicator = evidence
		}
	}
	return rec
}

// ProbeSpec is the request derived from a reported finding.
type ProbeSpec struct {
	Method    string
	Endpoint  string
	Parameter string
	Payload   string
}

// DeriveProbe recovers method, endpoint, parameter and payload from the
// finding, falling back to its proof-of-concept text when the structured
// fields are missing. This mirrors how the reports themselves describe
// reproduction steps.
func DeriveProbe(f triage.Finding) ProbeSpec {
	spec := ProbeSpec{Method: "GET", Endpoint: "/"}

	if len(f.AffectedComponents) > 0 {
		spec.Endpoint = f.AffectedComponents[0]
	}

	poc := f.ProofOfConcept
	if m := requestLineRe.FindStringSubmatch(poc); m != nil {
		spec.Method = m[1]
		spec.Endpoint = m[2]
	}

	if m := payloadRe.FindStringSubmatch(poc); m != nil {
		spec.Payload = m[1]
	} else if m := queryPairRe.FindStringSubmatch(spec.Endpoint); m != nil {
		spec.Parameter = m[1]
		spec.Payload = m[2]
		// Strip the query from the endpoint; build() re-applies it.
		if idx := strings.IndexByte(spec.Endpoint, '?'); idx >= 0 {
			spec.Endpoint = spec.Endpoint[:idx]
		}
	}

	return spec
}

// build assembles the request target, body and content type.
func (s ProbeSpec) build(targetURL string) (probeURL, body, contentType string) {
	base := strings.TrimRight(targetURL, "/")
	endpoint := s.Endpoint
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	probeURL = base + endpoint

	switch s.Method {
	case "POST", "PUT":
		if s.Parameter != "" && s.Payload != "" {
			body = url.Values{s.Parameter: {s.Payload}}.Encode()
			contentType = "application/x-www-form-urlencoded"
		} else if s.Payload != "" {
			body = s.Payload
			contentType = "application/x-www-form-urlencoded"
		}
	default:
		if s.Parameter != "" && s.Payload != "" {
			sep := "?"
			if strings.Contains(probeURL, "?") {
				sep = "&"
			}
			probeURL += sep + s.Parameter + "=" + url.QueryEscape(s.Payload)
		}
	}
	return probeURL, body, contentType
}

// ClassifyResponse decides whether a probe response demonstrates the
// vulnerability effect, was explicitly blocked, or only carries an
// inconclusive indicator.
func ClassifyResponse(status int, duration time.Duration, body, payload string) (exploited, blocked bool, indicator string) {
	lower := strings.ToLower(body)

	for _, marker := range exploitMarkers {
		if strings.Contains(lower, marker) {
			return true, false, fmt.Sprintf("response contains %q", marker)
		}
	}
	if payload != "" && strings.Contains(body, payload) {
		return true, false, "payload reflected in response"
	}

	switch {
	case status == 400 || status == 401 || status == 403 || status == 405:
		return false, true, fmt.Sprintf("request blocked with HTTP %d", status)
	case status >= 500:
		return false, false, fmt.Sprintf("server error response: %d", status)
	case duration > slowResponseThreshold:
		return false, false, fmt.Sprintf("unusual response time: %s", duration.Round(time.Millisecond))
	}
	return false, false, ""
}

func (d *Dynamic) analyzeWithLLM(ctx context.Context, f triage.Finding, payload, response string) (bool, string) {
	prompt := fmt.Sprintf(`Analyze this HTTP response and decide whether the reported
vulnerability was successfully exploited.

Vulnerability type: %s
Description: %s
Payload used: %s

HTTP response (truncated):
%s

Respond ONLY with raw JSON: {"vulnerable": true|false, "evidence": "string"}`,
		f.Type, f.Description, payload, truncateText(response, 2000))

	reply, err := d.LLM.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}})
	if err != nil {
		d.Log.Warn("LLM response analysis failed", zap.String("finding", f.ID), zap.Error(err))
		return false, ""
	}

	raw := jsonObjectRe.FindString(reply)
	if raw == "" {
		return false, ""
	}
	var verdict struct {
		Vulnerable bool   `json:"vulnerable"`
		Evidence   string `json:"evidence"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return false, ""
	}
	return verdict.Vulnerable, verdict.Evidence
}

package triage

import "time"

// Source identifies which analysis stage produced a piece of evidence.
type Source string

const (
	SourceDocument Source = "document"
	SourceStatic   Source = "static"
	SourceDynamic  Source = "dynamic"
)

// Strength is the qualitative confidence of a single evidence record.
type Strength string

const (
	StrengthStrong Strength = "strong"
	StrengthWeak   Strength = "weak"
	StrengthNone   Strength = "none"
)

// Status is the final per-finding verdict status.
type Status string

const (
	StatusVulnerable    Status = "Vulnerable"
	StatusPossible      Status = "Possible"
	StatusNotVulnerable Status = "Not Vulnerable"
)

// StatusRank orders statuses so callers can reason about escalation.
// Not Vulnerable < Possible < Vulnerable.
func StatusRank(s Status) int {
	switch s {
	case StatusVulnerable:
		return 2
	case StatusPossible:
		return 1
	default:
		return 0
	}
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

type Priority string

const (
	PriorityCritical Priority = "Critical"
	PriorityHigh     Priority = "High"
	PriorityMedium   Priority = "Medium"
	PriorityLow      Priority = "Low"
)

// Finding origin values. Synthetic findings are created during correlation
// when evidence cannot be matched to anything the report document claimed.
const (
	OriginDocument   = "document"
	OriginUnreported = "unreported-by-document"
)

// Finding is a single reported (or discovered) vulnerability claim tracked
// through one triage run. ID is unique within a run.
type Finding struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Type               string   `json:"type"`
	Severity           string   `json:"severity"`
	CVSSScore          string   `json:"cvss_score,omitempty"`
	AffectedComponents []string `json:"affected_components,omitempty"`
	Description        string   `json:"description"`
	ProofOfConcept     string   `json:"proof_of_concept,omitempty"`
	Remediation        string   `json:"remediation,omitempty"`
	Origin             string   `json:"origin"`
}

// DocumentPayload carries the report-derived content of a document evidence
// record.
type DocumentPayload struct {
	ReportTitle string `json:"report_title,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
}

// StaticPayload carries the source-analysis content of a static evidence
// record.
type StaticPayload struct {
	RuleID  string `json:"rule_id"`
	File    string `json:"file"`
	Line    int    `json:"line"`
	Snippet string `json:"snippet,omitempty"`
	Message string `json:"message,omitempty"`
}

// DynamicPayload carries the live-probe content of a dynamic evidence record.
type DynamicPayload struct {
	Request    string `json:"request"`
	Response   string `json:"response,omitempty"`
	Payload    string `json:"payload,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Blocked    bool   `json:"blocked"`
	Indicator  string `json:"indicator,omitempty"`
}

// EvidenceRecord is one unit of corroborating or refuting data, tagged by
// source. Exactly one of the payload pointers matching Source is set.
// Records are never mutated after correlation assigns FindingRef.
type EvidenceRecord struct {
	Source     Source           `json:"source"`
	FindingRef string           `json:"finding_ref,omitempty"`
	Strength   Strength         `json:"strength"`
	Location   string           `json:"location,omitempty"`
	Category   string           `json:"category,omitempty"`
	Duplicate  bool             `json:"duplicate,omitempty"`
	Document   *DocumentPayload `json:"document,omitempty"`
	Static     *StaticPayload   `json:"static,omitempty"`
	Dynamic    *DynamicPayload  `json:"dynamic,omitempty"`
}

// TriageVerdict is the engine output for one finding. Evidence keeps the
// order in which records were correlated so the rationale is reproducible.
type TriageVerdict struct {
	FindingID        string           `json:"finding_id"`
	Title            string           `json:"title"`
	Origin           string           `json:"origin"`
	OriginalSeverity string           `json:"original_severity"`
	Status           Status           `json:"status"`
	Confidence       Confidence       `json:"confidence"`
	Priority         Priority         `json:"priority"`
	Rule             int              `json:"rule"`
	Rationale        string           `json:"rationale"`
	Evidence         []EvidenceRecord `json:"evidence"`
}

// Summary holds the run-level tallies. Constructed once per orchestrator
// invocation, never ambient state.
type Summary struct {
	Total            int `json:"total"`
	Vulnerable       int `json:"vulnerable"`
	Possible         int `json:"possible"`
	NotVulnerable    int `json:"not_vulnerable"`
	HighConfidence   int `json:"high_confidence"`
	MediumConfidence int `json:"medium_confidence"`
	LowConfidence    int `json:"low_confidence"`
	HighPriority     int `json:"high_priority"`
	Synthetic        int `json:"synthetic"`
}

// Report is the materialized result of one triage run.
type Report struct {
	Verdicts []TriageVerdict `json:"verdicts"`
	Summary  Summary         `json:"summary"`
}

// DocumentResult is the raw output contract of the reader collaborator.
type DocumentResult struct {
	Title    string    `json:"title"`
	Date     string    `json:"date,omitempty"`
	Target   string    `json:"target,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Findings []Finding `json:"findings"`
}

// StaticMatch is the raw output contract of the static-analysis
// collaborator. FindingID is set when the scanner was given finding context
// and could link the match itself. Negative marks a match that demonstrates
// a control is present (mitigating evidence) rather than a flaw.
type StaticMatch struct {
	FindingID string `json:"finding_id,omitempty"`
	RuleID    string `json:"rule_id"`
	File      string `json:"file"`
	Line      int    `json:"line"`
	Snippet   string `json:"snippet,omitempty"`
	Message   string `json:"message,omitempty"`
	Category  string `json:"category,omitempty"`
	Negative  bool   `json:"negative,omitempty"`
}

// ProbeRecord is the raw output contract of the dynamic-probing
// collaborator: one request replayed against the target plus the observed
// response.
type ProbeRecord struct {
	FindingID   string        `json:"finding_id,omitempty"`
	Category    string        `json:"category,omitempty"`
	Method      string        `json:"method"`
	Endpoint    string        `json:"endpoint"`
	Parameter   string        `json:"parameter,omitempty"`
	Payload     string        `json:"payload,omitempty"`
	RequestLine string        `json:"request_line"`
	Response    string        `json:"response,omitempty"`
	StatusCode  int           `json:"status_code"`
	Duration    time.Duration `json:"duration"`
	Exploited   bool          `json:"exploited"`
	Blocked     bool          `json:"blocked"`
	Indicator   string        `json:"indicator,omitempty"`
}

package triage

import (
	"errors"

	"go.uber.org/zap"
)

// ErrNoInput is returned when there is nothing to triage at all: no
// findings and no evidence from any stage. It is distinct from a run where
// everything triaged as Not Vulnerable.
var ErrNoInput = errors.New("no input to triage")

// StageOutputs carries whatever the executed stages produced. A nil
// Document or an empty slice means the stage was absent; the decision rules
// handle empty partitions without special-casing.
type StageOutputs struct {
	Document *DocumentResult
	Static   []StaticMatch
	Dynamic  []ProbeRecord
}

// Options tunes one orchestrator run.
type Options struct {
	// SimilarityThreshold for correlation; zero selects the default.
	SimilarityThreshold float64
	// DynamicCriteria classifies probe strength; nil selects the default.
	DynamicCriteria DynamicCriteria
}

// Orchestrator sequences normalize, correlate and decide over fully
// materialized stage outputs. It holds no state across runs.
type Orchestrator struct {
	opts Options
	log  *zap.Logger
}

// NewOrchestrator builds an orchestrator. A nil logger is replaced with a
// no-op logger.
func NewOrchestrator(opts Options, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{opts: opts, log: log.Named("triage")}
}

// Run executes one triage pass and returns verdicts in input finding order
// with synthetic findings appended in discovery order, plus summary counts.
// Re-running on the same inputs yields identical output. No error inside
// the core is fatal except the explicit no-input condition.
func (o *Orchestrator) Run(in StageOutputs) (*Report, error) {
	findings, docEvidence, err := NormalizeDocument(in.Document)
	if err != nil {
		// Validation failure drops the document contribution only; triage
		// continues with whatever evidence remains.
		o.log.Warn("Dropping document stage contribution", zap.Error(err))
		findings, docEvidence = nil, nil
	}

	staticEvidence := NormalizeStatic(in.Static)
	dynamicEvidence := NormalizeDynamic(in.Dynamic, o.opts.DynamicCriteria)

	if len(findings) == 0 && len(staticEvidence) == 0 && len(dynamicEvidence) == 0 {
		return nil, ErrNoInput
	}

	evidence := make([]EvidenceRecord, 0, len(docEvidence)+len(staticEvidence)+len(dynamicEvidence))
	evidence = append(evidence, docEvidence...)
	evidence = append(evidence, staticEvidence...)
	evidence = append(evidence, dynamicEvidence...)

	correlator := NewCorrelator(o.opts.SimilarityThreshold)
	allFindings, correlated := correlator.Correlate(findings, evidence)

	// Partition per finding, preserving correlation order within each.
	byFinding := make(map[string][]EvidenceRecord, len(allFindings))
	for _, ev := range correlated {
		byFinding[ev.FindingRef] = append(byFinding[ev.FindingRef], ev)
	}

	report := &Report{Verdicts: make([]TriageVerdict, 0, len(allFindings))}
	for _, f := range allFindings {
		verdict := Decide(f, byFinding[f.ID])
		report.Verdicts = append(report.Verdicts, verdict)
		tally(&report.Summary, verdict)
	}

	o.log.Info("Triage complete",
		zap.Int("findings", report.Summary.Total),
		zap.Int("vulnerable", report.Summary.Vulnerable),
		zap.Int("possible", report.Summary.Possible),
		zap.Int("not_vulnerable", report.Summary.NotVulnerable),
		zap.Int("synthetic", report.Summary.Synthetic),
	)
	return report, nil
}

func tally(s *Summary, v TriageVerdict) {
	s.Total++
	switch v.Status {
	case StatusVulnerable:
		s.Vulnerable++
	case StatusPossible:
		s.Possible++
	default:
		s.NotVulnerable++
	}
	switch v.Confidence {
	case ConfidenceHigh:
		s.HighConfidence++
	case ConfidenceMedium:
		s.MediumConfidence++
	default:
		s.LowConfidence++
	}
	if v.Priority == PriorityCritical || v.Priority == PriorityHigh {
		s.HighPriority++
	}
	if v.Origin == OriginUnreported {
		s.Synthetic++
	}
}

package triage

import (
	"fmt"
	"strings"
)

// DefaultSimilarityThreshold is the minimum combined similarity score an
// evidence record needs against an existing finding before correlation
// creates a synthetic finding instead. The metric is a token overlap, so the
// value is deliberately permissive.
const DefaultSimilarityThreshold = 0.4

// Correlator matches evidence records to findings. One instance is built
// per run; it owns the synthetic-finding counter so ids stay deterministic.
type Correlator struct {
	threshold float64
	synthetic int
}

// NewCorrelator builds a correlator with the given similarity threshold.
// A zero or negative threshold selects the default.
func NewCorrelator(threshold float64) *Correlator {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	return &Correlator{threshold: threshold}
}

// Correlate assigns every evidence record a finding reference. Records with
// an explicit, known finding linkage keep it; the rest are matched by
// similarity on location and category/title. A record below the threshold
// against every candidate spawns a new synthetic finding rather than being
// discarded. The returned finding slice preserves input order with
// synthetic findings appended in discovery order, and the returned evidence
// slice preserves correlation order with duplicates flagged.
func (c *Correlator) Correlate(findings []Finding, evidence []EvidenceRecord) ([]Finding, []EvidenceRecord) {
	all := make([]Finding, len(findings))
	copy(all, findings)

	known := make(map[string]int, len(all))
	for i, f := range all {
		known[f.ID] = i
	}

	// Tracks source|location|category per finding so the same logical match
	// is never double counted by the decision engine.
	seen := make(map[string]bool)

	out := make([]EvidenceRecord, 0, len(evidence))
	for _, ev := range evidence {
		if ev.FindingRef != "" {
			if _, ok := known[ev.FindingRef]; !ok {
				// Dangling linkage from a stage; fall through to matching.
				ev.FindingRef = ""
			}
		}

		if ev.FindingRef == "" {
			if id, ok := c.bestMatch(all, ev); ok {
				ev.FindingRef = id
			} else {
				syn := c.newSyntheticFinding(ev)
				all = append(all, syn)
				known[syn.ID] = len(all) - 1
				ev.FindingRef = syn.ID
			}
		}

		key := dedupKey(ev)
		if seen[key] {
			ev.Duplicate = true
		} else {
			seen[key] = true
		}
		out = append(out, ev)
	}
	return all, out
}

// bestMatch scores the record against every finding and returns the winner
// when it clears the threshold. Equal scores prefer the lexicographically
// smaller finding id so correlation stays deterministic.
func (c *Correlator) bestMatch(findings []Finding, ev EvidenceRecord) (string, bool) {
	bestID := ""
	bestScore := 0.0
	for _, f := range findings {
		score := matchScore(f, ev)
		if score > bestScore || (score == bestScore && score > 0 && f.ID < bestID) {
			bestID = f.ID
			bestScore = score
		}
	}
	if bestScore >= c.threshold {
		return bestID, true
	}
	return "", false
}

func (c *Correlator) newSyntheticFinding(ev EvidenceRecord) Finding {
	c.synthetic++
	title := ev.Category
	if title == "" {
		title = fmt.Sprintf("Unreported %s finding", ev.Source)
	}
	desc := fmt.Sprintf("Surfaced by %s analysis; not present in the report document.", ev.Source)
	if ev.Location != "" {
		desc += " Location: " + ev.Location
	}
	return Finding{
		ID:          fmt.Sprintf("unreported-%03d", c.synthetic),
		Title:       title,
		Type:        ev.Category,
		Description: desc,
		Origin:      OriginUnreported,
	}
}

// matchScore combines category/title similarity with location similarity.
// Whichever of the two dimensions the record actually carries decides the
// weighting; a record with neither scores zero everywhere.
func matchScore(f Finding, ev EvidenceRecord) float64 {
	catScore := similarity(ev.Category, f.Type)
	if s := similarity(ev.Category, f.Title); s > catScore {
		catScore = s
	}
	locScore := 0.0
	for _, comp := range f.AffectedComponents {
		if s := similarity(ev.Location, comp); s > locScore {
			locScore = s
		}
	}

	switch {
	case ev.Category == "" && ev.Location == "":
		return 0
	case ev.Category == "":
		return locScore
	case ev.Location == "" || len(f.AffectedComponents) == 0:
		return catScore
	default:
		return 0.6*catScore + 0.4*locScore
	}
}

// similarity is a token-level Jaccard index over lowercased alphanumeric
// tokens. Any deterministic metric satisfies the correlation contract; this
// one needs no dependencies and is order-insensitive.
func similarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if tb[tok] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens[cur.String()] = true
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func dedupKey(ev EvidenceRecord) string {
	return ev.FindingRef + "|" + string(ev.Source) + "|" + ev.Location + "|" + ev.Category
}

package alerts

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Scorer computes severity and verification scores. Both are always
// recomputed from an alert's entire accumulated source list, never patched
// incrementally, so scoring the same accumulated state twice yields the same
// result.
type Scorer struct {
	Taxonomy Taxonomy
}

// NewScorer returns a scorer over the given taxonomy.
func NewScorer(taxonomy Taxonomy) Scorer {
	return Scorer{Taxonomy: taxonomy}
}

const (
	verificationFloor   = 0.30
	verificationCap     = 0.95
	defaultSourceWeight = 0.5
)

// VerificationScore derives corroboration confidence from the distinct
// source names in the accumulated list. A single source yields the floor; a
// saturating curve over the credibility weights of the remaining sources
// adds diminishing returns, so low-credibility corroboration never jumps the
// score the way an independent wire service does.
func (s Scorer) VerificationScore(sources []SourceRef) float64 {
	weights := s.distinctSourceWeights(sources)
	if len(weights) == 0 {
		return 0
	}
	if len(weights) == 1 {
		return verificationFloor
	}

	// Strongest source anchors the floor; the rest corroborate.
	remaining := 1.0
	for _, w := range weights[1:] {
		remaining *= 1 - 0.55*w
	}
	extra := 1 - remaining

	score := verificationFloor + (verificationCap-verificationFloor)*extra
	return clampRange(score, 0, 1)
}

func (s Scorer) distinctSourceWeights(sources []SourceRef) []float64 {
	seen := make(map[string]struct{}, len(sources))
	var weights []float64
	for _, ref := range sources {
		name := strings.ToLower(strings.TrimSpace(ref.Name))
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		weight, ok := s.Taxonomy.SourceWeights[name]
		if !ok {
			weight = defaultSourceWeight
		}
		weights = append(weights, weight)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	return weights
}

var casualtyPattern = regexp.MustCompile(`(\d[\d,]*)\s+(?:dead|killed|deaths|casualties|injured|missing)`)

// Severity maps keyword and external signals onto the 1-5 scale. Boundary
// values round up (3.5 becomes 4) so the pipeline never under-alerts on a
// tie.
func (s Scorer) Severity(category Category, text string, signals map[string]float64, verification float64) int {
	lowered := strings.ToLower(text)

	severity, ok := s.Taxonomy.BaseSeverity[category]
	if !ok {
		severity = 3
	}

	if containsAny(lowered, s.Taxonomy.HighRiskTerms) {
		severity++
	}
	if containsAny(lowered, s.Taxonomy.EscalationTerms) {
		severity++
	}
	severity += casualtyBump(lowered)

	if magnitude, ok := signals["magnitude"]; ok && magnitude > 0 {
		severity += clampRange((magnitude-4.0)/2.0, 0, 2)
	}
	if hint, ok := signals["severity_hint"]; ok && hint > 0 {
		severity = (severity + clampRange(hint, 1, 5)) / 2
	}

	if verification < 0.45 {
		severity--
	}

	severity = clampRange(severity, 1, 5)
	return int(math.Floor(severity + 0.5))
}

func casualtyBump(lowered string) float64 {
	matches := casualtyPattern.FindAllStringSubmatch(lowered, -1)
	top := 0
	for _, m := range matches {
		count, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		if count > top {
			top = count
		}
	}
	switch {
	case top >= 100:
		return 1.5
	case top >= 10:
		return 1.0
	case top >= 1:
		return 0.5
	}
	return 0
}

// ScoreAlert recomputes severity and verification from the alert's
// accumulated sources and content, then applies the verified invariant. An
// unset category is filled from the keyword heuristic; a category assigned
// by the classification service is kept. Idempotent: calling it twice on the
// same state changes nothing the second time.
func (s Scorer) ScoreAlert(alert *Alert) {
	text := accumulatedText(alert)

	if alert.Category == "" {
		alert.Category = s.Taxonomy.ClassifyText(text)
	}

	score := s.VerificationScore(alert.Sources)
	rounded := roundTo(score, 4)
	alert.VerificationScore = &rounded
	alert.Verified = rounded >= VerificationThreshold

	alert.Severity = s.Severity(alert.Category, text, alert.Signals, rounded)
}

// accumulatedText joins the alert's own content with every corroborating
// source title. Sources are kept sorted, so the text is a pure function of
// the accumulated set regardless of merge order.
func accumulatedText(alert *Alert) string {
	parts := make([]string, 0, len(alert.Sources)+2)
	parts = append(parts, alert.Title, alert.FullContent)
	for _, ref := range alert.Sources {
		parts = append(parts, ref.Title)
	}
	return strings.Join(parts, " ")
}

// Summarize derives a short alert summary from the representative candidate.
func Summarize(rep Candidate) string {
	body := strings.TrimSpace(rep.Body)
	if body == "" {
		return strings.TrimSpace(rep.Title)
	}
	if idx := strings.IndexAny(body, ".!?"); idx > 40 && idx < 240 {
		return body[:idx+1]
	}
	return truncate(body, 240)
}

func truncate(text string, max int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}

func containsAny(lowered string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTo(v float64, prec int) float64 {
	p := math.Pow10(prec)
	return math.Round(v*p) / p
}

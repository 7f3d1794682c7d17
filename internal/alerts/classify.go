package alerts

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Classification is the result of categorizing a piece of text, either via
// the external natural-language service or the keyword heuristic.
type Classification struct {
	Category Category
	Country  string
	Region   string
	Signals  map[string]float64
}

// ClassifierService is the external natural-language classification
// interface. On failure the caller falls back to the keyword heuristic
// rather than blocking the pipeline.
type ClassifierService interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]{3,}`)

var stopWords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {}, "were": {},
	"will": {}, "would": {}, "into": {}, "about": {}, "after": {},
	"before": {}, "under": {}, "over": {}, "their": {}, "there": {},
	"where": {}, "report": {}, "reports": {}, "said": {}, "says": {},
	"news": {}, "breaking": {},
}

// tokenize lowercases text and returns its stop-word-stripped tokens.
func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		if _, ok := stopWords[token]; ok {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func tokenSet(text string) map[string]struct{} {
	tokens := tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// ClassifyText picks the category whose keywords occur most often in the
// text. Defaults to natural_disaster when nothing matches, mirroring the
// upstream feeds where unlabelled items are overwhelmingly disaster wires.
func (t Taxonomy) ClassifyText(text string) Category {
	lowered := strings.ToLower(text)

	top := CategoryNaturalDisaster
	topScore := -1
	for _, category := range Categories {
		score := 0
		for _, keyword := range t.CategoryKeywords[category] {
			score += strings.Count(lowered, keyword)
		}
		if score > topScore {
			topScore = score
			top = category
		}
	}
	return top
}

// GuessCountry resolves a country name from free text using the hint table.
// Cheap by design: it backs the correlation engine's coarse bucketing and
// must never call out to the geocoder.
func (t Taxonomy) GuessCountry(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	lowered := " " + strings.ToLower(text) + " "
	hints := make([]string, 0, len(t.CountryHints))
	for hint := range t.CountryHints {
		hints = append(hints, hint)
	}
	sort.Strings(hints)
	for _, hint := range hints {
		if strings.Contains(lowered, " "+hint+" ") || strings.Contains(lowered, " "+hint+",") {
			return t.CountryHints[hint]
		}
	}
	return ""
}

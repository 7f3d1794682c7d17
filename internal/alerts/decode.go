package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type rawCandidate struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Body         string             `json:"body"`
	Source       json.RawMessage    `json:"source"`
	URL          string             `json:"url"`
	PublishedAt  string             `json:"published_at"`
	LocationText string             `json:"location_text"`
	Signals      map[string]float64 `json:"signals"`
}

type rawSource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DecodeCandidates parses a normalized adapter payload into candidates.
// Malformed items are dropped and counted rather than failing the batch;
// only a payload that is not valid JSON at all is an error.
func DecodeCandidates(data []byte, sourceName string) ([]Candidate, int, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))

	var raws []rawCandidate
	if err := decoder.Decode(&raws); err != nil {
		return nil, 0, fmt.Errorf("decode candidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(raws))
	dropped := 0
	for _, r := range raws {
		candidate, ok := r.toCandidate(sourceName)
		if !ok {
			dropped++
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, dropped, nil
}

func (r rawCandidate) toCandidate(fallbackSource string) (Candidate, bool) {
	if strings.TrimSpace(r.Title) == "" || strings.TrimSpace(r.URL) == "" {
		return Candidate{}, false
	}

	published, err := parseTimestamp(r.PublishedAt)
	if err != nil {
		return Candidate{}, false
	}

	name := fallbackSource
	if refs := normalizeSourceRefs(r.Source); len(refs) > 0 && refs[0].Name != "" {
		name = refs[0].Name
	}

	return Candidate{
		SourceID:     r.ID,
		SourceName:   name,
		Title:        strings.TrimSpace(r.Title),
		Body:         strings.TrimSpace(r.Body),
		PublishedAt:  published,
		LocationText: strings.TrimSpace(r.LocationText),
		URL:          strings.TrimSpace(r.URL),
		Signals:      r.Signals,
	}, true
}

// normalizeSourceRefs flattens the upstream "source" payload, which may be a
// bare string, a single object, or a list of objects, into an ordered list.
// Downstream code never branches on shape again.
func normalizeSourceRefs(raw json.RawMessage) []SourceRef {
	if len(raw) == 0 {
		return nil
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil
		}
		return []SourceRef{{Name: name}}
	}

	var single rawSource
	if err := json.Unmarshal(raw, &single); err == nil && strings.TrimSpace(single.Name) != "" {
		return []SourceRef{{Name: strings.TrimSpace(single.Name), URL: single.URL}}
	}

	var many []rawSource
	if err := json.Unmarshal(raw, &many); err == nil {
		out := make([]SourceRef, 0, len(many))
		for _, s := range many {
			if strings.TrimSpace(s.Name) == "" {
				continue
			}
			out = append(out, SourceRef{Name: strings.TrimSpace(s.Name), URL: s.URL})
		}
		return out
	}

	return nil
}

// parseTimestamp accepts the timestamp formats the upstream feeds actually
// emit: RFC3339, RFC1123, and a couple of bare layouts.
func parseTimestamp(value string) (time.Time, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	layouts := []string{
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"2006-01-02 15:04:05",
		"20060102150405",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, cleaned); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp %q", cleaned)
}

func dedupeStrings(values []string) []string {
	if len(values) <= 1 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

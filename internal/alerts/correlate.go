package alerts

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Correlator groups a cycle's candidates into event groups, attaching them to
// recently updated alerts where the same occurrence is already tracked.
//
// The assignment is a greedy single pass, not optimal clustering. The
// pipeline runs every few minutes and mis-merges are corrected naturally:
// a merged group always recomputes its scores from the full corroborating
// set on later cycles.
type Correlator struct {
	// Threshold is the minimum combined similarity for a candidate to join
	// an existing group or alert.
	Threshold float64
	// Epsilon is the tie-break band: targets scoring within Epsilon of the
	// best are considered tied, and the most recently updated alert wins.
	Epsilon float64
	// TimeDecay is the gap beyond which publish-time proximity contributes
	// nothing.
	TimeDecay time.Duration
	// Taxonomy supplies the cheap country guess used for bucketing.
	Taxonomy Taxonomy
}

// NewCorrelator returns a correlator with sane defaults where fields are unset.
func NewCorrelator(taxonomy Taxonomy, threshold float64) Correlator {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.55
	}
	return Correlator{
		Threshold: threshold,
		Epsilon:   0.05,
		TimeDecay: 48 * time.Hour,
		Taxonomy:  taxonomy,
	}
}

// Similarity component weights. Title overlap dominates; timing and location
// corroborate.
const (
	titleWeight    = 0.60
	timeWeight     = 0.25
	locationWeight = 0.15
)

type correlationTarget struct {
	group *EventGroup
	alert *Alert
}

func (t correlationTarget) title() string {
	if t.alert != nil {
		return t.alert.Title
	}
	return t.group.Representative.Title
}

func (t correlationTarget) reference() time.Time {
	if t.alert != nil {
		return t.alert.UpdatedAt
	}
	return t.group.Representative.PublishedAt
}

func (t correlationTarget) locationText() string {
	if t.alert != nil {
		if t.alert.Region != "" {
			return t.alert.Country + " " + t.alert.Region
		}
		return t.alert.Country
	}
	return t.group.Representative.LocationText
}

// Correlate assigns every candidate to the highest-scoring open group or
// recent alert in its country bucket, seeding a new group when nothing
// clears the threshold. Recent alerts come from the trailing lookback window
// so stories spanning cycles keep consolidating.
func (c Correlator) Correlate(candidates []Candidate, recentAlerts []Alert) []EventGroup {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PublishedAt.Before(sorted[j].PublishedAt)
	})

	// Coarse country buckets bound the pairwise comparison cost.
	alertBuckets := make(map[string][]*Alert)
	for idx := range recentAlerts {
		alert := &recentAlerts[idx]
		key := bucketKey(alert.Country)
		alertBuckets[key] = append(alertBuckets[key], alert)
	}

	groupBuckets := make(map[string][]*EventGroup)
	groupForAlert := make(map[string]*EventGroup)
	var groups []*EventGroup

	for _, candidate := range sorted {
		bucket := bucketKey(c.Taxonomy.GuessCountry(candidate.LocationText + " " + candidate.Title))

		best, bestScore := c.pickTarget(candidate, groupBuckets[bucket], alertBuckets[bucket])
		if best == nil || bestScore < c.Threshold {
			group := &EventGroup{
				ID:             uuid.NewString(),
				Members:        []Candidate{candidate},
				Representative: candidate,
			}
			groups = append(groups, group)
			groupBuckets[bucket] = append(groupBuckets[bucket], group)
			continue
		}

		if best.alert != nil {
			group, ok := groupForAlert[best.alert.ID]
			if !ok {
				group = &EventGroup{
					ID:             uuid.NewString(),
					MatchedAlertID: best.alert.ID,
				}
				groups = append(groups, group)
				groupForAlert[best.alert.ID] = group
				groupBuckets[bucket] = append(groupBuckets[bucket], group)
			}
			group.Members = append(group.Members, candidate)
			group.Representative = pickRepresentative(group.Members)
			continue
		}

		group := best.group
		group.Members = append(group.Members, candidate)
		group.Representative = pickRepresentative(group.Members)
	}

	out := make([]EventGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, *group)
	}
	return out
}

// pickTarget scores the candidate against every open group and recent alert
// in the bucket. Among targets tied within epsilon of the best score, the
// most recently updated alert wins, which favors consolidating long-running
// stories.
func (c Correlator) pickTarget(candidate Candidate, groups []*EventGroup, alerts []*Alert) (*correlationTarget, float64) {
	var scored []struct {
		target correlationTarget
		score  float64
	}

	for _, group := range groups {
		target := correlationTarget{group: group}
		if score := c.Score(candidate, target.title(), target.reference(), target.locationText()); score > 0 {
			scored = append(scored, struct {
				target correlationTarget
				score  float64
			}{target, score})
		}
	}
	for _, alert := range alerts {
		target := correlationTarget{alert: alert}
		if score := c.Score(candidate, target.title(), target.reference(), target.locationText()); score > 0 {
			scored = append(scored, struct {
				target correlationTarget
				score  float64
			}{target, score})
		}
	}

	if len(scored) == 0 {
		return nil, 0
	}

	best := &scored[0].target
	bestScore := scored[0].score
	for idx := range scored[1:] {
		s := &scored[idx+1]
		if s.score > bestScore {
			best = &s.target
			bestScore = s.score
		}
	}

	// Among targets tied within epsilon, the most recently updated alert wins.
	var tiedAlert *correlationTarget
	var tiedUpdated time.Time
	for idx := range scored {
		s := &scored[idx]
		if bestScore-s.score > c.Epsilon || s.target.alert == nil {
			continue
		}
		if tiedAlert == nil || s.target.alert.UpdatedAt.After(tiedUpdated) {
			tiedAlert = &s.target
			tiedUpdated = s.target.alert.UpdatedAt
		}
	}
	if tiedAlert != nil {
		return tiedAlert, bestScore
	}

	return best, bestScore
}

// Score combines title token overlap, publish-time proximity, and
// location-text overlap into one similarity value in [0,1].
func (c Correlator) Score(candidate Candidate, title string, reference time.Time, locationText string) float64 {
	title1 := jaccard(tokenSet(candidate.Title), tokenSet(title))

	gap := candidate.PublishedAt.Sub(reference)
	if gap < 0 {
		gap = -gap
	}
	decay := c.TimeDecay
	if decay <= 0 {
		decay = 48 * time.Hour
	}
	timeScore := 0.0
	if gap < decay {
		timeScore = 1 - float64(gap)/float64(decay)
	}

	location := jaccard(tokenSet(candidate.LocationText), tokenSet(locationText))

	return titleWeight*title1 + timeWeight*timeScore + locationWeight*location
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// pickRepresentative prefers the most recent candidate, breaking ties toward
// the more complete body.
func pickRepresentative(members []Candidate) Candidate {
	rep := members[0]
	for _, m := range members[1:] {
		if m.PublishedAt.After(rep.PublishedAt) {
			rep = m
			continue
		}
		if m.PublishedAt.Equal(rep.PublishedAt) && len(m.Body) > len(rep.Body) {
			rep = m
		}
	}
	return rep
}

func bucketKey(country string) string {
	if country == "" {
		return "unknown"
	}
	return country
}

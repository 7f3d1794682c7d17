package alerts

import (
	"errors"
	"strings"
	"time"
)

// Category classifies the real-world nature of a travel-risk alert.
type Category string

const (
	CategoryNaturalDisaster Category = "natural_disaster"
	CategoryPolitical       Category = "political"
	CategoryCrime           Category = "crime"
	CategoryHealth          Category = "health"
	CategoryTerrorism       Category = "terrorism"
	CategoryCivilUnrest     Category = "civil_unrest"
)

// Categories lists every valid alert category.
var Categories = []Category{
	CategoryNaturalDisaster,
	CategoryPolitical,
	CategoryCrime,
	CategoryHealth,
	CategoryTerrorism,
	CategoryCivilUnrest,
}

// ParseCategory maps a free-form string onto a known category.
func ParseCategory(value string) (Category, bool) {
	normalized := Category(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), " ", "_")))
	for _, c := range Categories {
		if c == normalized {
			return c, true
		}
	}
	return "", false
}

// VerificationThreshold is the score at or above which an alert counts as verified.
const VerificationThreshold = 0.55

// Sentinel errors shared between the pipeline and its persistence layer.
var (
	// ErrNotFound indicates the requested alert does not exist.
	ErrNotFound = errors.New("alerts: not found")
	// ErrVersionConflict indicates a concurrent modification was detected
	// during a version-checked update.
	ErrVersionConflict = errors.New("alerts: version conflict")
)

// Candidate is one raw item from one source describing one real-world
// occurrence, before correlation. Candidates live only for a single
// ingestion cycle and are never persisted.
type Candidate struct {
	SourceID     string             `json:"source_id"`
	SourceName   string             `json:"source_name"`
	Title        string             `json:"title"`
	Body         string             `json:"body"`
	PublishedAt  time.Time          `json:"published_at"`
	LocationText string             `json:"location_text"`
	URL          string             `json:"url"`
	Signals      map[string]float64 `json:"signals,omitempty"`
}

// EventGroup is a cluster of candidates believed to describe the same
// occurrence. MatchedAlertID is set when the group correlated to an alert
// persisted in a previous cycle.
type EventGroup struct {
	ID             string
	Members        []Candidate
	Representative Candidate
	MatchedAlertID string
}

// SourceRef records one corroborating source of an alert. Name and URL form
// the identity used when merging source lists; Title and PublishedAt carry
// the corroborating text and timing so scores can be recomputed from the
// full accumulated set.
type SourceRef struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Alert is the persisted, scored, user-facing record derived from one or
// more event groups over time. Version implements optimistic locking; it is
// bumped by the store on every successful update.
type Alert struct {
	ID                string             `json:"id"`
	Title             string             `json:"title"`
	Summary           string             `json:"summary"`
	FullContent       string             `json:"full_content"`
	Category          Category           `json:"category"`
	Severity          int                `json:"severity"`
	Country           string             `json:"country"`
	Region            string             `json:"region,omitempty"`
	Latitude          *float64           `json:"latitude,omitempty"`
	Longitude         *float64           `json:"longitude,omitempty"`
	Sources           []SourceRef        `json:"sources"`
	Verified          bool               `json:"verified"`
	VerificationScore *float64           `json:"verification_score,omitempty"`
	Signals           map[string]float64 `json:"signals,omitempty"`
	Version           int64              `json:"version"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// Clone returns a deep copy safe to mutate independently.
func (a Alert) Clone() Alert {
	out := a
	out.Sources = append([]SourceRef(nil), a.Sources...)
	if a.Latitude != nil {
		lat := *a.Latitude
		out.Latitude = &lat
	}
	if a.Longitude != nil {
		lon := *a.Longitude
		out.Longitude = &lon
	}
	if a.VerificationScore != nil {
		score := *a.VerificationScore
		out.VerificationScore = &score
	}
	if a.Signals != nil {
		out.Signals = make(map[string]float64, len(a.Signals))
		for k, v := range a.Signals {
			out.Signals[k] = v
		}
	}
	return out
}

// MergeSignals folds candidate signals into the alert, keeping the maximum
// per key so repeated merges are order-independent.
func (a *Alert) MergeSignals(signals map[string]float64) {
	if len(signals) == 0 {
		return
	}
	if a.Signals == nil {
		a.Signals = make(map[string]float64, len(signals))
	}
	for key, value := range signals {
		if existing, ok := a.Signals[key]; !ok || value > existing {
			a.Signals[key] = value
		}
	}
}

package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"travelriskbackend/internal/geo"
)

// AlertStore is the persistence surface the pipeline needs. Update must
// perform a version check and fail with ErrVersionConflict on concurrent
// modification.
type AlertStore interface {
	Insert(ctx context.Context, alert *Alert) error
	Update(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, id string) (Alert, error)
	UpdatedSince(ctx context.Context, since time.Time) ([]Alert, error)
}

// ChangeEvent is the notification emitted once per affected alert per cycle.
type ChangeEvent struct {
	Type    string `json:"type"`
	AlertID string `json:"alert_id"`
	Change  string `json:"change"` // "created" or "updated"
}

// ChangeNotifier receives coalesced change events.
type ChangeNotifier interface {
	AlertChanged(event ChangeEvent)
}

// CycleSummary reports what one ingestion cycle did, regardless of
// per-adapter failures.
type CycleSummary struct {
	StartedAt    time.Time
	Duration     time.Duration
	Candidates   int
	Groups       int
	Created      int
	Updated      int
	Skipped      int
	SourceErrors map[string]string
	// CandidatesBySource counts fetched candidates per adapter.
	CandidatesBySource map[string]int
}

// Pipeline orchestrates one ingestion cycle: fetch, correlate, score,
// persist, notify. Correlation through persistence run as a single pass per
// cycle; only adapter fetches are concurrent.
type Pipeline struct {
	Sources    *SourceRegistry
	Correlator Correlator
	Scorer     Scorer
	Store      AlertStore
	Geocoder   geo.Geocoder      // optional
	Classifier ClassifierService // optional
	Notifier   ChangeNotifier    // optional
	// Lookback bounds the trailing alert window read for cross-cycle
	// correlation.
	Lookback time.Duration
	// FetchWindow is how far back adapters are asked to fetch.
	FetchWindow time.Duration
	Logger      *slog.Logger
}

// NewPipeline wires a pipeline with defaults for unset windows.
func NewPipeline(sources *SourceRegistry, correlator Correlator, scorer Scorer, store AlertStore) (*Pipeline, error) {
	if sources == nil {
		return nil, errors.New("alerts: pipeline requires sources")
	}
	if store == nil {
		return nil, errors.New("alerts: pipeline requires a store")
	}
	return &Pipeline{
		Sources:     sources,
		Correlator:  correlator,
		Scorer:      scorer,
		Store:       store,
		Lookback:    72 * time.Hour,
		FetchWindow: 24 * time.Hour,
		Logger:      slog.Default(),
	}, nil
}

// RunCycle executes one ingestion cycle. Per-adapter failures are recorded
// in the summary and skipped; a store failure aborts the cycle and is
// retried on the next scheduled tick, never immediately.
func (p *Pipeline) RunCycle(ctx context.Context) (CycleSummary, error) {
	now := time.Now().UTC()
	summary := CycleSummary{StartedAt: now, SourceErrors: map[string]string{}}

	result := p.Sources.FetchAll(ctx, now.Add(-p.FetchWindow), now)
	summary.Candidates = len(result.Candidates)
	summary.CandidatesBySource = make(map[string]int, len(result.Candidates))
	for _, candidate := range result.Candidates {
		summary.CandidatesBySource[candidate.SourceName]++
	}
	for name, err := range result.Errors {
		summary.SourceErrors[name] = err.Error()
		p.Logger.Warn("adapter skipped for cycle", "source", name, "err", err)
	}

	recent, err := p.Store.UpdatedSince(ctx, now.Add(-p.Lookback))
	if err != nil {
		summary.Duration = time.Since(now)
		return summary, fmt.Errorf("load trailing alert window: %w", err)
	}

	groups := p.Correlator.Correlate(result.Candidates, recent)
	summary.Groups = len(groups)

	// Coalesce: exactly one change event per affected alert per cycle, in
	// the order persisted.
	var events []ChangeEvent

	for _, group := range groups {
		if group.MatchedAlertID == "" {
			alert, err := p.createAlert(ctx, group, now)
			if err != nil {
				summary.Duration = time.Since(now)
				return summary, fmt.Errorf("insert alert: %w", err)
			}
			summary.Created++
			events = append(events, ChangeEvent{Type: "alerts_updated", AlertID: alert.ID, Change: "created"})
			continue
		}

		changed, err := p.mergeIntoAlert(ctx, group, now)
		if err != nil {
			summary.Duration = time.Since(now)
			return summary, fmt.Errorf("merge into alert %s: %w", group.MatchedAlertID, err)
		}
		if changed {
			summary.Updated++
			events = append(events, ChangeEvent{Type: "alerts_updated", AlertID: group.MatchedAlertID, Change: "updated"})
		} else {
			summary.Skipped++
		}
	}

	if p.Notifier != nil {
		for _, event := range events {
			p.Notifier.AlertChanged(event)
		}
	}

	summary.Duration = time.Since(now)
	return summary, nil
}

func (p *Pipeline) createAlert(ctx context.Context, group EventGroup, now time.Time) (*Alert, error) {
	rep := group.Representative

	alert := &Alert{
		ID:          uuid.NewString(),
		Title:       rep.Title,
		Summary:     Summarize(rep),
		FullContent: fullContent(rep),
		Sources:     sourceRefs(group.Members),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, member := range group.Members {
		alert.MergeSignals(member.Signals)
	}

	p.locate(ctx, alert, rep)
	p.Scorer.ScoreAlert(alert)

	if err := p.Store.Insert(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// locate fills country/region/coordinates, best effort. Geocode misses leave
// coordinates empty and fall back to classifier output, then to the cheap
// country hint; nothing here ever aborts the pipeline.
func (p *Pipeline) locate(ctx context.Context, alert *Alert, rep Candidate) {
	if p.Classifier != nil {
		text := strings.Join([]string{rep.Title, rep.Body, rep.LocationText}, " ")
		classification, err := p.Classifier.Classify(ctx, text)
		if err != nil {
			p.Logger.Warn("classification service unavailable, using keyword heuristic", "err", err)
		} else {
			alert.MergeSignals(classification.Signals)
			alert.Country = classification.Country
			alert.Region = classification.Region
			// The service's category wins; the keyword heuristic only
			// fills in when the service is down or non-committal.
			alert.Category = classification.Category
		}
	}

	if p.Geocoder != nil && rep.LocationText != "" {
		loc, err := p.Geocoder.Resolve(ctx, rep.LocationText)
		switch {
		case err == nil:
			alert.Country = loc.Country
			if loc.Region != "" {
				alert.Region = loc.Region
			}
			lat, lon := loc.Latitude, loc.Longitude
			alert.Latitude = &lat
			alert.Longitude = &lon
		case errors.Is(err, geo.ErrNotFound):
			// keep best-effort text fields, coordinates stay empty
		default:
			p.Logger.Warn("geocoder failed", "location", rep.LocationText, "err", err)
		}
	}

	if alert.Country == "" {
		alert.Country = p.Scorer.Taxonomy.GuessCountry(rep.LocationText + " " + rep.Title)
	}
	if alert.Country == "" {
		alert.Country = "Unknown"
	}
}

// mergeIntoAlert folds the group into its matched alert: union the sources,
// recompute scores from the full accumulated set, bump UpdatedAt. Returns
// false when the group added nothing new. A version conflict is retried once
// with fresh data before surfacing.
func (p *Pipeline) mergeIntoAlert(ctx context.Context, group EventGroup, now time.Time) (bool, error) {
	for attempt := 0; ; attempt++ {
		fresh, err := p.Store.Get(ctx, group.MatchedAlertID)
		if err != nil {
			return false, err
		}

		merged := fresh.Clone()
		if !applyGroup(&merged, group, p.Scorer, now) {
			return false, nil
		}

		err = p.Store.Update(ctx, &merged)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, ErrVersionConflict) && attempt == 0 {
			continue
		}
		return false, err
	}
}

// applyGroup mutates the alert with the group's contribution and reports
// whether anything material changed.
func applyGroup(alert *Alert, group EventGroup, scorer Scorer, now time.Time) bool {
	before := len(alert.Sources)
	beforeSeverity := alert.Severity
	beforeScore := 0.0
	if alert.VerificationScore != nil {
		beforeScore = *alert.VerificationScore
	}
	prevLatest := latestSourceTime(alert.Sources)

	alert.Sources = mergeSourceRefs(alert.Sources, sourceRefs(group.Members))
	for _, member := range group.Members {
		alert.MergeSignals(member.Signals)
	}

	// The newest corroborating report carries the freshest narrative.
	rep := group.Representative
	if rep.PublishedAt.After(prevLatest) && strings.TrimSpace(rep.Body) != "" {
		alert.FullContent = rep.Body
		alert.Summary = Summarize(rep)
	}

	scorer.ScoreAlert(alert)

	afterScore := 0.0
	if alert.VerificationScore != nil {
		afterScore = *alert.VerificationScore
	}
	changed := len(alert.Sources) != before ||
		alert.Severity != beforeSeverity ||
		afterScore != beforeScore

	if changed {
		alert.UpdatedAt = now
	}
	return changed
}

func fullContent(rep Candidate) string {
	if strings.TrimSpace(rep.Body) != "" {
		return rep.Body
	}
	return rep.Title
}

// sourceRefs converts group members to source references, deduplicated by
// (name, url) and sorted by publish time so the final list is independent of
// merge order.
func sourceRefs(members []Candidate) []SourceRef {
	refs := make([]SourceRef, 0, len(members))
	for _, member := range members {
		refs = append(refs, SourceRef{
			Name:        member.SourceName,
			URL:         member.URL,
			Title:       member.Title,
			PublishedAt: member.PublishedAt,
		})
	}
	return mergeSourceRefs(nil, refs)
}

func mergeSourceRefs(existing, incoming []SourceRef) []SourceRef {
	merged := make([]SourceRef, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, ref := range append(append([]SourceRef{}, existing...), incoming...) {
		key := strings.ToLower(ref.Name) + "|" + strings.ToLower(ref.URL)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, ref)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if !merged[i].PublishedAt.Equal(merged[j].PublishedAt) {
			return merged[i].PublishedAt.Before(merged[j].PublishedAt)
		}
		if merged[i].Name != merged[j].Name {
			return merged[i].Name < merged[j].Name
		}
		return merged[i].URL < merged[j].URL
	})
	return merged
}

func latestSourceTime(refs []SourceRef) time.Time {
	var latest time.Time
	for _, ref := range refs {
		if ref.PublishedAt.After(latest) {
			latest = ref.PublishedAt
		}
	}
	return latest
}

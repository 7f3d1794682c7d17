// Package report implements the report lifecycle: generation from an alert
// snapshot, the draft → pending_approval → approved → sent state machine, and
// asynchronous email dispatch to geographically matched mailing lists.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelriskbackend/internal/alerts"
)

var (
	// ErrReportNotFound indicates the report does not exist.
	ErrReportNotFound = errors.New("report: not found")
	// ErrInvalidStateTransition indicates the requested transition is not
	// allowed from the report's current status.
	ErrInvalidStateTransition = errors.New("report: invalid state transition")
	// ErrNoRecipients indicates dispatch resolved zero recipients; the
	// report stays approved.
	ErrNoRecipients = errors.New("report: no recipients resolved")
	// ErrAlreadySent indicates a dispatch attempt on a sent report.
	ErrAlreadySent = errors.New("report: already sent")
)

// Status is the report lifecycle state.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusSent            Status = "sent"
)

// Content is the denormalized snapshot stored on a report at generation
// time. Later alert mutation never retroactively changes a generated report.
type Content struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	Scope             string          `json:"scope"`
	ExecutiveSummary  string          `json:"executive_summary"`
	KeyFindings       []string        `json:"key_findings"`
	CategoryBreakdown []CategoryCount `json:"category_breakdown"`
	CountryBreakdown  []CountryCount  `json:"country_breakdown"`
	TopAlertIDs       []string        `json:"top_alert_ids"`
	Delivery          *DeliveryRecord `json:"delivery,omitempty"`
}

// CategoryCount is one row of the category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CountryCount is one row of the country breakdown.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}

// DeliveryRecord is persisted onto the content snapshot once dispatch
// finishes.
type DeliveryRecord struct {
	SentAt         time.Time `json:"sent_at"`
	MailingListIDs []string  `json:"mailing_lists"`
	SentCount      int       `json:"sent_count"`
	FailedCount    int       `json:"failed_count"`
	Status         string    `json:"status"`
}

// Report is a reviewed summary of alerts over a date range, scoped to a
// geography, that can be dispatched to mailing lists once approved.
type Report struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Content         Content   `json:"content_json"`
	Status          Status    `json:"status"`
	GeographicScope string    `json:"geographic_scope"`
	RejectComment   string    `json:"reject_comment,omitempty"`
	DateRangeStart  time.Time `json:"date_range_start"`
	DateRangeEnd    time.Time `json:"date_range_end"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store is an in-memory registry of reports and the owner of their state
// machine. All transitions go through it so guards cannot be bypassed.
type Store struct {
	mu      sync.RWMutex
	reports map[string]Report
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{reports: make(map[string]Report)}
}

// Generate builds a report in draft status from a snapshot of alerts. The
// content is denormalized at this moment and never recomputed.
func (s *Store) Generate(ctx context.Context, title, scope string, from, to time.Time, snapshot []alerts.Alert) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if strings.TrimSpace(title) == "" {
		return Report{}, errors.New("report: title is required")
	}

	content := BuildContent(snapshot, scope, from, to)
	now := time.Now().UTC()
	rep := Report{
		ID:              uuid.NewString(),
		Title:           strings.TrimSpace(title),
		Summary:         content.ExecutiveSummary,
		Content:         content,
		Status:          StatusDraft,
		GeographicScope: strings.TrimSpace(scope),
		DateRangeStart:  from,
		DateRangeEnd:    to,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	s.mu.Lock()
	s.reports[rep.ID] = rep
	s.mu.Unlock()
	return rep, nil
}

// Get loads one report.
func (s *Store) Get(ctx context.Context, id string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reports[id]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	return rep, nil
}

// List returns all reports, newest first.
func (s *Store) List(ctx context.Context) ([]Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Report, 0, len(s.reports))
	for _, rep := range s.reports {
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Submit moves a draft to pending_approval.
func (s *Store) Submit(ctx context.Context, id string) (Report, error) {
	return s.transition(ctx, id, func(rep *Report) error {
		if rep.Status != StatusDraft {
			return fmt.Errorf("%w: submit from %s", ErrInvalidStateTransition, rep.Status)
		}
		rep.Status = StatusPendingApproval
		return nil
	})
}

// Approve moves pending_approval to approved.
func (s *Store) Approve(ctx context.Context, id string) (Report, error) {
	return s.transition(ctx, id, func(rep *Report) error {
		if rep.Status != StatusPendingApproval {
			return fmt.Errorf("%w: approve from %s", ErrInvalidStateTransition, rep.Status)
		}
		rep.Status = StatusApproved
		return nil
	})
}

// Reject returns a pending or approved report to draft, recording the
// reviewer's comment.
func (s *Store) Reject(ctx context.Context, id, comment string) (Report, error) {
	return s.transition(ctx, id, func(rep *Report) error {
		if rep.Status != StatusPendingApproval && rep.Status != StatusApproved {
			return fmt.Errorf("%w: reject from %s", ErrInvalidStateTransition, rep.Status)
		}
		rep.Status = StatusDraft
		rep.RejectComment = strings.TrimSpace(comment)
		return nil
	})
}

// markSent finalizes dispatch: approved → sent with the delivery record.
// Sent is terminal.
func (s *Store) markSent(ctx context.Context, id string, delivery DeliveryRecord) (Report, error) {
	return s.transition(ctx, id, func(rep *Report) error {
		if rep.Status == StatusSent {
			return ErrAlreadySent
		}
		if rep.Status != StatusApproved {
			return fmt.Errorf("%w: dispatch from %s", ErrInvalidStateTransition, rep.Status)
		}
		rep.Status = StatusSent
		rep.Content.Delivery = &delivery
		return nil
	})
}

func (s *Store) transition(ctx context.Context, id string, apply func(*Report) error) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rep, ok := s.reports[id]
	if !ok {
		return Report{}, ErrReportNotFound
	}
	if err := apply(&rep); err != nil {
		return Report{}, err
	}
	rep.UpdatedAt = time.Now().UTC()
	s.reports[id] = rep
	return rep, nil
}

// BuildContent derives the denormalized snapshot from the alerts that fall
// within the report's window: an executive summary, headline findings, and
// category/country breakdowns, with the highest-severity alerts on top.
func BuildContent(snapshot []alerts.Alert, scope string, from, to time.Time) Content {
	bySeverity := make([]alerts.Alert, len(snapshot))
	copy(bySeverity, snapshot)
	sort.Slice(bySeverity, func(i, j int) bool {
		if bySeverity[i].Severity != bySeverity[j].Severity {
			return bySeverity[i].Severity > bySeverity[j].Severity
		}
		return bySeverity[i].CreatedAt.After(bySeverity[j].CreatedAt)
	})

	topIDs := make([]string, 0, 8)
	for _, alert := range bySeverity {
		if len(topIDs) == 8 {
			break
		}
		topIDs = append(topIDs, alert.ID)
	}

	categories := make(map[string]int)
	countries := make(map[string]int)
	highSeverity := 0
	verified := 0
	for _, alert := range snapshot {
		categories[string(alert.Category)]++
		if alert.Country != "" {
			countries[alert.Country]++
		}
		if alert.Severity >= 4 {
			highSeverity++
		}
		if alert.Verified {
			verified++
		}
	}

	parts := []string{fmt.Sprintf("%d alerts were assessed between %s and %s.",
		len(snapshot), from.Format("2006-01-02"), to.Format("2006-01-02"))}
	if highSeverity > 0 {
		parts = append(parts, fmt.Sprintf("%d alerts were marked high severity (4-5).", highSeverity))
	}
	if top := topCount(categories); top != "" {
		parts = append(parts, fmt.Sprintf("The dominant category was %s.", strings.ReplaceAll(top, "_", " ")))
	}
	if top := topCount(countries); top != "" {
		parts = append(parts, fmt.Sprintf("Most incidents were concentrated in %s.", top))
	}
	if strings.TrimSpace(scope) != "" {
		parts = append(parts, fmt.Sprintf("Scope focus: %s.", strings.TrimSpace(scope)))
	}
	summary := strings.Join(parts, " ")
	if len(snapshot) == 0 {
		summary = "No significant travel risk developments detected in this period."
	}

	return Content{
		GeneratedAt:      time.Now().UTC(),
		Scope:            scopeOrGlobal(scope),
		ExecutiveSummary: summary,
		KeyFindings: []string{
			fmt.Sprintf("Verified alerts: %d/%d", verified, len(snapshot)),
			fmt.Sprintf("High severity alerts: %d", highSeverity),
			fmt.Sprintf("Countries impacted: %d", len(countries)),
		},
		CategoryBreakdown: sortedCounts[CategoryCount](categories, func(name string, count int) CategoryCount {
			return CategoryCount{Category: name, Count: count}
		}),
		CountryBreakdown: sortedCounts[CountryCount](countries, func(name string, count int) CountryCount {
			return CountryCount{Country: name, Count: count}
		}),
		TopAlertIDs: topIDs,
	}
}

func scopeOrGlobal(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "global"
	}
	return scope
}

func topCount(counts map[string]int) string {
	best, bestCount := "", 0
	for name, count := range counts {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	return best
}

func sortedCounts[T any](counts map[string]int, build func(string, int) T) []T {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	out := make([]T, 0, len(names))
	for _, name := range names {
		out = append(out, build(name, counts[name]))
	}
	return out
}

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"travelriskbackend/internal/alerts"
)

// Memory is an in-memory AlertStore. The trailing alert window is read
// concurrently by the pipeline and the HTTP read API, so every read hands
// out copies.
type Memory struct {
	mu     sync.RWMutex
	alerts map[string]alerts.Alert
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{alerts: make(map[string]alerts.Alert)}
}

// Insert stores a new alert, assigning an ID when missing and setting the
// initial version.
func (m *Memory) Insert(ctx context.Context, alert *alerts.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	alert.Version = 1
	m.alerts[alert.ID] = alert.Clone()
	return nil
}

// Update applies a version-checked update. The stored version must equal the
// caller's version; on success the version is bumped.
func (m *Memory) Update(ctx context.Context, alert *alerts.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.alerts[alert.ID]
	if !ok {
		return alerts.ErrNotFound
	}
	if existing.Version != alert.Version {
		return alerts.ErrVersionConflict
	}

	alert.Version++
	m.alerts[alert.ID] = alert.Clone()
	return nil
}

// Get returns a copy of the alert.
func (m *Memory) Get(ctx context.Context, id string) (alerts.Alert, error) {
	if err := ctx.Err(); err != nil {
		return alerts.Alert{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	alert, ok := m.alerts[id]
	if !ok {
		return alerts.Alert{}, alerts.ErrNotFound
	}
	return alert.Clone(), nil
}

// UpdatedSince returns alerts created or updated at or after the cutoff,
// most recently updated first.
func (m *Memory) UpdatedSince(ctx context.Context, since time.Time) ([]alerts.Alert, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []alerts.Alert
	for _, alert := range m.alerts {
		if alert.UpdatedAt.Before(since) {
			continue
		}
		out = append(out, alert.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// List applies the query filters, sort, and pagination. The second return
// value is the total match count before paging.
func (m *Memory) List(ctx context.Context, q Query) ([]alerts.Alert, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	var matched []alerts.Alert
	for _, alert := range m.alerts {
		if matches(alert, q) {
			matched = append(matched, alert.Clone())
		}
	}
	m.mu.RUnlock()

	sortAlerts(matched, q)

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func matches(alert alerts.Alert, q Query) bool {
	if q.Category != "" && alert.Category != q.Category {
		return false
	}
	if q.MinSeverity > 0 && alert.Severity < q.MinSeverity {
		return false
	}
	if q.Country != "" && !strings.EqualFold(alert.Country, q.Country) {
		return false
	}
	if q.Region != "" && !strings.EqualFold(alert.Region, q.Region) {
		return false
	}
	if !q.From.IsZero() && alert.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && alert.CreatedAt.After(q.To) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		haystack := strings.ToLower(alert.Title + " " + alert.Summary + " " + alert.FullContent)
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func sortAlerts(list []alerts.Alert, q Query) {
	bySeverity := q.SortBy == "severity"
	sort.SliceStable(list, func(i, j int) bool {
		// Descending order swaps the operands; equal elements compare
		// false either way, keeping the comparator a strict ordering.
		a, b := list[i], list[j]
		if q.Desc {
			a, b = b, a
		}
		if bySeverity {
			if a.Severity != b.Severity {
				return a.Severity < b.Severity
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

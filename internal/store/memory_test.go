package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"travelriskbackend/internal/alerts"
)

func seedAlert(t *testing.T, m *Memory, alert alerts.Alert) alerts.Alert {
	t.Helper()
	if err := m.Insert(context.Background(), &alert); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return alert
}

func TestMemoryInsertAndGetCopies(t *testing.T) {
	m := NewMemory()
	created := time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC)

	stored := seedAlert(t, m, alerts.Alert{
		Title:     "Flooding in Hanoi",
		Country:   "Vietnam",
		Severity:  3,
		CreatedAt: created,
		UpdatedAt: created,
	})
	if stored.ID == "" {
		t.Fatalf("insert should assign an ID")
	}
	if stored.Version != 1 {
		t.Fatalf("initial version should be 1, got %d", stored.Version)
	}

	loaded, err := m.Get(context.Background(), stored.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	loaded.Title = "mutated"
	reloaded, _ := m.Get(context.Background(), stored.ID)
	if reloaded.Title != "Flooding in Hanoi" {
		t.Fatalf("reads must hand out copies")
	}

	if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUpdateVersionCheck(t *testing.T) {
	m := NewMemory()
	stored := seedAlert(t, m, alerts.Alert{Title: "Quake", Country: "Japan"})

	fresh, _ := m.Get(context.Background(), stored.ID)
	fresh.Severity = 4
	if err := m.Update(context.Background(), &fresh); err != nil {
		t.Fatalf("update: %v", err)
	}
	if fresh.Version != 2 {
		t.Fatalf("update should bump the version, got %d", fresh.Version)
	}

	// A writer still holding the old version must conflict.
	stale := stored
	stale.Severity = 5
	if err := m.Update(context.Background(), &stale); !errors.Is(err, alerts.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	ghost := alerts.Alert{ID: "missing", Version: 1}
	if err := m.Update(context.Background(), &ghost); !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUpdatedSince(t *testing.T) {
	m := NewMemory()
	now := time.Now().UTC()

	seedAlert(t, m, alerts.Alert{Title: "old", UpdatedAt: now.Add(-96 * time.Hour)})
	recent := seedAlert(t, m, alerts.Alert{Title: "recent", UpdatedAt: now.Add(-time.Hour)})

	window, err := m.UpdatedSince(context.Background(), now.Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("updated since: %v", err)
	}
	if len(window) != 1 || window[0].ID != recent.ID {
		t.Fatalf("only the recent alert belongs to the trailing window, got %+v", window)
	}
}

func TestSortAlertsDescKeepsTiedOrderStable(t *testing.T) {
	created := time.Date(2025, 10, 3, 4, 0, 0, 0, time.UTC)

	// Alerts created in the same cycle share one timestamp; descending
	// sort must keep their input order instead of shuffling ties.
	list := []alerts.Alert{
		{Title: "first", Severity: 3, CreatedAt: created},
		{Title: "second", Severity: 3, CreatedAt: created},
		{Title: "third", Severity: 3, CreatedAt: created},
	}

	sortAlerts(list, Query{SortBy: "created_at", Desc: true})
	for i, want := range []string{"first", "second", "third"} {
		if list[i].Title != want {
			t.Fatalf("created_at desc reordered ties: %v", titlesOf(list))
		}
	}

	sortAlerts(list, Query{SortBy: "severity", Desc: true})
	for i, want := range []string{"first", "second", "third"} {
		if list[i].Title != want {
			t.Fatalf("severity desc reordered ties: %v", titlesOf(list))
		}
	}
}

func titlesOf(list []alerts.Alert) []string {
	out := make([]string, len(list))
	for i, alert := range list {
		out[i] = alert.Title
	}
	return out
}

func TestMemoryListFiltersSortsAndPages(t *testing.T) {
	m := NewMemory()
	base := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	fixtures := []alerts.Alert{
		{Title: "Quake in Chiang Mai", Category: alerts.CategoryNaturalDisaster, Severity: 4, Country: "Thailand", CreatedAt: base, UpdatedAt: base},
		{Title: "Bangkok protests", Category: alerts.CategoryCivilUnrest, Severity: 3, Country: "Thailand", CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)},
		{Title: "Dengue outbreak", Category: alerts.CategoryHealth, Severity: 2, Country: "Vietnam", CreatedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)},
		{Title: "Tokyo typhoon landfall", Category: alerts.CategoryNaturalDisaster, Severity: 5, Country: "Japan", CreatedAt: base.Add(3 * time.Hour), UpdatedAt: base.Add(3 * time.Hour)},
	}
	for _, alert := range fixtures {
		seedAlert(t, m, alert)
	}

	thai, total, err := m.List(context.Background(), Query{Country: "thailand"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(thai) != 2 {
		t.Fatalf("country filter is case-insensitive, got %d/%d", len(thai), total)
	}

	severe, _, err := m.List(context.Background(), Query{MinSeverity: 4, SortBy: "severity", Desc: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(severe) != 2 || severe[0].Severity != 5 {
		t.Fatalf("expected severity-desc ordering, got %+v", severe)
	}

	search, _, err := m.List(context.Background(), Query{Search: "OUTBREAK"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(search) != 1 || search[0].Country != "Vietnam" {
		t.Fatalf("search should match case-insensitively, got %+v", search)
	}

	paged, total, err := m.List(context.Background(), Query{SortBy: "created_at", Desc: true, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 {
		t.Fatalf("total counts matches before paging, got %d", total)
	}
	if len(paged) != 2 || paged[0].Title != "Bangkok protests" {
		t.Fatalf("unexpected page: %+v", paged)
	}

	beyond, total, err := m.List(context.Background(), Query{Offset: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(beyond) != 0 || total != 4 {
		t.Fatalf("offset past the end returns an empty page with the true total")
	}

	windowed, _, err := m.List(context.Background(), Query{From: base.Add(90 * time.Minute), To: base.Add(4 * time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(windowed) != 2 {
		t.Fatalf("date range should keep 2 alerts, got %d", len(windowed))
	}
}

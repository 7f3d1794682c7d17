package alerts

import (
	"testing"
	"time"
)

func testCorrelator() Correlator {
	return NewCorrelator(DefaultTaxonomy(), 0.55)
}

func TestCorrelateGroupsSameEventAcrossSources(t *testing.T) {
	published := time.Date(2025, 10, 3, 4, 12, 0, 0, time.UTC)
	candidates := []Candidate{
		{
			SourceName:   "usgs",
			Title:        "Magnitude 6.1 earthquake strikes northern Thailand near Chiang Mai",
			Body:         "A strong earthquake shook northern Thailand on Friday morning.",
			PublishedAt:  published,
			LocationText: "Chiang Mai, Thailand",
			URL:          "https://usgs.example.com/7101",
		},
		{
			SourceName:   "reuters",
			Title:        "Strong earthquake hits northern Thailand, tremors felt in Chiang Mai",
			Body:         "An earthquake of preliminary magnitude 6.1 struck northern Thailand.",
			PublishedAt:  published.Add(28 * time.Minute),
			LocationText: "Chiang Mai, Thailand",
			URL:          "https://reuters.example.com/88321",
		},
		{
			SourceName:   "newsapi",
			Title:        "Protests escalate in Bangkok as demonstrators clash with police",
			Body:         "Thousands of demonstrators gathered in central Bangkok.",
			PublishedAt:  published.Add(5 * time.Hour),
			LocationText: "Bangkok, Thailand",
			URL:          "https://news.example.com/55102",
		},
	}

	groups := testCorrelator().Correlate(candidates, nil)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	var quake *EventGroup
	for idx := range groups {
		if len(groups[idx].Members) == 2 {
			quake = &groups[idx]
		}
	}
	if quake == nil {
		t.Fatalf("earthquake reports should share one group: %+v", groups)
	}
	if quake.Representative.SourceName != "reuters" {
		t.Errorf("representative should be the latest member, got %s", quake.Representative.SourceName)
	}
	if quake.MatchedAlertID != "" {
		t.Errorf("fresh group should not match an alert")
	}
}

func TestCorrelateAttachesToRecentAlert(t *testing.T) {
	updated := time.Date(2025, 10, 3, 4, 12, 0, 0, time.UTC)
	recent := []Alert{{
		ID:        "alert-1",
		Title:     "Magnitude 6.1 earthquake strikes northern Thailand near Chiang Mai",
		Country:   "Thailand",
		UpdatedAt: updated,
	}}

	candidate := Candidate{
		SourceName:   "reuters",
		Title:        "Magnitude 6.1 earthquake strikes northern Thailand near Chiang Mai",
		PublishedAt:  updated.Add(time.Hour),
		LocationText: "Chiang Mai, Thailand",
		URL:          "https://reuters.example.com/88321",
	}

	groups := testCorrelator().Correlate([]Candidate{candidate}, recent)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].MatchedAlertID != "alert-1" {
		t.Fatalf("candidate should attach to the tracked alert, got %q", groups[0].MatchedAlertID)
	}
}

func TestCorrelateEpsilonPrefersRecentlyUpdatedAlert(t *testing.T) {
	base := time.Date(2025, 10, 3, 8, 0, 0, 0, time.UTC)
	// The older alert scores slightly higher on title overlap; the newer one
	// is within the tie band and must win.
	recent := []Alert{
		{
			ID:        "older",
			Title:     "Typhoon warning issued for Manila as storm approaches the Philippines coast",
			Country:   "Philippines",
			UpdatedAt: base.Add(-6 * time.Hour),
		},
		{
			ID:        "newer",
			Title:     "Typhoon warning for Manila as severe storm approaches the Philippines",
			Country:   "Philippines",
			UpdatedAt: base.Add(-1 * time.Hour),
		},
	}

	correlator := testCorrelator()
	correlator.Epsilon = 0.2

	candidate := Candidate{
		SourceName:   "newsapi",
		Title:        "Typhoon warning issued for Manila as storm approaches the Philippines coast",
		PublishedAt:  base,
		LocationText: "Manila, Philippines",
		URL:          "https://news.example.com/typhoon",
	}

	groups := correlator.Correlate([]Candidate{candidate}, recent)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].MatchedAlertID != "newer" {
		t.Fatalf("tie within epsilon should favor the most recently updated alert, got %q", groups[0].MatchedAlertID)
	}
}

func TestCorrelateKeepsCountriesApart(t *testing.T) {
	published := time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC)
	candidates := []Candidate{
		{
			SourceName:   "reliefweb",
			Title:        "Severe flood warning issued after heavy rain",
			PublishedAt:  published,
			LocationText: "Hanoi, Vietnam",
			URL:          "https://reliefweb.example.com/1",
		},
		{
			SourceName:   "newsapi",
			Title:        "Severe flood warning issued after heavy rain",
			PublishedAt:  published.Add(10 * time.Minute),
			LocationText: "Bangkok, Thailand",
			URL:          "https://news.example.com/2",
		},
	}

	groups := testCorrelator().Correlate(candidates, nil)
	if len(groups) != 2 {
		t.Fatalf("identical wording in different countries must not merge, got %d groups", len(groups))
	}
}

func TestScoreCombinesComponents(t *testing.T) {
	correlator := testCorrelator()
	published := time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC)

	candidate := Candidate{
		Title:        "Volcano eruption forces evacuation on Java island",
		PublishedAt:  published,
		LocationText: "Java, Indonesia",
	}

	identical := correlator.Score(candidate, candidate.Title, published, candidate.LocationText)
	if identical < 0.99 {
		t.Fatalf("identical candidate should score ~1.0, got %f", identical)
	}

	distant := correlator.Score(candidate, candidate.Title, published.Add(-72*time.Hour), candidate.LocationText)
	if distant >= identical {
		t.Errorf("stale reference should score lower: %f >= %f", distant, identical)
	}

	unrelated := correlator.Score(candidate, "Stock markets rally on rate cut hopes", published, "New York")
	if unrelated >= correlator.Threshold {
		t.Errorf("unrelated text should stay below threshold, got %f", unrelated)
	}
}

func TestPickRepresentativePrefersLatestThenLongest(t *testing.T) {
	ts := time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC)
	members := []Candidate{
		{SourceName: "a", Body: "short", PublishedAt: ts},
		{SourceName: "b", Body: "a much longer and more complete body", PublishedAt: ts},
		{SourceName: "c", Body: "tiny", PublishedAt: ts.Add(-time.Hour)},
	}

	rep := pickRepresentative(members)
	if rep.SourceName != "b" {
		t.Fatalf("expected the longer body at the same timestamp to win, got %s", rep.SourceName)
	}
}

package alerts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
)

func fixturePath(t *testing.T) string {
	t.Helper()
	return filepath.Join("..", "..", "data", "sample_alerts.json")
}

func fixtureWindow() (time.Time, time.Time) {
	return time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 10, 4, 0, 0, 0, 0, time.UTC)
}

func TestStaticFileSourceReadsFixture(t *testing.T) {
	source, err := NewStaticFileSource("sample", fixturePath(t))
	if err != nil {
		t.Fatalf("static source: %v", err)
	}

	from, to := fixtureWindow()
	candidates, err := source.Fetch(context.Background(), from, to)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates (one fixture row is malformed), got %d", len(candidates))
	}

	// The source field arrives as an object, a bare string, and a list; all
	// three shapes must normalize to a plain source name.
	names := map[string]string{}
	for _, c := range candidates {
		names[c.SourceID] = c.SourceName
	}
	if names["usgs-7101"] != "usgs" {
		t.Errorf("object-shaped source: got %q", names["usgs-7101"])
	}
	if names["reuters-88321"] != "reuters" {
		t.Errorf("string-shaped source: got %q", names["reuters-88321"])
	}
	if names["newsapi-55102"] != "newsapi" {
		t.Errorf("list-shaped source should use the first entry: got %q", names["newsapi-55102"])
	}
}

func TestStaticFileSourceFiltersWindow(t *testing.T) {
	source, err := NewStaticFileSource("sample", fixturePath(t))
	if err != nil {
		t.Fatalf("static source: %v", err)
	}

	from := time.Date(2025, 10, 3, 8, 0, 0, 0, time.UTC)
	to := time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC)
	candidates, err := source.Fetch(context.Background(), from, to)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candidates) != 1 || candidates[0].SourceID != "newsapi-55102" {
		t.Fatalf("window should keep only the 09:05 item, got %+v", candidates)
	}
}

type slowSource struct{ name string }

func (s slowSource) Name() string { return s.name }

func (s slowSource) Fetch(ctx context.Context, from, to time.Time) ([]Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
		return nil, nil
	}
}

func TestRegistryMapsDeadlineToTimeout(t *testing.T) {
	registry, err := NewSourceRegistry(20*time.Millisecond, 2, slowSource{name: "slow"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	result := registry.FetchAll(context.Background(), time.Now().Add(-time.Hour), time.Now())
	fetchErr, ok := result.Errors["slow"]
	if !ok {
		t.Fatalf("expected an adapter error, got %+v", result.Errors)
	}
	if !errors.Is(fetchErr, ErrSourceTimeout) {
		t.Fatalf("deadline should surface as ErrSourceTimeout, got %v", fetchErr)
	}
}

func TestRegistryIsolatesFailures(t *testing.T) {
	static, err := NewStaticFileSource("sample", fixturePath(t))
	if err != nil {
		t.Fatalf("static source: %v", err)
	}
	failing := staticSource{name: "down", err: errors.New("connection refused")}

	registry, err := NewSourceRegistry(time.Second, 2, static, failing)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	from, to := fixtureWindow()
	result := registry.FetchAll(context.Background(), from, to)
	if len(result.Candidates) != 4 {
		t.Fatalf("healthy source should still deliver, got %d candidates", len(result.Candidates))
	}
	if _, ok := result.Errors["down"]; !ok {
		t.Fatalf("failing source should be recorded, got %+v", result.Errors)
	}

	for idx := 1; idx < len(result.Candidates); idx++ {
		if result.Candidates[idx].PublishedAt.Before(result.Candidates[idx-1].PublishedAt) {
			t.Fatalf("batch should be sorted by publish time")
		}
	}
}

func TestIngestSourceRoundTrip(t *testing.T) {
	source := NewIngestSource("ingest")

	now := time.Now().UTC()
	added := source.Add(Candidate{Title: "Road closures after landslide", URL: "https://x.example.com/1"})
	if added.SourceID == "" {
		t.Fatalf("ingest should assign an ID")
	}
	if added.SourceName != "ingest" {
		t.Fatalf("ingest should stamp its source name, got %q", added.SourceName)
	}

	// Re-adding with the same ID replaces instead of duplicating.
	added.Title = "Road closures after landslide (updated)"
	source.Add(added)

	candidates, err := source.Fetch(context.Background(), now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate after replace, got %d", len(candidates))
	}
	if candidates[0].Title != "Road closures after landslide (updated)" {
		t.Fatalf("replace should keep the newer payload")
	}

	if removed := source.PruneOlderThan(now.Add(time.Hour)); removed != 1 {
		t.Fatalf("prune should remove the old candidate, got %d", removed)
	}
}

func TestFeedSourceFetch(t *testing.T) {
	var gotFrom, gotTo string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"f1","title":"Wildfire near Athens","url":"https://feed.example.com/f1",
			 "source":"gdelt","published_at":"2025-10-03T06:00:00Z"}
		]`))
	}))
	defer server.Close()

	source, err := NewFeedSource("gdelt", server.URL, server.Client())
	if err != nil {
		t.Fatalf("feed source: %v", err)
	}

	from, to := fixtureWindow()
	candidates, err := source.Fetch(context.Background(), from, to)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(candidates) != 1 || candidates[0].SourceName != "gdelt" {
		t.Fatalf("unexpected candidates: %+v", candidates)
	}
	if gotFrom == "" || gotTo == "" {
		t.Fatalf("feed request should carry the window, got from=%q to=%q", gotFrom, gotTo)
	}
}

func TestFeedSourceBadStatusIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	source, err := NewFeedSource("gdelt", server.URL, server.Client())
	if err != nil {
		t.Fatalf("feed source: %v", err)
	}

	_, err = source.Fetch(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("bad status should surface as ErrSourceUnavailable, got %v", err)
	}
}

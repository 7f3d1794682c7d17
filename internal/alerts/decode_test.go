package alerts

import (
	"testing"
	"time"
)

func TestDecodeCandidatesNormalizesSourceShapes(t *testing.T) {
	payload := []byte(`[
		{"id":"1","title":"A","url":"https://x/1","published_at":"2025-10-03T10:00:00Z","source":"reuters"},
		{"id":"2","title":"B","url":"https://x/2","published_at":"2025-10-03T10:00:00Z","source":{"name":"usgs","url":"https://usgs"}},
		{"id":"3","title":"C","url":"https://x/3","published_at":"2025-10-03T10:00:00Z","source":[{"name":"newsapi"},{"name":"bbc"}]},
		{"id":"4","title":"D","url":"https://x/4","published_at":"2025-10-03T10:00:00Z"}
	]`)

	candidates, dropped, err := DecodeCandidates(payload, "fallback")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dropped != 0 {
		t.Fatalf("nothing should be dropped, got %d", dropped)
	}
	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(candidates))
	}

	want := []string{"reuters", "usgs", "newsapi", "fallback"}
	for idx, expected := range want {
		if candidates[idx].SourceName != expected {
			t.Errorf("candidate %d: expected source %q, got %q", idx, expected, candidates[idx].SourceName)
		}
	}
}

func TestDecodeCandidatesDropsMalformedRows(t *testing.T) {
	payload := []byte(`[
		{"id":"ok","title":"Valid","url":"https://x/1","published_at":"2025-10-03T10:00:00Z"},
		{"id":"no-url","title":"Missing link","url":"","published_at":"2025-10-03T10:00:00Z"},
		{"id":"no-title","title":"  ","url":"https://x/2","published_at":"2025-10-03T10:00:00Z"},
		{"id":"bad-ts","title":"Bad time","url":"https://x/3","published_at":"not a timestamp"}
	]`)

	candidates, dropped, err := DecodeCandidates(payload, "test")
	if err != nil {
		t.Fatalf("a malformed row must not fail the batch: %v", err)
	}
	if len(candidates) != 1 || candidates[0].SourceID != "ok" {
		t.Fatalf("only the valid row should survive, got %+v", candidates)
	}
	if dropped != 3 {
		t.Fatalf("expected 3 dropped rows, got %d", dropped)
	}
}

func TestDecodeCandidatesRejectsInvalidJSON(t *testing.T) {
	if _, _, err := DecodeCandidates([]byte(`{"not":"a list"`), "test"); err == nil {
		t.Fatalf("truncated payload should fail")
	}
}

func TestParseTimestampAcceptsFeedFormats(t *testing.T) {
	cases := []string{
		"2025-10-03T10:00:00Z",
		"Fri, 03 Oct 2025 10:00:00 +0000",
		"2025-10-03 10:00:00",
		"20251003100000",
	}
	want := time.Date(2025, 10, 3, 10, 0, 0, 0, time.UTC)
	for _, raw := range cases {
		ts, err := parseTimestamp(raw)
		if err != nil {
			t.Errorf("parse %q: %v", raw, err)
			continue
		}
		if !ts.Equal(want) {
			t.Errorf("parse %q: got %v, want %v", raw, ts, want)
		}
	}

	if _, err := parseTimestamp(""); err == nil {
		t.Errorf("empty timestamp should fail")
	}
}

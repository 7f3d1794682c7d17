package classify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"travelriskbackend/internal/alerts"
)

func TestClassifyMapsResponse(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/classify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["text"] == "" {
			t.Errorf("request should carry the text")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"category": "civil unrest",
			"country":  "Thailand",
			"region":   "Bangkok",
			"signals":  map[string]float64{"severity_hint": 4},
		})
	}))
	defer server.Close()

	client := NewClient("secret", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	got, err := client.Classify(context.Background(), "protests in bangkok")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("missing bearer auth, got %q", gotAuth)
	}
	if got.Category != alerts.CategoryCivilUnrest {
		t.Errorf("category should parse free-form names, got %q", got.Category)
	}
	if got.Country != "Thailand" || got.Region != "Bangkok" {
		t.Errorf("unexpected geography: %+v", got)
	}
	if got.Signals["severity_hint"] != 4 {
		t.Errorf("signals should pass through, got %+v", got.Signals)
	}
}

func TestClassifyServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient("", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if _, err := client.Classify(context.Background(), "text"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("5xx should map to ErrServiceUnavailable, got %v", err)
	}
}

func TestClassifyTransportErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewClient("", WithBaseURL(server.URL))
	if _, err := client.Classify(context.Background(), "text"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("transport failure should map to ErrServiceUnavailable, got %v", err)
	}
}

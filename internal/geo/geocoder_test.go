package geo

import (
	"context"
	"errors"
	"testing"
)

func TestResolveRegionBeatsCountry(t *testing.T) {
	g := NewStaticGeocoder(nil)

	loc, err := g.Resolve(context.Background(), "Bangkok, Thailand")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loc.Country != "Thailand" || loc.Region != "Bangkok" {
		t.Fatalf("region alias should win over the bare country, got %+v", loc)
	}
	if loc.Latitude == 0 && loc.Longitude == 0 {
		t.Fatalf("coordinates should be filled")
	}
}

func TestResolveCountryOnly(t *testing.T) {
	g := NewStaticGeocoder(nil)

	loc, err := g.Resolve(context.Background(), "rural areas of Vietnam")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loc.Country != "Vietnam" || loc.Region != "" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestResolveNotFound(t *testing.T) {
	g := NewStaticGeocoder(nil)

	if _, err := g.Resolve(context.Background(), "Atlantis"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := g.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("blank text should be ErrNotFound, got %v", err)
	}
}

func TestResolveExtraEntries(t *testing.T) {
	g := NewStaticGeocoder(map[string]Location{
		"Chiang Mai": {Country: "Thailand", Region: "Chiang Mai", Latitude: 18.79, Longitude: 98.98},
	})

	loc, err := g.Resolve(context.Background(), "tremors felt in chiang mai province")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if loc.Region != "Chiang Mai" {
		t.Fatalf("extra aliases should resolve, got %+v", loc)
	}
}

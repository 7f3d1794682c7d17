// Package geo resolves free-text location descriptions to structured
// geography. Failures are recoverable by design: the pipeline keeps the
// best-effort country text and leaves coordinates empty.
package geo

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNotFound indicates the location text could not be resolved.
var ErrNotFound = errors.New("geo: location not found")

// Location is a resolved place.
type Location struct {
	Country   string
	Region    string
	Latitude  float64
	Longitude float64
}

// Geocoder resolves free-text locations.
type Geocoder interface {
	Resolve(ctx context.Context, locationText string) (Location, error)
}

// StaticGeocoder resolves against a fixed alias table. It stands in for the
// external geocoding API, which is a black box behind the same contract.
type StaticGeocoder struct {
	entries map[string]Location
}

// NewStaticGeocoder builds a geocoder over the built-in alias table plus any
// extra entries (alias, lowercased, to location).
func NewStaticGeocoder(extra map[string]Location) *StaticGeocoder {
	entries := map[string]Location{
		"thailand":       {Country: "Thailand", Latitude: 15.87, Longitude: 100.99},
		"bangkok":        {Country: "Thailand", Region: "Bangkok", Latitude: 13.76, Longitude: 100.5},
		"phuket":         {Country: "Thailand", Region: "Phuket", Latitude: 7.88, Longitude: 98.39},
		"vietnam":        {Country: "Vietnam", Latitude: 14.06, Longitude: 108.28},
		"hanoi":          {Country: "Vietnam", Region: "Hanoi", Latitude: 21.03, Longitude: 105.85},
		"japan":          {Country: "Japan", Latitude: 36.2, Longitude: 138.25},
		"tokyo":          {Country: "Japan", Region: "Tokyo", Latitude: 35.68, Longitude: 139.69},
		"philippines":    {Country: "Philippines", Latitude: 12.88, Longitude: 121.77},
		"manila":         {Country: "Philippines", Region: "Metro Manila", Latitude: 14.6, Longitude: 120.98},
		"indonesia":      {Country: "Indonesia", Latitude: -0.79, Longitude: 113.92},
		"jakarta":        {Country: "Indonesia", Region: "Jakarta", Latitude: -6.21, Longitude: 106.85},
		"united states":  {Country: "United States", Latitude: 37.09, Longitude: -95.71},
		"united kingdom": {Country: "United Kingdom", Latitude: 55.38, Longitude: -3.44},
		"france":         {Country: "France", Latitude: 46.23, Longitude: 2.21},
		"paris":          {Country: "France", Region: "Île-de-France", Latitude: 48.86, Longitude: 2.35},
		"turkey":         {Country: "Turkey", Latitude: 38.96, Longitude: 35.24},
		"mexico":         {Country: "Mexico", Latitude: 23.63, Longitude: -102.55},
		"kenya":          {Country: "Kenya", Latitude: -0.02, Longitude: 37.91},
		"nairobi":        {Country: "Kenya", Region: "Nairobi", Latitude: -1.29, Longitude: 36.82},
		"india":          {Country: "India", Latitude: 20.59, Longitude: 78.96},
		"myanmar":        {Country: "Myanmar", Latitude: 21.91, Longitude: 95.96},
	}
	for alias, loc := range extra {
		entries[strings.ToLower(alias)] = loc
	}
	return &StaticGeocoder{entries: entries}
}

// Resolve matches the longest alias contained in the text. Region aliases
// win over bare country aliases when both appear.
func (g *StaticGeocoder) Resolve(ctx context.Context, locationText string) (Location, error) {
	select {
	case <-ctx.Done():
		return Location{}, ctx.Err()
	default:
	}

	lowered := strings.ToLower(strings.TrimSpace(locationText))
	if lowered == "" {
		return Location{}, ErrNotFound
	}

	aliases := make([]string, 0, len(g.entries))
	for alias := range g.entries {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})

	var countryMatch *Location
	for _, alias := range aliases {
		if !strings.Contains(lowered, alias) {
			continue
		}
		loc := g.entries[alias]
		if loc.Region != "" {
			return loc, nil
		}
		if countryMatch == nil {
			match := loc
			countryMatch = &match
		}
	}
	if countryMatch != nil {
		return *countryMatch, nil
	}

	return Location{}, ErrNotFound
}

package alerts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyTextPicksDominantCategory(t *testing.T) {
	taxonomy := DefaultTaxonomy()

	cases := map[string]Category{
		"Earthquake and tsunami warning for coastal regions": CategoryNaturalDisaster,
		"Protesters clash with police during demonstration":  CategoryCivilUnrest,
		"Cholera outbreak spreads, quarantine imposed":       CategoryHealth,
		"Bomb explosion near embassy, militants suspected":   CategoryTerrorism,
		"Quiet day with no incidents":                        CategoryNaturalDisaster, // default
	}
	for text, want := range cases {
		if got := taxonomy.ClassifyText(text); got != want {
			t.Errorf("%q: expected %s, got %s", text, want, got)
		}
	}
}

func TestGuessCountryUsesHints(t *testing.T) {
	taxonomy := DefaultTaxonomy()

	if got := taxonomy.GuessCountry("Flooding in Bangkok, roads closed"); got != "Thailand" {
		t.Errorf("city hint should resolve, got %q", got)
	}
	if got := taxonomy.GuessCountry("Somewhere unmapped"); got != "" {
		t.Errorf("unknown text should stay empty, got %q", got)
	}
	// Repeated calls over the same multi-hint text must be deterministic.
	text := "Travel advisory for Thailand and Vietnam"
	first := taxonomy.GuessCountry(text)
	for i := 0; i < 10; i++ {
		if got := taxonomy.GuessCountry(text); got != first {
			t.Fatalf("country guess is not deterministic: %q vs %q", got, first)
		}
	}
}

func TestLoadTaxonomyMergesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	override := `
source_weights:
  reuters: 0.95
  tourism-board: 0.35
country_hints:
  krungthep: Thailand
high_risk_terms:
  - catastrophic
`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	taxonomy, err := LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if taxonomy.SourceWeights["reuters"] != 0.95 {
		t.Errorf("override should replace the default weight")
	}
	if taxonomy.SourceWeights["tourism-board"] != 0.35 {
		t.Errorf("new weights should be added")
	}
	if taxonomy.SourceWeights["usgs"] != 0.92 {
		t.Errorf("untouched defaults must survive the merge")
	}
	if taxonomy.CountryHints["krungthep"] != "Thailand" {
		t.Errorf("new country hints should be added")
	}
	if taxonomy.CountryHints["bangkok"] != "Thailand" {
		t.Errorf("default country hints must survive the merge")
	}
	if len(taxonomy.HighRiskTerms) != 1 || taxonomy.HighRiskTerms[0] != "catastrophic" {
		t.Errorf("term lists replace wholesale when overridden, got %v", taxonomy.HighRiskTerms)
	}
	if len(taxonomy.CategoryKeywords[CategoryTerrorism]) == 0 {
		t.Errorf("category keywords must survive when not overridden")
	}
}

func TestLoadTaxonomyBadFile(t *testing.T) {
	if _, err := LoadTaxonomy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTaxonomy(path); err == nil {
		t.Fatalf("unparseable file should fail")
	}
}

package alerts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Taxonomy holds the tunable keyword and weight tables driving category
// classification and severity scoring. Values ship with defaults and can be
// overridden from a YAML file.
type Taxonomy struct {
	CategoryKeywords map[Category][]string `yaml:"category_keywords"`
	BaseSeverity     map[Category]float64  `yaml:"base_severity"`
	HighRiskTerms    []string              `yaml:"high_risk_terms"`
	EscalationTerms  []string              `yaml:"escalation_terms"`
	CountryHints     map[string]string     `yaml:"country_hints"`
	SourceWeights    map[string]float64    `yaml:"source_weights"`
}

// DefaultTaxonomy returns the built-in keyword and weight tables.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		CategoryKeywords: map[Category][]string{
			CategoryNaturalDisaster: {
				"earthquake", "flood", "storm", "hurricane", "typhoon",
				"wildfire", "volcano", "tsunami", "landslide", "cyclone",
			},
			CategoryPolitical: {
				"election", "government", "diplomatic", "embassy",
				"sanction", "policy", "coup", "parliament",
			},
			CategoryCrime: {
				"robbery", "kidnap", "theft", "crime", "gang", "assault",
				"shooting",
			},
			CategoryHealth: {
				"outbreak", "disease", "health", "virus", "epidemic",
				"pandemic", "cholera", "quarantine",
			},
			CategoryTerrorism: {
				"terror", "bomb", "explosion", "extremist", "militant",
				"hostage", "attack",
			},
			CategoryCivilUnrest: {
				"protest", "riot", "clash", "curfew", "civil unrest",
				"demonstration", "strike", "unrest",
			},
		},
		BaseSeverity: map[Category]float64{
			CategoryNaturalDisaster: 3,
			CategoryPolitical:       3,
			CategoryCrime:           2,
			CategoryHealth:          3,
			CategoryTerrorism:       4,
			CategoryCivilUnrest:     3,
		},
		HighRiskTerms: []string{
			"emergency", "evacuate", "evacuation", "critical", "massive",
			"major", "fatal", "dead", "killed", "casualties", "deaths",
		},
		EscalationTerms: []string{
			"airport", "border", "tourist", "embassy", "nationwide",
			"capital", "state of emergency", "martial law",
		},
		CountryHints: map[string]string{
			"usa":           "United States",
			"u.s.":          "United States",
			"united states": "United States",
			"uk":            "United Kingdom",
			"u.k.":          "United Kingdom",
			"myanmar":       "Myanmar",
			"thailand":      "Thailand",
			"bangkok":       "Thailand",
			"malaysia":      "Malaysia",
			"singapore":     "Singapore",
			"indonesia":     "Indonesia",
			"philippines":   "Philippines",
			"manila":        "Philippines",
			"vietnam":       "Vietnam",
			"japan":         "Japan",
			"tokyo":         "Japan",
			"china":         "China",
			"india":         "India",
			"france":        "France",
			"paris":         "France",
			"germany":       "Germany",
			"turkey":        "Turkey",
			"mexico":        "Mexico",
			"brazil":        "Brazil",
			"kenya":         "Kenya",
			"nigeria":       "Nigeria",
			"egypt":         "Egypt",
		},
		SourceWeights: map[string]float64{
			"reuters":    0.9,
			"ap":         0.88,
			"bbc":        0.85,
			"reliefweb":  0.85,
			"usgs":       0.92,
			"gdelt":      0.6,
			"newsapi":    0.55,
			"rss":        0.45,
			"local news": 0.4,
		},
	}
}

// LoadTaxonomy reads YAML overrides from path and merges them over the
// defaults. Only keys present in the file are replaced.
func LoadTaxonomy(path string) (Taxonomy, error) {
	taxonomy := DefaultTaxonomy()
	if path == "" {
		return taxonomy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Taxonomy{}, fmt.Errorf("read taxonomy %s: %w", path, err)
	}

	var overrides Taxonomy
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return Taxonomy{}, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}

	if len(overrides.CategoryKeywords) > 0 {
		for category, keywords := range overrides.CategoryKeywords {
			taxonomy.CategoryKeywords[category] = dedupeStrings(keywords)
		}
	}
	if len(overrides.BaseSeverity) > 0 {
		for category, base := range overrides.BaseSeverity {
			taxonomy.BaseSeverity[category] = base
		}
	}
	if len(overrides.HighRiskTerms) > 0 {
		taxonomy.HighRiskTerms = dedupeStrings(overrides.HighRiskTerms)
	}
	if len(overrides.EscalationTerms) > 0 {
		taxonomy.EscalationTerms = dedupeStrings(overrides.EscalationTerms)
	}
	if len(overrides.CountryHints) > 0 {
		for hint, country := range overrides.CountryHints {
			taxonomy.CountryHints[hint] = country
		}
	}
	if len(overrides.SourceWeights) > 0 {
		for source, weight := range overrides.SourceWeights {
			taxonomy.SourceWeights[source] = weight
		}
	}

	return taxonomy, nil
}

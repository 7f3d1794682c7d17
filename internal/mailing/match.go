package mailing

import (
	"strings"
)

// MatchRequest controls how target lists are selected for a report.
type MatchRequest struct {
	// Scope is the report's free-text geographic scope ("Global", a country,
	// or a region name).
	Scope string
	// ExplicitListIDs are always selected, overriding automatic matching
	// for those lists.
	ExplicitListIDs []string
	// AutoMatch fills in additional lists by region overlap. When explicit
	// IDs are supplied, automatic matching only runs if requested.
	AutoMatch bool
}

// NormalizeRegionTokens splits a region string on the separators the source
// data actually uses and returns the lowercased token set.
func NormalizeRegionTokens(value string) map[string]struct{} {
	out := make(map[string]struct{})
	if strings.TrimSpace(value) == "" {
		return out
	}
	replacer := strings.NewReplacer("|", ",", "/", ",", ";", ",", "\n", ",", "\t", ",")
	for _, token := range strings.Split(replacer.Replace(value), ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" {
			out[token] = struct{}{}
		}
	}
	return out
}

// MatchLists computes the target lists for a dispatch request. A list
// matches automatically when the scope is "Global", when the list carries
// the "Global" region, or when any of its regions equals or token-overlaps
// the scope, case-insensitively. Explicitly selected lists are always
// included.
func MatchLists(lists []MailingList, req MatchRequest) []MailingList {
	explicit := make(map[string]struct{}, len(req.ExplicitListIDs))
	for _, id := range req.ExplicitListIDs {
		explicit[id] = struct{}{}
	}

	autoMatch := req.AutoMatch || len(req.ExplicitListIDs) == 0
	scopeTokens := NormalizeRegionTokens(req.Scope)
	globalScope := strings.EqualFold(strings.TrimSpace(req.Scope), GlobalRegion)

	var out []MailingList
	for _, list := range lists {
		if _, ok := explicit[list.ID]; ok {
			out = append(out, list)
			continue
		}
		if !autoMatch {
			continue
		}
		if globalScope || listMatchesScope(list, scopeTokens) {
			out = append(out, list)
		}
	}
	return out
}

func listMatchesScope(list MailingList, scopeTokens map[string]struct{}) bool {
	for _, region := range list.GeographicRegions {
		if strings.EqualFold(strings.TrimSpace(region), GlobalRegion) {
			return true
		}
		for token := range NormalizeRegionTokens(region) {
			if _, ok := scopeTokens[token]; ok {
				return true
			}
		}
	}
	return false
}

// DedupeRecipients flattens subscribers from several matched lists into a
// final recipient set, one entry per email. The first list containing an
// email owns that recipient.
func DedupeRecipients(byList map[string][]Subscriber, listOrder []string) []Subscriber {
	seen := make(map[string]struct{})
	var out []Subscriber
	for _, listID := range listOrder {
		for _, sub := range byList[listID] {
			key := NormalizeEmail(sub.Email)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, sub)
		}
	}
	return out
}

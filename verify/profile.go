// Package verify corroborates candidate removals by re-probing the live
// source, separating genuine removals from transient scrape misses.
package verify

import (
	"net/http"
	"strings"
)

// Verdict is the three-way outcome of classifying one probe response.
type Verdict int

const (
	// VerdictUnknown means the response proves nothing either way
	// (unexpected status); the record stays flagged.
	VerdictUnknown Verdict = iota
	// VerdictMissing means the page is gone: 404, or a missing-marker phrase
	// appeared in the body.
	VerdictMissing
	// VerdictPresent means the page still serves: 200 with no marker.
	VerdictPresent
)

// Profile describes how one source's live endpoint signals a removed entity.
// Verification is opt-in per source: a source without a profile passes its
// removals through as not_supported.
type Profile struct {
	// Name is the human-readable source name (e.g. "NAE").
	Name string
	// IdentifierField is the record field holding the dereferenceable URL.
	IdentifierField string
	// MissingMarkers are substrings whose presence in the fetched page text
	// (case-insensitive) indicates the entity no longer exists. Some sources
	// serve soft-404 pages with HTTP 200, so status alone is not enough.
	MissingMarkers []string
}

// Classify triages one probe response for this profile.
func (p *Profile) Classify(statusCode int, body string) Verdict {
	if statusCode == http.StatusNotFound {
		return VerdictMissing
	}
	lower := strings.ToLower(body)
	for _, m := range p.MissingMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return VerdictMissing
		}
	}
	if statusCode == http.StatusOK {
		return VerdictPresent
	}
	return VerdictUnknown
}

// BuiltinProfiles are the known academy sources, keyed by award ID.
// The marker phrases match each directory's 404 / soft-404 page text.
func BuiltinProfiles() map[string]*Profile {
	return map[string]*Profile{
		// National Academy of Engineering
		"3008": {
			Name:            "NAE",
			IdentifierField: "profile_url",
			MissingMarkers: []string{
				"page you are looking for might have been removed",
				"resource you are looking for has been removed",
				"page cannot be found",
			},
		},
		// National Academy of Medicine
		"1909": {
			Name:            "NAM",
			IdentifierField: "profile_url",
			MissingMarkers:  []string{"page not found"},
		},
		// National Academy of Sciences
		"2023": {
			Name:            "NAS",
			IdentifierField: "profile_url",
			MissingMarkers:  []string{"page not found"},
		},
	}
}

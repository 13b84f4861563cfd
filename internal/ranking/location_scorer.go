package ranking

import (
	"strings"

	"github.com/hyperjump/kyujin/internal/models"
)

// Location sub-scores, from strongest to weakest signal.
const (
	LocationExactScore     = 100.0
	LocationRemoteScore    = 100.0
	LocationSubstringScore = 85.0
	LocationCityScore      = 70.0
	LocationRegionScore    = 40.0
	LocationNeutralScore   = 50.0
)

var remoteTerms = []string{"remote", "anywhere", "work from home", "wfh", "distributed", "telecommute"}

// LocationScore grades how well listingLocation fits the searcher's locations.
// With no preference given the score is neutral; otherwise the best grade across preferences
// wins and 0 means no signal at all.
func LocationScore(listingLocation string, c models.SearchCriteria) float64 {
	prefs := preferredLocations(c)
	if len(prefs) == 0 {
		return LocationNeutralScore
	}
	loc := newPlace(listingLocation)
	if loc.norm == "" {
		return 0
	}
	best := 0.0
	for _, pref := range prefs {
		if s := locationMatch(loc, pref); s > best {
			best = s
		}
		if best == LocationExactScore {
			break
		}
	}
	return best
}

// place is a location string in normalized form plus its comma-separated segments,
// e.g. "Austin, TX, USA" -> ["austin", "tx", "usa"].
type place struct {
	norm     string
	segments []string
}

func newPlace(s string) place {
	p := place{norm: normalizeText(s)}
	for _, seg := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '/' || r == '|' || r == '(' || r == ')'
	}) {
		if n := normalizeText(seg); n != "" {
			p.segments = append(p.segments, n)
		}
	}
	return p
}

func preferredLocations(c models.SearchCriteria) []place {
	out := make([]place, 0, len(c.PreferredLocations)+1)
	seen := make(map[string]struct{})
	add := func(s string) {
		p := newPlace(s)
		if p.norm == "" {
			return
		}
		if _, ok := seen[p.norm]; ok {
			return
		}
		seen[p.norm] = struct{}{}
		out = append(out, p)
	}
	for _, p := range c.PreferredLocations {
		add(p)
	}
	add(c.Location)
	return out
}

// locationMatch grades one listing location against one preference.
func locationMatch(loc, pref place) float64 {
	if loc.norm == pref.norm {
		return LocationExactScore
	}
	if isRemote(pref.norm) && isRemote(loc.norm) {
		return LocationRemoteScore
	}
	if containsPhrase(loc.norm, pref.norm) || containsPhrase(pref.norm, loc.norm) {
		return LocationSubstringScore
	}
	if len(loc.segments) > 0 && len(pref.segments) > 0 && loc.segments[0] == pref.segments[0] {
		return LocationCityScore
	}
	for _, ls := range loc.segments {
		for _, ps := range pref.segments {
			if ls == ps {
				return LocationRegionScore
			}
		}
	}
	return 0
}

func isRemote(s string) bool {
	for _, t := range remoteTerms {
		if containsPhrase(s, t) {
			return true
		}
	}
	return false
}

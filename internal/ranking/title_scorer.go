package ranking

import (
	"github.com/hyperjump/kyujin/internal/models"
)

const (
	// titleHitWeight and descriptionHitWeight are the credit a term earns for appearing in
	// the title or only in the description.
	titleHitWeight       = 1.0
	descriptionHitWeight = 0.5
	// ExcludedTitleCap bounds the title sub-score of a listing containing an excluded keyword.
	ExcludedTitleCap = 10.0
	// excludedPenalty scales the title sub-score of a listing containing an excluded keyword.
	excludedPenalty = 0.1
	// TitleNeutralScore is used when the query has no searchable terms (only stop words).
	TitleNeutralScore = 50.0
)

// TitleScore measures keyword overlap between the listing and the query plus include keywords.
// Any exclude keyword present in the title or description forces the score to at most
// ExcludedTitleCap.
func TitleScore(l models.RawListing, c models.SearchCriteria) float64 {
	terms := uniqueTerms(append([]string{c.Query}, c.IncludeKeywords...)...)
	score := TitleNeutralScore
	if len(terms) > 0 {
		title := termSet(l.Title)
		desc := termSet(l.Description)
		var credit float64
		for _, t := range terms {
			if _, ok := title[t]; ok {
				credit += titleHitWeight
				continue
			}
			if _, ok := desc[t]; ok {
				credit += descriptionHitWeight
			}
		}
		score = 100 * credit / float64(len(terms))
	}
	if HasExcludedKeyword(l, c.ExcludeKeywords) {
		score = min(score*excludedPenalty, ExcludedTitleCap)
	}
	return score
}

// HasExcludedKeyword reports whether any of excludes occurs as a phrase in the listing's
// title or description, case-insensitively.
func HasExcludedKeyword(l models.RawListing, excludes []string) bool {
	if len(excludes) == 0 {
		return false
	}
	text := normalizeText(l.Title + " " + l.Description)
	for _, ex := range excludes {
		if containsPhrase(text, normalizeText(ex)) {
			return true
		}
	}
	return false
}

// Package dedup merges listings that describe the same real-world posting into one canonical
// entry.
//
// Matching is strict by default: two listings are the same posting when their fingerprints
// (case-folded, whitespace-collapsed title, company and location) are equal. A fuzzy threshold in
// (0, 1] additionally merges listings whose fingerprints have a normalized Levenshtein similarity
// at or above the threshold.
package dedup

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kyujin/internal/models"
	"github.com/hyperjump/kyujin/internal/ranking"
)

// fieldSep separates fingerprint fields so "a b|c" and "a|b c" stay distinct.
const fieldSep = "|"

// Deduplicator is immutable and safe for concurrent use.
type Deduplicator struct {
	priors    ranking.SourcePriors
	threshold float64
}

// New returns a Deduplicator that prefers listings from sources with a higher prior.
// threshold 0 keeps matching strict.
func New(priors ranking.SourcePriors, threshold float64) (*Deduplicator, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("dedup fuzzy threshold must be within [0, 1], got %v", threshold)
	}
	return &Deduplicator{priors: priors.Clone(), threshold: threshold}, nil
}

// Threshold returns the fuzzy threshold; 0 means strict.
func (d *Deduplicator) Threshold() float64 { return d.threshold }

// Fingerprint returns the identity used to detect duplicate postings.
func Fingerprint(l models.RawListing) string {
	return fold(l.Title) + fieldSep + fold(l.Company) + fieldSep + fold(l.Location)
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Merge collapses duplicates and returns the survivors plus the number of listings removed.
// len(out)+removed == len(listings), and Merge(out) removes nothing.
func (d *Deduplicator) Merge(listings []models.RawListing) (out []models.RawListing, removed int) {
	out = listings
	for {
		var n int
		out, n = d.pass(out)
		removed += n
		// A fuzzy pass can produce a new canonical entry that is similar to another group's;
		// repeat until nothing merges so the result is a fixed point.
		if n == 0 || d.threshold == 0 {
			return out, removed
		}
	}
}

type group struct {
	fingerprint string
	canonical   models.RawListing
}

func (d *Deduplicator) pass(listings []models.RawListing) ([]models.RawListing, int) {
	groups := make([]group, 0, len(listings))
	byFingerprint := make(map[string]int, len(listings))
	removed := 0
	for _, l := range listings {
		fp := Fingerprint(l)
		idx, ok := byFingerprint[fp]
		if !ok && d.threshold > 0 {
			idx, ok = d.closest(groups, fp)
		}
		if !ok {
			byFingerprint[fp] = len(groups)
			groups = append(groups, group{fingerprint: fp, canonical: l})
			continue
		}
		removed++
		if d.prefer(l, groups[idx].canonical) {
			groups[idx].canonical = l
		}
	}
	out := make([]models.RawListing, len(groups))
	for i, g := range groups {
		out[i] = g.canonical
	}
	return out, removed
}

// closest returns the most similar group whose fingerprint meets the threshold.
func (d *Deduplicator) closest(groups []group, fp string) (int, bool) {
	best, bestSim := -1, 0.0
	for i, g := range groups {
		if sim := Similarity(fp, g.fingerprint); sim >= d.threshold && sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return best, best >= 0
}

// prefer reports whether a should replace b as the canonical listing: higher source prior
// first, then most recent scrape, then the smaller (source, id) key.
func (d *Deduplicator) prefer(a, b models.RawListing) bool {
	pa, pb := d.priors.Prior(a.Source), d.priors.Prior(b.Source)
	if pa != pb {
		return pa > pb
	}
	if !a.ScrapedAt.Equal(b.ScrapedAt) {
		return a.ScrapedAt.After(b.ScrapedAt)
	}
	return a.Key() < b.Key()
}

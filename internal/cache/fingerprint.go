package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/hyperjump/kyujin/internal/models"
)

// KeyPrefix namespaces result cache keys in shared stores.
const KeyPrefix = "kyujin:search:"

// canonicalCriteria fixes the field order of the fingerprint input. Timeout is not part of
// it: two searches that differ only in how long they may wait want the same results.
type canonicalCriteria struct {
	Query              string              `json:"q"`
	Location           string              `json:"loc"`
	PreferredLocations []string            `json:"pref"`
	Sources            []string            `json:"src"`
	JobType            models.JobType      `json:"type"`
	Salary             *models.SalaryRange `json:"sal"`
	IncludeKeywords    []string            `json:"inc"`
	ExcludeKeywords    []string            `json:"exc"`
	PostedWithinDays   int                 `json:"days"`
	MaxResults         int                 `json:"max"`
}

// Fingerprint returns the cache key for c. Criteria that differ only in field order, casing,
// whitespace or list ordering share a fingerprint.
func Fingerprint(c models.SearchCriteria) string {
	n := c.Normalize()
	data, err := json.Marshal(canonicalCriteria{
		Query:              n.Query,
		Location:           n.Location,
		PreferredLocations: n.PreferredLocations,
		Sources:            n.Sources,
		JobType:            n.JobType,
		Salary:             n.Salary,
		IncludeKeywords:    n.IncludeKeywords,
		ExcludeKeywords:    n.ExcludeKeywords,
		PostedWithinDays:   n.PostedWithinDays,
		MaxResults:         n.EffectiveMaxResults(),
	})
	if err != nil {
		// Only reachable with NaN salary bounds, which validation rejects.
		data = []byte(n.Query)
	}
	sum := sha256.Sum256(data)
	return KeyPrefix + hex.EncodeToString(sum[:])
}

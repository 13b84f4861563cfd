package search

import (
	"github.com/hyperjump/kyujin/internal/apperr"
	"github.com/hyperjump/kyujin/internal/models"
)

// ProcessCriteria applies the default sources, normalizes and validates the criteria.
func ProcessCriteria(c models.SearchCriteria, defaultSources []string) (models.SearchCriteria, error) {
	if len(c.Sources) == 0 {
		c.Sources = append([]string(nil), defaultSources...)
	}
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return c, err
	}
	if len(c.Sources) == 0 {
		return c, apperr.Validation("no sources requested and no default sources configured")
	}
	return c, nil
}

// Package ranking scores job listings against search criteria and orders them by relevance.
package ranking

import (
	"fmt"
	"sort"

	"github.com/hyperjump/kyujin/internal/models"
)

// Scorer computes a 0-100 relevance score with a four-part breakdown.
// A Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	weights Weights
	priors  SourcePriors
}

// NewScorer validates weights and priors and returns a Scorer.
func NewScorer(weights Weights, priors SourcePriors) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if err := priors.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: weights, priors: priors.Clone()}, nil
}

// MustDefaultScorer returns a Scorer with the default weights and priors.
func MustDefaultScorer() *Scorer {
	s, err := NewScorer(DefaultWeights(), DefaultSourcePriors())
	if err != nil {
		panic(fmt.Sprintf("default scoring configuration is invalid: %v", err))
	}
	return s
}

// Weights returns the configured weights.
func (s *Scorer) Weights() Weights { return s.weights }

// Priors returns a copy of the configured source priors.
func (s *Scorer) Priors() SourcePriors { return s.priors.Clone() }

// Score scores one listing. It is a pure function of the listing, the criteria and the
// scorer's configuration.
func (s *Scorer) Score(l models.RawListing, c models.SearchCriteria) models.ScoredListing {
	b := models.ScoreBreakdown{
		Location: models.NewScoreComponent(clamp(LocationScore(l.Location, c)), s.weights.Location),
		Title:    models.NewScoreComponent(clamp(TitleScore(l, c)), s.weights.Title),
		Salary:   models.NewScoreComponent(clamp(SalaryScore(l.Salary, c)), s.weights.Salary),
		Source:   models.NewScoreComponent(clamp(s.priors.Prior(l.Source)), s.weights.Source),
	}
	return models.ScoredListing{
		RawListing: l,
		Score:      b.Total(),
		Breakdown:  b,
	}
}

// Rank scores every listing and returns them ordered best first. Ties are broken by the most
// recent posting date and then by (source, id) so the order is deterministic.
func (s *Scorer) Rank(listings []models.RawListing, c models.SearchCriteria) []models.ScoredListing {
	out := make([]models.ScoredListing, len(listings))
	for i, l := range listings {
		out[i] = s.Score(l, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].PostedAt.Equal(out[j].PostedAt) {
			return out[i].PostedAt.After(out[j].PostedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

package ranking

import (
	"fmt"
	"math"
	"strings"
)

// weightTolerance absorbs float rounding when checking that weights sum to 1.0.
const weightTolerance = 1e-9

// DefaultSourcePrior is the quality prior for a source with no configured value.
const DefaultSourcePrior = 50.0

// Weights holds the weight of each scoring component. They must sum to 1.0.
type Weights struct {
	Location float64 `yaml:"location"` // default: 0.30
	Title    float64 `yaml:"title"`    // default: 0.30
	Salary   float64 `yaml:"salary"`   // default: 0.20
	Source   float64 `yaml:"source"`   // default: 0.20
}

// DefaultWeights returns the default component weights.
func DefaultWeights() Weights {
	return Weights{
		Location: 0.30,
		Title:    0.30,
		Salary:   0.20,
		Source:   0.20,
	}
}

// IsZero reports whether no weight is set.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// Sum returns the sum of all weights.
func (w Weights) Sum() float64 {
	return w.Location + w.Title + w.Salary + w.Source
}

// Validate rejects weight sets that are negative or do not sum to 1.0.
// Weights are never normalized silently.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"location": w.Location, "title": w.Title, "salary": w.Salary, "source": w.Source,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("scoring weight %s must be within [0, 1], got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("scoring weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// SourcePriors maps a source name to its fixed quality prior in [0, 100].
type SourcePriors map[string]float64

// DefaultSourcePriors returns priors for the bundled adapters.
func DefaultSourcePriors() SourcePriors {
	return SourcePriors{
		"adzuna":     80,
		"careerpage": 90,
		"static":     60,
	}
}

// Prior returns the prior for source, or DefaultSourcePrior when unset.
func (p SourcePriors) Prior(source string) float64 {
	if v, ok := p[strings.ToLower(source)]; ok {
		return v
	}
	return DefaultSourcePrior
}

// Validate rejects priors outside [0, 100].
func (p SourcePriors) Validate() error {
	for name, v := range p {
		if v < 0 || v > 100 || math.IsNaN(v) {
			return fmt.Errorf("source prior %s must be within [0, 100], got %v", name, v)
		}
	}
	return nil
}

// Clone returns a copy with lower-cased keys.
func (p SourcePriors) Clone() SourcePriors {
	out := make(SourcePriors, len(p))
	for k, v := range p {
		out[strings.ToLower(k)] = v
	}
	return out
}

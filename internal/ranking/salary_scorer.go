package ranking

import (
	"math"
	"strings"

	"github.com/hyperjump/kyujin/internal/models"
)

// SalaryNeutralScore is used whenever salaries cannot be compared: the listing has no salary,
// the searcher gave no band, or the currencies differ. Unknown is not a mismatch.
const SalaryNeutralScore = 50.0

// SalaryScore scores the annualized listing salary against the criteria band: 100 when the
// listing band lies inside the criteria band, the inside fraction of the listing band for
// partial overlap, and 0 for no overlap.
func SalaryScore(s *models.Salary, c models.SearchCriteria) float64 {
	lo, hi, ok := s.AnnualRange()
	if !ok {
		return SalaryNeutralScore
	}
	cmin, cmax, ok := c.Salary.Bounds()
	if !ok {
		return SalaryNeutralScore
	}
	if s.Currency != "" && c.Salary.Currency != "" && !strings.EqualFold(s.Currency, c.Salary.Currency) {
		return SalaryNeutralScore
	}
	if hi < cmin || lo > cmax {
		return 0
	}
	if lo >= cmin && hi <= cmax {
		return 100
	}
	overlap := math.Min(hi, cmax) - math.Max(lo, cmin)
	width := hi - lo
	if width <= 0 {
		return 100
	}
	return 100 * overlap / width
}

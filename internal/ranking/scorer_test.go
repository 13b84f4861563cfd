package ranking

import (
	"math"
	"testing"
	"time"

	"github.com/hyperjump/kyujin/internal/models"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"all on title", Weights{Title: 1}, false},
		{"sum above one", Weights{Location: 0.4, Title: 0.3, Salary: 0.2, Source: 0.2}, true},
		{"sum below one", Weights{Location: 0.25, Title: 0.25, Salary: 0.25, Source: 0.2}, true},
		{"negative weight", Weights{Location: -0.1, Title: 0.5, Salary: 0.3, Source: 0.3}, true},
		{"zero weights", Weights{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewScorer_RejectsInvalidConfiguration(t *testing.T) {
	if _, err := NewScorer(Weights{Location: 0.5, Title: 0.5, Salary: 0.5}, nil); err == nil {
		t.Error("expected weights that sum to 1.5 to be rejected")
	}
	if _, err := NewScorer(DefaultWeights(), SourcePriors{"adzuna": 120}); err == nil {
		t.Error("expected prior above 100 to be rejected")
	}
}

func TestScorer_TotalIsWeightedSum(t *testing.T) {
	scorer := MustDefaultScorer()
	now := time.Now()
	listings := []models.RawListing{
		{ID: "1", Source: "adzuna", Title: "Senior Go Engineer", Company: "Acme", Location: "Berlin, Germany",
			Salary: &models.Salary{Min: 70000, Max: 90000, Currency: "EUR", Period: models.PayYearly}, PostedAt: now},
		{ID: "2", Source: "static", Title: "Barista", Location: "Paris", Description: "coffee"},
		{ID: "3", Source: "unknown", Title: "Go developer", Location: "Remote",
			Salary: &models.Salary{Min: 60, Currency: "EUR", Period: models.PayHourly}},
		{ID: "4", Source: "careerpage", Title: "", Location: ""},
	}
	criteria := []models.SearchCriteria{
		{Query: "go engineer"},
		{Query: "go engineer", PreferredLocations: []string{"Berlin"}, Salary: &models.SalaryRange{Min: 80000, Max: 100000, Currency: "EUR"}},
		{Query: "go", Location: "remote", ExcludeKeywords: []string{"senior"}},
		{Query: "the", IncludeKeywords: []string{"coffee"}},
	}
	for _, l := range listings {
		for _, c := range criteria {
			got := scorer.Score(l, c)
			if got.Score < 0 || got.Score > 100 {
				t.Errorf("score out of range for %s/%q: %v", l.ID, c.Query, got.Score)
			}
			if !approx(got.Score, got.Breakdown.Total()) {
				t.Errorf("total %v != breakdown sum %v", got.Score, got.Breakdown.Total())
			}
			b := got.Breakdown
			if !approx(b.Location.Weight+b.Title.Weight+b.Salary.Weight+b.Source.Weight, 1.0) {
				t.Error("breakdown weights must sum to 1.0")
			}
			again := scorer.Score(l, c)
			if again.Score != got.Score || again.Breakdown != got.Breakdown {
				t.Error("scoring is not deterministic")
			}
		}
	}
}

func TestLocationScore(t *testing.T) {
	tests := []struct {
		name     string
		listing  string
		criteria models.SearchCriteria
		want     float64
	}{
		{"no preference is neutral", "Berlin", models.SearchCriteria{}, LocationNeutralScore},
		{"exact preferred", "Berlin", models.SearchCriteria{PreferredLocations: []string{"berlin"}}, LocationExactScore},
		{"exact via location field", "Austin, TX", models.SearchCriteria{Location: "austin, tx"}, LocationExactScore},
		{"remote equivalence", "Remote - Europe", models.SearchCriteria{PreferredLocations: []string{"Work from home"}}, LocationRemoteScore},
		{"substring", "Berlin, Germany", models.SearchCriteria{PreferredLocations: []string{"Berlin"}}, LocationSubstringScore},
		{"same city", "Austin, TX", models.SearchCriteria{Location: "Austin, Texas"}, LocationCityScore},
		{"same region", "Dallas, TX", models.SearchCriteria{Location: "Austin, TX"}, LocationRegionScore},
		{"best of several", "Munich", models.SearchCriteria{PreferredLocations: []string{"Hamburg", "Munich"}}, LocationExactScore},
		{"no match", "Tokyo", models.SearchCriteria{PreferredLocations: []string{"Berlin"}}, 0},
		{"listing without location", "", models.SearchCriteria{PreferredLocations: []string{"Berlin"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocationScore(tt.listing, tt.criteria); got != tt.want {
				t.Errorf("LocationScore(%q) = %v, want %v", tt.listing, got, tt.want)
			}
		})
	}
}

func TestTitleScore(t *testing.T) {
	tests := []struct {
		name     string
		listing  models.RawListing
		criteria models.SearchCriteria
		want     float64
	}{
		{"all terms in title", models.RawListing{Title: "Go Engineer"}, models.SearchCriteria{Query: "go engineer"}, 100},
		{"title and description", models.RawListing{Title: "Go Engineer", Description: "A senior role"},
			models.SearchCriteria{Query: "senior go engineer"}, 100 * 2.5 / 3},
		{"include keywords count as terms", models.RawListing{Title: "Go Engineer"},
			models.SearchCriteria{Query: "go engineer", IncludeKeywords: []string{"kubernetes"}}, 100 * 2.0 / 3},
		{"no overlap", models.RawListing{Title: "Barista"}, models.SearchCriteria{Query: "go engineer"}, 0},
		{"stop words only is neutral", models.RawListing{Title: "Barista"}, models.SearchCriteria{Query: "the"}, TitleNeutralScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleScore(tt.listing, tt.criteria); !approx(got, tt.want) {
				t.Errorf("TitleScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTitleScore_ExcludedKeywordForcesLowScore(t *testing.T) {
	l := models.RawListing{Title: "Senior Go Engineer", Description: "Unpaid internship with equity"}
	c := models.SearchCriteria{Query: "go engineer", ExcludeKeywords: []string{"unpaid"}}
	if got := TitleScore(l, c); got > ExcludedTitleCap {
		t.Errorf("TitleScore() = %v, want <= %v", got, ExcludedTitleCap)
	}
	c.ExcludeKeywords = []string{"unpai"}
	if got := TitleScore(l, c); got != 100 {
		t.Errorf("partial word must not count as excluded, got %v", got)
	}
}

func TestSalaryScore(t *testing.T) {
	band := models.SearchCriteria{Salary: &models.SalaryRange{Min: 100000, Max: 150000, Currency: "USD"}}
	tests := []struct {
		name     string
		salary   *models.Salary
		criteria models.SearchCriteria
		want     float64
	}{
		{"no listing salary", nil, band, SalaryNeutralScore},
		{"no criteria band", &models.Salary{Min: 1}, models.SearchCriteria{}, SalaryNeutralScore},
		{"contained", &models.Salary{Min: 110000, Max: 140000, Currency: "USD", Period: models.PayYearly}, band, 100},
		{"partial overlap", &models.Salary{Min: 50000, Max: 150000, Currency: "USD"}, band, 50},
		{"no overlap", &models.Salary{Min: 40000, Max: 60000, Currency: "USD"}, band, 0},
		{"hourly annualized", &models.Salary{Min: 55, Max: 60, Period: models.PayHourly}, band, 100},
		{"monthly annualized", &models.Salary{Min: 5000, Period: models.PayMonthly}, band, 0},
		{"currency mismatch", &models.Salary{Min: 1, Max: 2, Currency: "JPY"}, band, SalaryNeutralScore},
		{"open-ended band", &models.Salary{Min: 200000, Max: 250000},
			models.SearchCriteria{Salary: &models.SalaryRange{Min: 100000}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SalaryScore(tt.salary, tt.criteria); !approx(got, tt.want) {
				t.Errorf("SalaryScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScorer_MissingSalaryIsNeutral(t *testing.T) {
	scorer := MustDefaultScorer()
	withSalary := models.RawListing{ID: "1", Source: "adzuna", Title: "Go Engineer", Location: "Berlin",
		Salary: &models.Salary{Min: 10000, Max: 20000, Period: models.PayYearly}}
	without := withSalary
	without.Salary = nil
	bands := []*models.SalaryRange{nil, {Min: 15000}, {Min: 500000, Max: 600000}, {Max: 10}}
	for _, band := range bands {
		c := models.SearchCriteria{Query: "go engineer", Location: "berlin", Salary: band}
		a, b := scorer.Score(withSalary, c), scorer.Score(without, c)
		if a.Breakdown.Location != b.Breakdown.Location || a.Breakdown.Title != b.Breakdown.Title {
			t.Errorf("salary presence changed location/title sub-scores for band %+v", band)
		}
		if b.Breakdown.Salary.Score != SalaryNeutralScore {
			t.Errorf("missing salary scored %v, want neutral", b.Breakdown.Salary.Score)
		}
	}
}

func TestScorer_SourcePrior(t *testing.T) {
	scorer, err := NewScorer(DefaultWeights(), SourcePriors{"Adzuna": 80})
	if err != nil {
		t.Fatal(err)
	}
	got := scorer.Score(models.RawListing{Source: "adzuna"}, models.SearchCriteria{Query: "x"})
	if got.Breakdown.Source.Score != 80 {
		t.Errorf("prior = %v, want 80", got.Breakdown.Source.Score)
	}
	got = scorer.Score(models.RawListing{Source: "elsewhere"}, models.SearchCriteria{Query: "x"})
	if got.Breakdown.Source.Score != DefaultSourcePrior {
		t.Errorf("unknown source prior = %v, want %v", got.Breakdown.Source.Score, DefaultSourcePrior)
	}
}

func TestScorer_Rank(t *testing.T) {
	scorer := MustDefaultScorer()
	now := time.Now()
	listings := []models.RawListing{
		{ID: "a", Source: "static", Title: "Barista", PostedAt: now},
		{ID: "b", Source: "static", Title: "Go Engineer", PostedAt: now.Add(-time.Hour)},
		{ID: "c", Source: "static", Title: "Go Engineer", PostedAt: now},
	}
	ranked := scorer.Rank(listings, models.SearchCriteria{Query: "go engineer"})
	order := []string{ranked[0].ID, ranked[1].ID, ranked[2].ID}
	want := []string{"c", "b", "a"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Rank order = %v, want %v", order, want)
		}
	}
}

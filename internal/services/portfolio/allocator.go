// Package portfolio splits total capital across scored warrants.
package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

// SumTolerance is the relative tolerance on allocated capital versus the total.
const SumTolerance = 1e-6

// Allocate keeps instruments with positive expected profit, ranks them by profit
// (descending, ties by symbol) and splits total in proportion to sizing fractions.
// Individual fractions may be negative as long as their sum is positive.
func Allocate(scored []models.ScoredInstrument, total float64) (*models.Portfolio, error) {
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total investment must be > 0 and finite, got %v", models.ErrInvalidParameter, total)
	}

	kept := make([]models.ScoredInstrument, 0, len(scored))
	for _, s := range scored {
		if s.Result.ExpectedProfit > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no instrument has positive expected profit", models.ErrAllocationUndefined)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		pi, pj := kept[i].Result.ExpectedProfit, kept[j].Result.ExpectedProfit
		if pi != pj {
			return pi > pj
		}
		return kept[i].Symbol < kept[j].Symbol
	})

	sum := 0.0
	for _, s := range kept {
		sum += s.Result.SizingFraction
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: sizing fractions sum to %v over %d instruments", models.ErrAllocationUndefined, sum, len(kept))
	}

	p := &models.Portfolio{
		Entries:         make([]models.PortfolioEntry, 0, len(kept)),
		TotalInvestment: total,
	}
	for _, s := range kept {
		capital := s.Result.SizingFraction / sum * total
		if math.IsNaN(capital) || math.IsInf(capital, 0) {
			return nil, fmt.Errorf("%w: capital for %s is %v", models.ErrAllocationUndefined, s.Symbol, capital)
		}
		p.Entries = append(p.Entries, models.PortfolioEntry{
			Symbol:  s.Symbol,
			Result:  s.Result,
			Capital: capital,
			Trades:  s.Trades,
		})
	}

	if got := p.AllocatedTotal(); math.Abs(got-total) > SumTolerance*total {
		return nil, fmt.Errorf("%w: allocated %v of %v", models.ErrAllocationUndefined, got, total)
	}
	return p, nil
}

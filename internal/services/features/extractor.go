package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

// TradingDaysPerYear is the annualization factor for daily bars.
const TradingDaysPerYear = 252.0

// PctReturns computes simple returns r_t = C_t/C_{t-1} - 1 between consecutive closes.
// Pairs with a non-positive previous close yield NaN and are dropped by CleanReturns.
func PctReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev <= 0 || math.IsNaN(prev) || math.IsNaN(closes[i]) {
			out = append(out, math.NaN())
			continue
		}
		out = append(out, closes[i]/prev-1)
	}
	return out
}

// SeriesReturns returns the simple returns of a price series.
func SeriesReturns(s *models.PriceSeries) []float64 {
	if s == nil {
		return nil
	}
	return PctReturns(s.Closes())
}

// CleanReturns drops missing (NaN or infinite) observations.
func CleanReturns(returns []float64) []float64 {
	out := make([]float64, 0, len(returns))
	for _, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RealizedVolatility is the sample standard deviation of the last `window`
// returns, annualized with periodsPerYear. window <= 0 uses the whole slice.
func RealizedVolatility(returns []float64, window int, periodsPerYear float64) float64 {
	if window <= 0 {
		window = len(returns)
	}
	if window < 2 || len(returns) < window {
		return 0
	}
	sd := stat.StdDev(returns[len(returns)-window:], nil)
	return sd * math.Sqrt(periodsPerYear)
}

// PeriodsPerYear returns the approximate number of bars per year for an interval.
func PeriodsPerYear(interval string) float64 {
	switch interval {
	case "1m":
		return TradingDaysPerYear * 6.5 * 60
	case "5m":
		return TradingDaysPerYear * 6.5 * 12
	default:
		return TradingDaysPerYear
	}
}

package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/internal/services/features"
)

// RealizedEstimator annualizes the sample standard deviation of returns.
type RealizedEstimator struct {
	MinReturns     int
	PeriodsPerYear float64
}

func NewRealizedEstimator(minReturns int, periodsPerYear float64) *RealizedEstimator {
	return &RealizedEstimator{MinReturns: minReturns, PeriodsPerYear: periodsPerYear}
}

func (e *RealizedEstimator) Name() string { return "realized" }

func (e *RealizedEstimator) Estimate(_ context.Context, returns []float64) (models.VolatilityEstimate, error) {
	clean := features.CleanReturns(returns)
	if len(clean) < e.MinReturns || len(clean) < 2 {
		return models.VolatilityEstimate{}, fmt.Errorf("%w: realized vol needs %d returns, got %d", models.ErrInsufficientData, e.MinReturns, len(clean))
	}
	return models.VolatilityEstimate{
		Value: features.RealizedVolatility(clean, 0, e.PeriodsPerYear),
		AsOf:  time.Now(),
		Model: e.Name(),
	}, nil
}

// EWMAEstimator is the RiskMetrics exponentially weighted variance.
type EWMAEstimator struct {
	Lambda         float64
	MinReturns     int
	PeriodsPerYear float64
}

func NewEWMAEstimator(lambda float64, minReturns int, periodsPerYear float64) *EWMAEstimator {
	return &EWMAEstimator{Lambda: lambda, MinReturns: minReturns, PeriodsPerYear: periodsPerYear}
}

func (e *EWMAEstimator) Name() string { return "ewma" }

func (e *EWMAEstimator) Estimate(_ context.Context, returns []float64) (models.VolatilityEstimate, error) {
	var out models.VolatilityEstimate
	if e.Lambda <= 0 || e.Lambda >= 1 {
		return out, fmt.Errorf("%w: ewma lambda must be in (0,1), got %v", models.ErrInvalidParameter, e.Lambda)
	}
	clean := features.CleanReturns(returns)
	if len(clean) < e.MinReturns || len(clean) < 2 {
		return out, fmt.Errorf("%w: ewma needs %d returns, got %d", models.ErrInsufficientData, e.MinReturns, len(clean))
	}
	// seed with the mean square of the series
	s2 := 0.0
	for _, r := range clean {
		s2 += r * r
	}
	s2 /= float64(len(clean))
	for _, r := range clean {
		s2 = e.Lambda*s2 + (1-e.Lambda)*r*r
	}
	out.Value = math.Sqrt(s2 * e.PeriodsPerYear)
	out.AsOf = time.Now()
	out.Model = e.Name()
	return out, nil
}

// FallbackEstimator uses Secondary when Primary fails to converge.
type FallbackEstimator struct {
	Primary   domsvc.VolatilityEstimator
	Secondary domsvc.VolatilityEstimator
	// OnFallback, when set, observes each switch.
	OnFallback func(err error)
}

func (f *FallbackEstimator) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

func (f *FallbackEstimator) Estimate(ctx context.Context, returns []float64) (models.VolatilityEstimate, error) {
	est, err := f.Primary.Estimate(ctx, returns)
	if err == nil || !errors.Is(err, models.ErrNonConvergence) {
		return est, err
	}
	if f.OnFallback != nil {
		f.OnFallback(err)
	}
	est, ferr := f.Secondary.Estimate(ctx, returns)
	if ferr != nil {
		return est, fmt.Errorf("fallback after %v: %w", err, ferr)
	}
	est.Model = f.Secondary.Name() + " (fallback)"
	return est, nil
}

var (
	_ domsvc.VolatilityEstimator = (*RealizedEstimator)(nil)
	_ domsvc.VolatilityEstimator = (*EWMAEstimator)(nil)
	_ domsvc.VolatilityEstimator = (*FallbackEstimator)(nil)
)

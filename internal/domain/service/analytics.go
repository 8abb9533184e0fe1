package service

import (
	"context"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

// VolatilityEstimator fits a model to a period return series and yields the latest annualized volatility.
type VolatilityEstimator interface {
	Estimate(ctx context.Context, returns []float64) (models.VolatilityEstimate, error)
	Name() string
}

// SizingPolicy turns an edge into a sizing fraction.
type SizingPolicy interface {
	Fraction(edge float64) (float64, error)
	Name() string
}

package analytics

import (
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
	"github.com/danghungithp/chungquyen-VN/pkg/logger"
)

// NewVolatilityEstimator builds the estimator selected by volatility.model.
func NewVolatilityEstimator(cfg *config.Config, log *logger.Logger) domsvc.VolatilityEstimator {
	v := cfg.Volatility
	minReturns := v.MinPrices - 1
	realized := NewRealizedEstimator(minReturns, v.PeriodsPerYear)

	var primary domsvc.VolatilityEstimator
	switch v.Model {
	case "ewma":
		return NewEWMAEstimator(v.Lambda, minReturns, v.PeriodsPerYear)
	case "realized":
		return realized
	case "remote":
		primary = NewHTTPVolatilityEstimator(cfg)
	default:
		g := NewGARCHEstimator(minReturns, v.PeriodsPerYear)
		if v.MaxIterations > 0 {
			g.MaxIterations = v.MaxIterations
		}
		primary = g
	}
	if !v.FallbackToRealized {
		return primary
	}
	return &FallbackEstimator{
		Primary:   primary,
		Secondary: realized,
		OnFallback: func(err error) {
			log.Warn("volatility fit did not converge, using realized volatility",
				logger.String("model", primary.Name()), logger.Error(err))
		},
	}
}

package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/internal/services/features"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
)

// HTTPVolatilityEstimator delegates the fit to an external model service.
type HTTPVolatilityEstimator struct {
	base       *HTTPServiceBase
	minReturns int
	periods    float64
}

func NewHTTPVolatilityEstimator(cfg *config.Config) *HTTPVolatilityEstimator {
	return &HTTPVolatilityEstimator{
		base:       NewHTTPServiceBase(cfg),
		minReturns: cfg.Volatility.MinPrices - 1,
		periods:    cfg.Volatility.PeriodsPerYear,
	}
}

func (e *HTTPVolatilityEstimator) Name() string { return "remote" }

type volReq struct {
	Returns        []float64 `json:"returns"`
	PeriodsPerYear float64   `json:"periods_per_year"`
	P              int       `json:"p"`
	Q              int       `json:"q"`
}

type volResp struct {
	Volatility float64 `json:"volatility"`
	Model      string  `json:"model"`
	P          int     `json:"p"`
	Q          int     `json:"q"`
	Converged  *bool   `json:"converged"`
}

func (e *HTTPVolatilityEstimator) Estimate(ctx context.Context, returns []float64) (models.VolatilityEstimate, error) {
	var result models.VolatilityEstimate
	clean := features.CleanReturns(returns)
	if len(clean) < e.minReturns {
		return result, fmt.Errorf("%w: remote fit needs %d returns, got %d", models.ErrInsufficientData, e.minReturns, len(clean))
	}
	var vr volResp
	err := e.base.PostJSONWithRetry(ctx, "/vol/garch", volReq{Returns: clean, PeriodsPerYear: e.periods, P: 1, Q: 1}, &vr)
	if err != nil {
		return result, fmt.Errorf("post vol: %w", err)
	}
	if vr.Converged != nil && !*vr.Converged {
		return result, fmt.Errorf("%w: remote model reported no convergence", models.ErrNonConvergence)
	}
	if math.IsNaN(vr.Volatility) || vr.Volatility < 0 {
		return result, fmt.Errorf("%w: remote volatility %v", models.ErrExternalFetch, vr.Volatility)
	}
	result.Value = vr.Volatility
	result.AsOf = time.Now()
	result.P, result.Q = vr.P, vr.Q
	result.Model = vr.Model
	if result.Model == "" {
		result.Model = e.Name()
	}
	return result, nil
}

var _ domsvc.VolatilityEstimator = (*HTTPVolatilityEstimator)(nil)

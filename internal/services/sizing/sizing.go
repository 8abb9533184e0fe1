// Package sizing turns model/market mispricing into directional, Kelly-style position sizes.
package sizing

import (
	"fmt"
	"math"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/pkg/config"
)

// Clamp modes for sizing fractions.
const (
	ClampNone = "none"
	ClampUnit = "unit"
)

// Edge is the unsigned relative mispricing |market - model| / market.
func Edge(market, model float64) (float64, error) {
	if !(market > 0) || math.IsInf(market, 0) {
		return 0, fmt.Errorf("%w: market price must be > 0, got %v", models.ErrInvalidParameter, market)
	}
	if math.IsNaN(model) || math.IsInf(model, 0) {
		return 0, fmt.Errorf("%w: model price must be finite, got %v", models.ErrInvalidParameter, model)
	}
	return math.Abs(market-model) / market, nil
}

// KellyFraction is (p*b - q) / b. The result is not clamped and may be negative or exceed 1.
func KellyFraction(p, q, b float64) (float64, error) {
	if !(b > 0) || math.IsInf(b, 0) {
		return 0, fmt.Errorf("%w: payoff ratio must be > 0, got %v", models.ErrInvalidParameter, b)
	}
	if math.IsNaN(p) || math.IsNaN(q) {
		return 0, fmt.Errorf("%w: probabilities must be numbers", models.ErrInvalidParameter)
	}
	return (p*b - q) / b, nil
}

// Direction is LONG when the model values the warrant above the market, SHORT otherwise.
func Direction(model, market float64) models.Action {
	if model > market {
		return models.ActionLong
	}
	return models.ActionShort
}

// ExpectedProfit is model minus market, in price units.
func ExpectedProfit(model, market float64) float64 {
	return model - market
}

// FixedProbabilityPolicy sizes every bet with the same assumed outcome
// probabilities. The edge argument is accepted and ignored.
type FixedProbabilityPolicy struct {
	WinProb     float64
	LossProb    float64
	PayoffRatio float64
}

func (p FixedProbabilityPolicy) Name() string { return "fixed" }

func (p FixedProbabilityPolicy) Fraction(_ float64) (float64, error) {
	return KellyFraction(p.WinProb, p.LossProb, p.PayoffRatio)
}

// EdgeScaledPolicy raises the win probability with the edge:
// p = WinProb + Scale*edge capped to [0,1], q = 1 - p.
type EdgeScaledPolicy struct {
	WinProb     float64
	Scale       float64
	PayoffRatio float64
}

func (p EdgeScaledPolicy) Name() string { return "edge_scaled" }

func (p EdgeScaledPolicy) Fraction(edge float64) (float64, error) {
	if math.IsNaN(edge) || edge < 0 {
		return 0, fmt.Errorf("%w: edge must be >= 0, got %v", models.ErrInvalidParameter, edge)
	}
	win := math.Min(math.Max(p.WinProb+p.Scale*edge, 0), 1)
	return KellyFraction(win, 1-win, p.PayoffRatio)
}

// ClampedPolicy bounds another policy's fraction to [0,1].
type ClampedPolicy struct {
	Inner domsvc.SizingPolicy
}

func (c ClampedPolicy) Name() string { return c.Inner.Name() + "/unit" }

func (c ClampedPolicy) Fraction(edge float64) (float64, error) {
	f, err := c.Inner.Fraction(edge)
	if err != nil {
		return 0, err
	}
	return math.Min(math.Max(f, 0), 1), nil
}

// NewPolicy builds the sizing policy described by the sizing config section.
func NewPolicy(cfg *config.Config) (domsvc.SizingPolicy, error) {
	s := cfg.Sizing
	var policy domsvc.SizingPolicy
	switch s.Policy {
	case "", "fixed":
		policy = FixedProbabilityPolicy{WinProb: s.WinProb, LossProb: s.LossProb, PayoffRatio: s.PayoffRatio}
	case "edge_scaled":
		policy = EdgeScaledPolicy{WinProb: s.WinProb, Scale: s.EdgeScale, PayoffRatio: s.PayoffRatio}
	default:
		return nil, fmt.Errorf("unknown sizing policy %q", s.Policy)
	}
	switch s.Clamp {
	case "", ClampNone:
		return policy, nil
	case ClampUnit:
		return ClampedPolicy{Inner: policy}, nil
	default:
		return nil, fmt.Errorf("unknown clamp mode %q", s.Clamp)
	}
}

var (
	_ domsvc.SizingPolicy = FixedProbabilityPolicy{}
	_ domsvc.SizingPolicy = EdgeScaledPolicy{}
	_ domsvc.SizingPolicy = ClampedPolicy{}
)

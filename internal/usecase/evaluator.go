package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/internal/services/pricing"
	"github.com/danghungithp/chungquyen-VN/internal/services/sizing"
)

// Evaluator prices one warrant and scores it against its market price.
type Evaluator struct {
	policy domsvc.SizingPolicy
	paths  int
	seed   *uint64
	now    func() time.Time
}

// NewEvaluator builds an Evaluator. A nil seed makes every run draw a fresh one.
func NewEvaluator(policy domsvc.SizingPolicy, paths int, seed *uint64) *Evaluator {
	return &Evaluator{policy: policy, paths: paths, seed: seed, now: time.Now}
}

// SeedFor derives a per-symbol seed from the base seed, so a batch result does
// not depend on worker scheduling. Returns nil when no base seed is configured.
func (e *Evaluator) SeedFor(symbol string) *uint64 {
	if e.seed == nil {
		return nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	s := *e.seed ^ h.Sum64()
	return &s
}

// Evaluate runs Monte-Carlo and closed-form pricing, delta, edge and sizing for one instrument.
// The Monte-Carlo price is the model price used for edge, direction and profit.
func (e *Evaluator) Evaluate(ctx context.Context, symbol string, in models.PricingInputs, marketPrice float64) (models.PricingResult, error) {
	res := models.PricingResult{Symbol: symbol, Inputs: in, MarketPrice: marketPrice}
	if err := in.Validate(); err != nil {
		return res, err
	}
	if !(marketPrice > 0) {
		return res, fmt.Errorf("%w: market price must be > 0, got %v", models.ErrInvalidParameter, marketPrice)
	}

	mc, err := pricing.MonteCarloPriceContext(ctx, in, pricing.MCOptions{Paths: e.paths, Seed: e.SeedFor(symbol)})
	if err != nil {
		return res, fmt.Errorf("monte carlo: %w", err)
	}
	cf, err := pricing.ClosedFormPrice(in, models.OptionCall)
	if err != nil {
		return res, fmt.Errorf("closed form: %w", err)
	}
	delta, err := pricing.Delta(in)
	if err != nil {
		return res, fmt.Errorf("delta: %w", err)
	}
	edge, err := sizing.Edge(marketPrice, mc.Price)
	if err != nil {
		return res, err
	}
	fraction, err := e.policy.Fraction(edge)
	if err != nil {
		return res, fmt.Errorf("sizing: %w", err)
	}

	res.MonteCarloPrice = mc.Price
	res.MonteCarloError = mc.StdError
	res.ClosedFormPrice = cf
	res.Delta = delta
	res.Edge = edge
	res.SizingFraction = fraction
	res.Action = sizing.Direction(mc.Price, marketPrice)
	res.ExpectedProfit = sizing.ExpectedProfit(mc.Price, marketPrice)
	res.EvaluatedAt = e.now()
	return res, nil
}

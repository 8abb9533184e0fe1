package pricing

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

const (
	// StepsPerYear fixes the simulation grid at one step per trading day.
	StepsPerYear = 252.0
	// DefaultPaths is used when MCOptions.Paths is zero.
	DefaultPaths = 20000

	cancelCheckEvery = 1024
)

// MCOptions controls a Monte-Carlo run. A nil Seed draws a fresh one, which is
// reported back in MCResult.Seed.
type MCOptions struct {
	Paths int
	Seed  *uint64
}

// Steps returns the number of daily steps for a horizon of T years.
func Steps(t float64) int {
	n := int(math.Round(t * StepsPerYear))
	if n < 1 {
		return 1
	}
	return n
}

// NewRNG returns a PCG generator derived from seed.
func NewRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0xda3e39cb94b95bdb))
}

// MonteCarloPrice simulates terminal prices under risk-neutral GBM and returns the
// discounted mean call payoff divided by the conversion ratio.
func MonteCarloPrice(in models.PricingInputs, opts MCOptions) (models.MCResult, error) {
	return MonteCarloPriceContext(context.Background(), in, opts)
}

// MonteCarloPriceContext is MonteCarloPrice with cancellation.
func MonteCarloPriceContext(ctx context.Context, in models.PricingInputs, opts MCOptions) (models.MCResult, error) {
	var out models.MCResult
	if err := in.Validate(); err != nil {
		return out, err
	}
	paths := opts.Paths
	if paths == 0 {
		paths = DefaultPaths
	}
	if paths < 2 {
		return out, fmt.Errorf("%w: need at least 2 paths, got %d", models.ErrInvalidParameter, paths)
	}
	seed := rand.Uint64()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	rng := NewRNG(seed)

	steps := Steps(in.Expiry)
	// dt is adjusted so that steps*dt == T exactly
	dt := in.Expiry / float64(steps)
	drift := (in.Rate - 0.5*in.Volatility*in.Volatility) * dt
	diffusion := in.Volatility * math.Sqrt(dt)

	var sum, sumSq float64
	for p := 0; p < paths; p++ {
		if p%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return out, err
			}
		}
		logS := 0.0
		for s := 0; s < steps; s++ {
			logS += drift + diffusion*rng.NormFloat64()
		}
		payoff := math.Max(in.Spot*math.Exp(logS)-in.Strike, 0)
		sum += payoff
		sumSq += payoff * payoff
	}

	n := float64(paths)
	mean := sum / n
	variance := (sumSq - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	scale := math.Exp(-in.Rate*in.Expiry) / in.ConversionRatio

	out.Price = mean * scale
	out.StdError = math.Sqrt(variance/n) * scale
	out.Paths = paths
	out.Steps = steps
	out.Seed = seed
	return out, nil
}

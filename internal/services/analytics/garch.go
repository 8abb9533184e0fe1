package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domsvc "github.com/danghungithp/chungquyen-VN/internal/domain/service"
	"github.com/danghungithp/chungquyen-VN/internal/services/features"
)

// returnScale conditions the likelihood surface; returns are fitted in percent.
const returnScale = 100.0

// maxPersistence keeps alpha+beta strictly below one.
const maxPersistence = 0.9999

// GARCHEstimator fits a constant-mean GARCH(1,1) by maximum likelihood.
type GARCHEstimator struct {
	MinReturns     int
	PeriodsPerYear float64
	MaxIterations  int
}

func NewGARCHEstimator(minReturns int, periodsPerYear float64) *GARCHEstimator {
	return &GARCHEstimator{MinReturns: minReturns, PeriodsPerYear: periodsPerYear, MaxIterations: 5000}
}

func (g *GARCHEstimator) Name() string { return "garch" }

// GARCHFit holds fitted parameters on the percent scale.
type GARCHFit struct {
	Mu, Omega, Alpha, Beta float64
	LogLikelihood          float64
	// Variance is the conditional variance series aligned with the input returns.
	Variance []float64
}

// Estimate returns the latest in-sample conditional volatility, annualized.
func (g *GARCHEstimator) Estimate(ctx context.Context, returns []float64) (models.VolatilityEstimate, error) {
	var out models.VolatilityEstimate
	fit, err := g.Fit(ctx, returns)
	if err != nil {
		return out, err
	}
	last := fit.Variance[len(fit.Variance)-1]
	daily := math.Sqrt(last) / returnScale
	out.Value = daily * math.Sqrt(g.PeriodsPerYear)
	out.AsOf = time.Now()
	out.P, out.Q = 1, 1
	out.Model = g.Name()
	return out, nil
}

// Fit runs the Nelder-Mead search over an unconstrained reparameterization.
func (g *GARCHEstimator) Fit(ctx context.Context, returns []float64) (*GARCHFit, error) {
	clean := features.CleanReturns(returns)
	if len(clean) < g.MinReturns || len(clean) < 3 {
		return nil, fmt.Errorf("%w: garch needs %d returns, got %d", models.ErrInsufficientData, g.MinReturns, len(clean))
	}
	x := make([]float64, len(clean))
	for i, r := range clean {
		x[i] = r * returnScale
	}
	mean, variance := stat.MeanVariance(x, nil)
	if !(variance > 0) {
		return nil, fmt.Errorf("%w: return series has zero variance", models.ErrNonConvergence)
	}

	nll := func(theta []float64) float64 {
		if ctx.Err() != nil {
			return math.Inf(1)
		}
		mu, omega, alpha, beta := unpack(theta)
		return conditionalVariance(x, mu, omega, alpha, beta, variance, nil)
	}

	init := pack(mean, variance*0.05, 0.05, 0.90)
	maxIter := g.MaxIterations
	if maxIter <= 0 {
		maxIter = 5000
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-9,
			Iterations: 100,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: nll}, init, settings, &optimize.NelderMead{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNonConvergence, err)
	}
	if serr := res.Status.Err(); serr != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNonConvergence, serr)
	}
	if math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		return nil, fmt.Errorf("%w: likelihood is not finite", models.ErrNonConvergence)
	}

	mu, omega, alpha, beta := unpack(res.X)
	fit := &GARCHFit{Mu: mu, Omega: omega, Alpha: alpha, Beta: beta, LogLikelihood: -res.F, Variance: make([]float64, len(x))}
	conditionalVariance(x, mu, omega, alpha, beta, variance, fit.Variance)
	last := fit.Variance[len(fit.Variance)-1]
	if !(last > 0) || math.IsInf(last, 0) {
		return nil, fmt.Errorf("%w: conditional variance %v", models.ErrNonConvergence, last)
	}
	return fit, nil
}

// conditionalVariance runs the GARCH(1,1) recursion from the sample variance and
// returns the Gaussian negative log-likelihood. When sigma2 is non-nil it is filled
// with the variance path.
func conditionalVariance(x []float64, mu, omega, alpha, beta, init float64, sigma2 []float64) float64 {
	const log2Pi = 1.8378770664093453
	s2 := init
	prevE := 0.0
	nll := 0.0
	for t, r := range x {
		if t > 0 {
			s2 = omega + alpha*prevE*prevE + beta*s2
		}
		if !(s2 > 0) {
			return math.Inf(1)
		}
		e := r - mu
		nll += 0.5 * (log2Pi + math.Log(s2) + e*e/s2)
		if sigma2 != nil {
			sigma2[t] = s2
		}
		prevE = e
	}
	return nll
}

// pack maps (mu, omega>0, alpha>=0, beta>=0, alpha+beta<1) onto R^4.
func pack(mu, omega, alpha, beta float64) []float64 {
	p := (alpha + beta) / maxPersistence
	share := alpha / (alpha + beta)
	return []float64{mu, math.Log(omega), logit(p), logit(share)}
}

func unpack(theta []float64) (mu, omega, alpha, beta float64) {
	mu = theta[0]
	omega = math.Exp(theta[1])
	p := maxPersistence * sigmoid(theta[2])
	share := sigmoid(theta[3])
	return mu, omega, p * share, p * (1 - share)
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func logit(p float64) float64 { return math.Log(p / (1 - p)) }

var _ domsvc.VolatilityEstimator = (*GARCHEstimator)(nil)

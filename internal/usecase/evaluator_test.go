package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

func scenarioInputs() models.PricingInputs {
	return models.PricingInputs{Spot: 100, Strike: 100, Volatility: 0.3, Rate: 0.05, Expiry: 30.0 / 252, ConversionRatio: 1}
}

func TestEvaluateScenario(t *testing.T) {
	e := testEvaluator(7)
	res, err := e.Evaluate(context.Background(), "CFPT2401", scenarioInputs(), 3)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(res.ClosedFormPrice-4.4189) > 1e-3 {
		t.Fatalf("closed form %v", res.ClosedFormPrice)
	}
	if math.Abs(res.MonteCarloPrice-res.ClosedFormPrice) > 4*res.MonteCarloError+0.05 {
		t.Fatalf("mc %v (se %v) far from closed form %v", res.MonteCarloPrice, res.MonteCarloError, res.ClosedFormPrice)
	}
	if math.Abs(res.Delta-0.5435) > 1e-3 {
		t.Fatalf("delta %v", res.Delta)
	}
	if res.Action != models.ActionLong {
		t.Fatalf("action %v", res.Action)
	}
	if math.Abs(res.ExpectedProfit-(res.MonteCarloPrice-3)) > 1e-12 {
		t.Fatalf("profit %v", res.ExpectedProfit)
	}
	if math.Abs(res.SizingFraction-0.1) > 1e-12 {
		t.Fatalf("fraction %v", res.SizingFraction)
	}
	if !res.EvaluatedAt.Equal(testNow) {
		t.Fatalf("evaluated at %v", res.EvaluatedAt)
	}
}

func TestEvaluateRejectsZeroMarketPrice(t *testing.T) {
	_, err := testEvaluator(1).Evaluate(context.Background(), "X", scenarioInputs(), 0)
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want invalid parameter, got %v", err)
	}
}

func TestEvaluateRejectsBadInputs(t *testing.T) {
	in := scenarioInputs()
	in.Expiry = 0
	_, err := testEvaluator(1).Evaluate(context.Background(), "X", in, 5)
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("want invalid parameter, got %v", err)
	}
}

func TestEvaluateSeededIsReproducible(t *testing.T) {
	a, err := testEvaluator(99).Evaluate(context.Background(), "AAA", scenarioInputs(), 3)
	if err != nil {
		t.Fatal(err)
	}
	b, err := testEvaluator(99).Evaluate(context.Background(), "AAA", scenarioInputs(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if a.MonteCarloPrice != b.MonteCarloPrice {
		t.Fatalf("seeded runs differ: %v vs %v", a.MonteCarloPrice, b.MonteCarloPrice)
	}
}

func TestSeedFor(t *testing.T) {
	e := testEvaluator(5)
	a, b := e.SeedFor("AAA"), e.SeedFor("BBB")
	if a == nil || b == nil {
		t.Fatal("nil seed with base configured")
	}
	if *a == *b {
		t.Fatal("symbols share a seed")
	}
	if again := e.SeedFor("AAA"); *again != *a {
		t.Fatal("seed not stable")
	}
	if NewEvaluator(nil, 10, nil).SeedFor("AAA") != nil {
		t.Fatal("want nil seed without base")
	}
}

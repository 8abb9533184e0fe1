package pricing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

func seed(v uint64) *uint64 { return &v }

func atm() models.PricingInputs {
	return models.PricingInputs{Spot: 100, Strike: 100, Volatility: 0.30, Rate: 0.05, Expiry: 30.0 / 252, ConversionRatio: 1}
}

func TestClosedFormReferenceValues(t *testing.T) {
	cases := []struct {
		name      string
		in        models.PricingInputs
		call, put float64
	}{
		{"hull", models.PricingInputs{Spot: 100, Strike: 100, Volatility: 0.2, Rate: 0.05, Expiry: 1, ConversionRatio: 1}, 10.450583572185565, 5.573526022256971},
		{"otm", models.PricingInputs{Spot: 50, Strike: 60, Volatility: 0.25, Rate: 0.03, Expiry: 0.5, ConversionRatio: 1}, 0.8834532301052747, 9.99016960628903},
		{"warrant", atm(), 4.418885662706863, 3.8254155996790686},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			call, err := ClosedFormPrice(tc.in, models.OptionCall)
			if err != nil {
				t.Fatal(err)
			}
			put, err := ClosedFormPrice(tc.in, models.OptionPut)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(call-tc.call) > 1e-9 || math.Abs(put-tc.put) > 1e-9 {
				t.Fatalf("call=%v put=%v, want %v %v", call, put, tc.call, tc.put)
			}
			// put-call parity
			parity := tc.in.Spot - tc.in.Strike*math.Exp(-tc.in.Rate*tc.in.Expiry)
			if math.Abs((call-put)-parity) > 1e-9 {
				t.Fatalf("parity broken: %v vs %v", call-put, parity)
			}
		})
	}
}

func TestConversionRatioDividesPrices(t *testing.T) {
	in := atm()
	base, _ := ClosedFormPrice(in, models.OptionCall)
	in.ConversionRatio = 4
	scaled, _ := ClosedFormPrice(in, models.OptionCall)
	if math.Abs(scaled-base/4) > 1e-12 {
		t.Fatalf("ratio 4 price = %v, want %v", scaled, base/4)
	}

	mc1, _ := MonteCarloPrice(atm(), MCOptions{Paths: 5000, Seed: seed(9)})
	mc4, _ := MonteCarloPrice(in, MCOptions{Paths: 5000, Seed: seed(9)})
	if math.Abs(mc4.Price-mc1.Price/4) > 1e-12 {
		t.Fatalf("MC ratio 4 price = %v, want %v", mc4.Price, mc1.Price/4)
	}

	d1, _ := Delta(atm())
	d4, _ := Delta(in)
	if d1 != d4 {
		t.Fatalf("delta must not depend on the ratio: %v vs %v", d1, d4)
	}
}

func TestInvalidInputsRejected(t *testing.T) {
	mutations := map[string]func(*models.PricingInputs){
		"zero expiry":     func(in *models.PricingInputs) { in.Expiry = 0 },
		"negative vol":    func(in *models.PricingInputs) { in.Volatility = -0.1 },
		"zero spot":       func(in *models.PricingInputs) { in.Spot = 0 },
		"negative strike": func(in *models.PricingInputs) { in.Strike = -1 },
		"zero ratio":      func(in *models.PricingInputs) { in.ConversionRatio = 0 },
		"nan spot":        func(in *models.PricingInputs) { in.Spot = math.NaN() },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := atm()
			mutate(&in)
			if _, err := ClosedFormPrice(in, models.OptionCall); !errors.Is(err, models.ErrInvalidParameter) {
				t.Fatalf("ClosedFormPrice err = %v", err)
			}
			if _, err := MonteCarloPrice(in, MCOptions{Paths: 10}); !errors.Is(err, models.ErrInvalidParameter) {
				t.Fatalf("MonteCarloPrice err = %v", err)
			}
			if _, err := Delta(in); !errors.Is(err, models.ErrInvalidParameter) {
				t.Fatalf("Delta err = %v", err)
			}
		})
	}
	if _, err := ClosedFormPrice(atm(), "straddle"); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("unknown option type err = %v", err)
	}
}

func TestScenarioShortDatedWarrant(t *testing.T) {
	in := atm()
	cf, err := ClosedFormPrice(in, models.OptionCall)
	if err != nil {
		t.Fatal(err)
	}
	mc, err := MonteCarloPrice(in, MCOptions{Paths: 20000, Seed: seed(42)})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(mc.Price-cf)/cf > 0.05 {
		t.Fatalf("MC %v not within 5%% of closed form %v", mc.Price, cf)
	}
	if mc.Steps != 30 || mc.Paths != 20000 || mc.Seed != 42 {
		t.Fatalf("metadata = %+v", mc)
	}
	delta, err := Delta(in)
	if err != nil {
		t.Fatal(err)
	}
	if delta < 0.52 || delta > 0.56 {
		t.Fatalf("delta = %v, want within [0.52, 0.56]", delta)
	}
}

func TestMonteCarloConvergesToClosedForm(t *testing.T) {
	in := atm()
	cf, _ := ClosedFormPrice(in, models.OptionCall)

	small, err := MonteCarloPrice(in, MCOptions{Paths: 2000, Seed: seed(7)})
	if err != nil {
		t.Fatal(err)
	}
	large, err := MonteCarloPrice(in, MCOptions{Paths: 200000, Seed: seed(8)})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range []models.MCResult{small, large} {
		if gap := math.Abs(r.Price - cf); gap > 4*r.StdError {
			t.Fatalf("N=%d: |MC-BS| = %v exceeds 4 standard errors (%v)", r.Paths, gap, r.StdError)
		}
	}
	// standard error shrinks as 1/sqrt(N): 100x paths -> ~10x smaller
	ratio := small.StdError / large.StdError
	if ratio < 7 || ratio > 13 {
		t.Fatalf("stderr ratio = %v, want ~10", ratio)
	}
}

func TestMonteCarloDeterministicAndNonNegative(t *testing.T) {
	in := atm()
	in.Strike = 300 // deep out of the money
	a, _ := MonteCarloPrice(in, MCOptions{Paths: 3000, Seed: seed(1)})
	b, _ := MonteCarloPrice(in, MCOptions{Paths: 3000, Seed: seed(1)})
	if a != b {
		t.Fatalf("same seed gave different results: %+v vs %+v", a, b)
	}
	if a.Price < 0 {
		t.Fatalf("price must be >= 0, got %v", a.Price)
	}

	c, _ := MonteCarloPrice(atm(), MCOptions{Paths: 3000})
	d, _ := MonteCarloPrice(atm(), MCOptions{Paths: 3000, Seed: seed(c.Seed)})
	if c.Price != d.Price {
		t.Fatalf("reported seed %d does not reproduce the run", c.Seed)
	}
}

func TestMonteCarloZeroVolatility(t *testing.T) {
	in := atm()
	in.Volatility = 0
	mc, err := MonteCarloPrice(in, MCOptions{Paths: 100, Seed: seed(3)})
	if err != nil {
		t.Fatal(err)
	}
	cf, _ := ClosedFormPrice(in, models.OptionCall)
	if math.Abs(mc.Price-cf) > 1e-9 || mc.StdError > 1e-9 {
		t.Fatalf("zero-vol MC = %+v, closed form %v", mc, cf)
	}
	if d, _ := Delta(in); d != 1 {
		t.Fatalf("zero-vol ATM delta with positive rate = %v, want 1", d)
	}
}

func TestMonteCarloCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := MonteCarloPriceContext(ctx, atm(), MCOptions{Paths: 5000, Seed: seed(1)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSteps(t *testing.T) {
	cases := map[float64]int{30.0 / 252: 30, 1: 252, 0.0001: 1, 0.5: 126}
	for T, want := range cases {
		if got := Steps(T); got != want {
			t.Errorf("Steps(%v) = %d, want %d", T, got, want)
		}
	}
}

func TestDeltaMonotoneInSpot(t *testing.T) {
	in := atm()
	prev := -1.0
	for s := 50.0; s <= 200; s += 2.5 {
		in.Spot = s
		d, err := Delta(in)
		if err != nil {
			t.Fatal(err)
		}
		if d < 0 || d > 1 {
			t.Fatalf("delta(%v) = %v outside [0,1]", s, d)
		}
		if d < prev {
			t.Fatalf("delta decreased at S=%v: %v < %v", s, d, prev)
		}
		prev = d
	}
}

func TestDirectQuote(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

	q, err := DirectQuote(QuoteInput{Spot: 100, Strike: 100, Expiry: "2025-04-01", RatePercent: 4.5, Sigma: 0.3, ConversionRatio: 2}, now)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(q.Inputs.Expiry-90.0/365) > 1e-12 || q.Inputs.Rate != 0.045 {
		t.Fatalf("inputs = %+v", q.Inputs)
	}
	undivided, _ := ClosedFormPrice(models.PricingInputs{Spot: 100, Strike: 100, Volatility: 0.3, Rate: 0.045, Expiry: 90.0 / 365, ConversionRatio: 1}, models.OptionCall)
	if math.Abs(q.Price-undivided/2) > 1e-12 {
		t.Fatalf("price = %v, want %v", q.Price, undivided/2)
	}

	expired, err := DirectQuote(QuoteInput{Spot: 100, Strike: 90, Expiry: "2024-12-01", RatePercent: 4.5, Sigma: 0.3, ConversionRatio: 1}, now)
	if err != nil {
		t.Fatal(err)
	}
	if expired.Inputs.Expiry != 1.0/252 {
		t.Fatalf("expired warrant T = %v, want one trading day", expired.Inputs.Expiry)
	}

	noDate, _ := DirectQuote(QuoteInput{Spot: 100, Strike: 100, Sigma: 0.3, ConversionRatio: 1, Type: models.OptionPut}, now)
	if noDate.Inputs.Expiry != DefaultHorizon || noDate.Delta >= 0 {
		t.Fatalf("default horizon put quote = %+v", noDate)
	}

	if _, err := DirectQuote(QuoteInput{Spot: 100, Strike: 100, Expiry: "01/04/2025", Sigma: 0.3, ConversionRatio: 1}, now); !errors.Is(err, models.ErrInvalidParameter) {
		t.Fatalf("bad date err = %v", err)
	}
}

// Package pricing values warrants under risk-neutral log-normal dynamics.
package pricing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

// NormCDF is the standard normal CDF shared by the closed-form price and delta.
func NormCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// D1D2 returns the Black-Scholes d1 and d2. ok is false when sigma*sqrt(T) is zero.
func D1D2(in models.PricingInputs) (d1, d2 float64, ok bool) {
	volT := in.Volatility * math.Sqrt(in.Expiry)
	if volT == 0 {
		return 0, 0, false
	}
	d1 = (math.Log(in.Spot/in.Strike) + (in.Rate+0.5*in.Volatility*in.Volatility)*in.Expiry) / volT
	return d1, d1 - volT, true
}

// ClosedFormPrice is the discounted-expectation price of a call or put, divided by
// the conversion ratio.
func ClosedFormPrice(in models.PricingInputs, kind models.OptionType) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	disc := math.Exp(-in.Rate * in.Expiry)
	d1, d2, ok := D1D2(in)

	var price float64
	switch kind {
	case models.OptionCall, "":
		if !ok {
			price = math.Max(in.Spot-in.Strike*disc, 0)
		} else {
			price = in.Spot*NormCDF(d1) - in.Strike*disc*NormCDF(d2)
		}
	case models.OptionPut:
		if !ok {
			price = math.Max(in.Strike*disc-in.Spot, 0)
		} else {
			price = in.Strike*disc*NormCDF(-d2) - in.Spot*NormCDF(-d1)
		}
	default:
		return 0, fmt.Errorf("%w: option type %q", models.ErrInvalidParameter, kind)
	}
	// rounding can leave deep out-of-the-money prices a hair below zero
	return math.Max(price, 0) / in.ConversionRatio, nil
}

// Delta is Phi(d1) for a call, using the same d1 and Phi as ClosedFormPrice.
// With zero volatility it is the step at the discounted strike.
func Delta(in models.PricingInputs) (float64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	d1, _, ok := D1D2(in)
	if ok {
		return NormCDF(d1), nil
	}
	fwdStrike := in.Strike * math.Exp(-in.Rate*in.Expiry)
	switch {
	case in.Spot > fwdStrike:
		return 1, nil
	case in.Spot < fwdStrike:
		return 0, nil
	default:
		return 0.5, nil
	}
}

package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	"github.com/danghungithp/chungquyen-VN/pkg/util"
)

// DefaultHorizon is the time to expiry used when no expiry date is given.
const DefaultHorizon = 30.0 / StepsPerYear

// QuoteInput are operator-entered warrant terms. RatePercent is in percent.
type QuoteInput struct {
	Spot            float64
	Strike          float64
	Expiry          string // YYYY-MM-DD, empty for the default horizon
	RatePercent     float64
	Sigma           float64
	ConversionRatio float64
	Type            models.OptionType
}

// Quote is a closed-form valuation for one warrant.
type Quote struct {
	Inputs models.PricingInputs `json:"inputs"`
	Type   models.OptionType    `json:"option_type"`
	Price  float64              `json:"price"`
	Delta  float64              `json:"delta"`
}

// YearsToExpiry converts an expiry date into years on a 365-day calendar, floored
// at one trading day. Expired dates get the floor as well.
func YearsToExpiry(expiry, today time.Time) float64 {
	days := util.DaysBetween(today, expiry)
	return math.Max(float64(days)/365, 1/StepsPerYear)
}

// DirectQuote prices a warrant from operator terms with the closed-form model.
func DirectQuote(q QuoteInput, now time.Time) (*Quote, error) {
	t := DefaultHorizon
	if q.Expiry != "" {
		exp, err := util.ParseDate(q.Expiry)
		if err != nil {
			return nil, fmt.Errorf("%w: expiry date: %v", models.ErrInvalidParameter, err)
		}
		t = YearsToExpiry(exp, now)
	}
	kind := q.Type
	if kind == "" {
		kind = models.OptionCall
	}
	in := models.PricingInputs{
		Spot:            q.Spot,
		Strike:          q.Strike,
		Volatility:      q.Sigma,
		Rate:            q.RatePercent / 100,
		Expiry:          t,
		ConversionRatio: q.ConversionRatio,
	}
	price, err := ClosedFormPrice(in, kind)
	if err != nil {
		return nil, err
	}
	delta, err := Delta(in)
	if err != nil {
		return nil, err
	}
	if kind == models.OptionPut {
		delta -= 1
	}
	return &Quote{Inputs: in, Type: kind, Price: price, Delta: delta}, nil
}

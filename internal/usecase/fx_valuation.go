package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
	domrepo "github.com/danghungithp/chungquyen-VN/internal/domain/repository"
)

// FXValuer converts portfolio amounts into another currency.
type FXValuer struct {
	market domrepo.MarketData
}

func NewFXValuer(market domrepo.MarketData) *FXValuer {
	return &FXValuer{market: market}
}

// Value converts the allocated total of pf from base into quote.
func (v *FXValuer) Value(ctx context.Context, pf *models.Portfolio, base, quote string) (*models.Valuation, error) {
	if pf == nil {
		return nil, fmt.Errorf("%w: nil portfolio", models.ErrInvalidParameter)
	}
	amount := decimal.NewFromFloat(pf.AllocatedTotal())
	if base == quote {
		return &models.Valuation{Base: base, Quote: quote, Rate: decimal.NewFromInt(1), Amount: amount}, nil
	}
	rate, err := v.market.FXRate(ctx, base, quote)
	if err != nil {
		return nil, fmt.Errorf("fx rate %s/%s: %w", base, quote, err)
	}
	if !(rate > 0) {
		return nil, fmt.Errorf("%w: fx rate %s/%s is %v", models.ErrExternalFetch, base, quote, rate)
	}
	r := decimal.NewFromFloat(rate)
	return &models.Valuation{Base: base, Quote: quote, Rate: r, Amount: amount.Mul(r).Round(4)}, nil
}

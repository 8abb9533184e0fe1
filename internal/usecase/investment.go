package usecase

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/danghungithp/chungquyen-VN/internal/domain/models"
)

// ParseInvestment strictly parses an operator-entered total investment.
// Anything that is not a positive decimal number with a finite, non-zero
// float64 value is rejected, so callers may convert it with Float64.
func ParseInvestment(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return decimal.Zero, fmt.Errorf("%w: total investment is required", models.ErrInvalidParameter)
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: total investment %q is not a number", models.ErrInvalidParameter, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: total investment must be > 0, got %s", models.ErrInvalidParameter, d)
	}
	if f, _ := d.Float64(); math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, fmt.Errorf("%w: total investment %q is out of range", models.ErrInvalidParameter, clean)
	}
	return d, nil
}

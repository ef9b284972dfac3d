package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Thresholds are the sell-classification boundaries as fractions in (0, 1].
type Thresholds struct {
	// Full minimum reduction treated as a complete exit.
	Full decimal.Decimal
	// HalfLow, HalfHigh inclusive band normalized to a 50% sell.
	HalfLow  decimal.Decimal
	HalfHigh decimal.Decimal
	// PartialMin minimum actionable reduction; anything below is noise.
	PartialMin decimal.Decimal
}

// NewThresholds validates ordering once at startup so classification never
// has to re-check at runtime.
func NewThresholds(full, halfLow, halfHigh, partialMin decimal.Decimal) (Thresholds, error) {
	one := decimal.NewFromInt(1)
	for name, v := range map[string]decimal.Decimal{
		"full": full, "half_low": halfLow, "half_high": halfHigh, "partial_min": partialMin,
	} {
		if v.LessThanOrEqual(decimal.Zero) || v.GreaterThan(one) {
			return Thresholds{}, fmt.Errorf("classifier threshold %s must be in (0, 1], got %s", name, v)
		}
	}
	if !partialMin.LessThan(halfLow) {
		return Thresholds{}, fmt.Errorf("partial_min %s must be below half_low %s", partialMin, halfLow)
	}
	if !halfLow.LessThan(halfHigh) {
		return Thresholds{}, fmt.Errorf("half_low %s must be below half_high %s", halfLow, halfHigh)
	}
	if !halfHigh.LessThan(full) {
		return Thresholds{}, fmt.Errorf("half_high %s must be below full %s", halfHigh, full)
	}
	return Thresholds{Full: full, HalfLow: halfLow, HalfHigh: halfHigh, PartialMin: partialMin}, nil
}

// DefaultThresholds mirrors exact exits at 95%+, half exits in the 45-55%
// band and anything from 10% up proportionally.
func DefaultThresholds() Thresholds {
	t, err := NewThresholds(
		decimal.NewFromFloat(0.95),
		decimal.NewFromFloat(0.45),
		decimal.NewFromFloat(0.55),
		decimal.NewFromFloat(0.10),
	)
	if err != nil {
		panic(err)
	}
	return t
}

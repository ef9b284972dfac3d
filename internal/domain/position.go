package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Position represents an owned holding of a tracked token.
// Base and stable assets are held as plain values on the portfolio,
// never as positions.
type Position struct {
	Token Token
	// Symbol venue trading symbol used for quoting and order submission.
	Symbol string
	// Size token units held.
	Size decimal.Decimal
	// EntryPrice volume-weighted average entry price.
	EntryPrice decimal.Decimal
	// MarkPrice last known market price, refreshed by the pricer.
	MarkPrice decimal.Decimal
	// MarkStale set when the last quote refresh failed and MarkPrice carries
	// the previous value.
	MarkStale bool
	OpenedAt  time.Time
}

// NewPosition constructs a position opened on first acquisition.
func NewPosition(token Token, symbol string, size, entryPrice decimal.Decimal, openedAt time.Time) (*Position, error) {
	if size.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position size must be greater than zero")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}
	return &Position{
		Token:      token,
		Symbol:     symbol,
		Size:       size,
		EntryPrice: entryPrice,
		MarkPrice:  entryPrice,
		OpenedAt:   openedAt,
	}, nil
}

// Value returns the market value of the position at the current mark price.
func (p *Position) Value() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Size.Mul(p.MarkPrice)
}

// UnrealizedPnL returns profit and loss against the average entry.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.MarkPrice.Sub(p.EntryPrice).Mul(p.Size)
}

// UnrealizedPnLPercent returns PnL as a fraction of cost basis.
func (p *Position) UnrealizedPnLPercent() decimal.Decimal {
	if p == nil || p.EntryPrice.IsZero() || p.Size.IsZero() {
		return decimal.Zero
	}
	cost := p.EntryPrice.Mul(p.Size)
	return p.UnrealizedPnL().Div(cost)
}

// Refresh updates the mark price. Stale quotes keep the previous price and
// flag the position so valuation consumers can tell.
func (p *Position) Refresh(price decimal.Decimal, stale bool) {
	if p == nil {
		return
	}
	if !stale && price.IsPositive() {
		p.MarkPrice = price
	}
	p.MarkStale = stale
}

// ApplyBuy increases the position and recomputes the weighted average entry.
func (p *Position) ApplyBuy(size, price decimal.Decimal) error {
	if size.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return errors.New("buy fill must have positive size and price")
	}
	oldCost := p.Size.Mul(p.EntryPrice)
	newCost := size.Mul(price)
	p.Size = p.Size.Add(size)
	p.EntryPrice = oldCost.Add(newCost).Div(p.Size)
	p.MarkPrice = price
	p.MarkStale = false
	return nil
}

// ApplySell reduces the position and returns the realized gain
// (negative for a loss). Selling more than held is an error.
func (p *Position) ApplySell(size, price decimal.Decimal) (decimal.Decimal, error) {
	if size.LessThanOrEqual(decimal.Zero) || price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, errors.New("sell fill must have positive size and price")
	}
	if size.GreaterThan(p.Size) {
		return decimal.Zero, errors.Errorf("sell size %s exceeds position size %s", size, p.Size)
	}
	realized := price.Sub(p.EntryPrice).Mul(size)
	p.Size = p.Size.Sub(size)
	p.MarkPrice = price
	p.MarkStale = false
	return realized, nil
}

// Closed reports whether the position has been fully unwound.
func (p *Position) Closed() bool {
	return p == nil || !p.Size.IsPositive()
}

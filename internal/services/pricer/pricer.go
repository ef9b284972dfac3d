package pricer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one observed market price. Stale is set when the price came from
// the cache because the venue was unreachable; consumers treat stale marks as
// display-only and never trade on them.
type Quote struct {
	Price decimal.Decimal
	AsOf  time.Time
	Stale bool
}

type Pricer interface {
	Price(ctx context.Context, symbol string) (Quote, error)
}

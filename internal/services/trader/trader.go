// Package trader submits order intents to a venue. The paper trader is the
// default; live venues are opt-in per config.
package trader

import (
	"context"

	"github.com/vadiminshakov/mirra/internal/domain"
)

// Trader executes one order intent. Amount semantics follow the intent: quote
// value for buys, base units for sells. Implementations must treat intent IDs
// as client order IDs so a resubmitted intent is deduplicated by the venue.
type Trader interface {
	SubmitOrder(ctx context.Context, intent domain.OrderIntent) (domain.OrderResult, error)
}

// Package transfer moves harvested value to external destinations. Paper mode
// journals the intent without touching a venue; live mode withdraws.
package transfer

import (
	"context"

	"github.com/vadiminshakov/mirra/internal/domain"
)

// Transferrer executes one external transfer intent. Implementations must be
// idempotent on intent ID: an ID that already went out is never sent again.
type Transferrer interface {
	Transfer(ctx context.Context, intent domain.TransferIntent) (domain.TransferResult, error)
}

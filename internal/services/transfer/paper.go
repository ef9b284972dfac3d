package transfer

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/storage/sweeps"
	"go.uber.org/zap"
)

// PaperTransferrer records the transfer in the sweep journal instead of
// moving funds. The portfolio still books the outflow, so paper runs show
// the same value trajectory as live ones.
type PaperTransferrer struct {
	journal *sweeps.Store
	l       *zap.Logger
}

func NewPaperTransferrer(journal *sweeps.Store, logger *zap.Logger) (*PaperTransferrer, error) {
	if journal == nil {
		return nil, errors.New("sweep journal is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaperTransferrer{journal: journal, l: logger}, nil
}

func (t *PaperTransferrer) Transfer(ctx context.Context, intent domain.TransferIntent) (domain.TransferResult, error) {
	if t.journal.Seen(intent.ID) {
		return domain.TransferResult{}, errors.Wrapf(domain.ErrDuplicate, "transfer %s", intent.ID)
	}

	// synthesized reference stands in for the venue's withdrawal id
	txRef := uuid.NewString()
	err := t.journal.Record(sweeps.Record{
		ID:          intent.ID,
		Destination: intent.Destination,
		Asset:       intent.Asset,
		Amount:      intent.Amount.String(),
		TxRef:       txRef,
		CreatedAt:   intent.CreatedAt,
	})
	if err != nil {
		return domain.TransferResult{}, errors.Wrap(err, "journal paper transfer")
	}

	t.l.Info("paper transfer recorded",
		zap.String("id", intent.ID),
		zap.String("destination", intent.Destination),
		zap.String("amount", intent.Amount.String()),
		zap.String("tx_ref", txRef))
	return domain.TransferResult{TxRef: txRef, Recorded: true}, nil
}

package transfer

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/storage/sweeps"
	"go.uber.org/zap"
)

// BinanceTransferrer withdraws through the Binance wallet API. The intent
// names the coin and its quantity in coin units, matching what the withdraw
// endpoint expects. Every transfer is journaled on submission; a journaled ID
// is never submitted twice even across restarts.
type BinanceTransferrer struct {
	client  *binance.Client
	journal *sweeps.Store
	l       *zap.Logger
}

func NewBinanceTransferrer(client *binance.Client, journal *sweeps.Store, logger *zap.Logger) (*BinanceTransferrer, error) {
	if journal == nil {
		return nil, errors.New("sweep journal is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceTransferrer{client: client, journal: journal, l: logger}, nil
}

func (t *BinanceTransferrer) Transfer(ctx context.Context, intent domain.TransferIntent) (domain.TransferResult, error) {
	if t.journal.Seen(intent.ID) {
		return domain.TransferResult{}, errors.Wrapf(domain.ErrDuplicate, "transfer %s", intent.ID)
	}

	resp, err := t.client.NewCreateWithdrawService().
		Coin(intent.Asset).
		Address(intent.Destination).
		Amount(intent.Amount.String()).
		WithdrawOrderID(intent.ID).
		Do(ctx)
	if err != nil {
		return domain.TransferResult{}, errors.Wrapf(err, "binance withdraw %s", intent.ID)
	}

	err = t.journal.Record(sweeps.Record{
		ID:          intent.ID,
		Destination: intent.Destination,
		Asset:       intent.Asset,
		Amount:      intent.Amount.String(),
		TxRef:       resp.ID,
		CreatedAt:   intent.CreatedAt,
	})
	if err != nil {
		// withdrawal went out but the journal write failed; surface loudly so
		// the operator reconciles before the next harvest
		t.l.Error("withdrawal sent but not journaled",
			zap.String("id", intent.ID),
			zap.String("tx_ref", resp.ID),
			zap.Error(err))
		return domain.TransferResult{}, errors.Wrap(err, "journal binance transfer")
	}

	t.l.Info("withdrawal submitted",
		zap.String("id", intent.ID),
		zap.String("destination", intent.Destination),
		zap.String("amount", intent.Amount.String()),
		zap.String("tx_ref", resp.ID))
	return domain.TransferResult{TxRef: resp.ID, Recorded: true}, nil
}

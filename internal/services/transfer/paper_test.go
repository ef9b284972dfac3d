package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/mirra/internal/domain"
	"github.com/vadiminshakov/mirra/internal/storage/sweeps"
	"go.uber.org/zap"
)

func newJournal(t *testing.T) *sweeps.Store {
	t.Helper()
	store, err := sweeps.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func intent(id string) domain.TransferIntent {
	return domain.TransferIntent{
		ID:          id,
		Destination: "0x1111111111111111111111111111111111111111",
		Asset:       "BTC",
		Amount:      decimal.RequireFromString("0.05"),
		CreatedAt:   time.Now(),
	}
}

func TestPaperTransferJournals(t *testing.T) {
	journal := newJournal(t)
	tr, err := NewPaperTransferrer(journal, zap.NewNop())
	require.NoError(t, err)

	result, err := tr.Transfer(context.Background(), intent("harvest-1-sweep-a"))
	require.NoError(t, err)
	require.True(t, result.Recorded)

	records, err := journal.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "harvest-1-sweep-a", records[0].ID)
	require.Equal(t, "0.05", records[0].Amount)
}

func TestPaperTransferDuplicateRejected(t *testing.T) {
	journal := newJournal(t)
	tr, err := NewPaperTransferrer(journal, zap.NewNop())
	require.NoError(t, err)

	_, err = tr.Transfer(context.Background(), intent("harvest-1-sweep-a"))
	require.NoError(t, err)

	_, err = tr.Transfer(context.Background(), intent("harvest-1-sweep-a"))
	require.True(t, errors.Is(err, domain.ErrDuplicate))

	records, err := journal.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestJournalSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := sweeps.NewStore(dir)
	require.NoError(t, err)
	tr, err := NewPaperTransferrer(store, zap.NewNop())
	require.NoError(t, err)
	_, err = tr.Transfer(context.Background(), intent("harvest-2-sweep-b"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sweeps.NewStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	require.True(t, reopened.Seen("harvest-2-sweep-b"), "journal must replay seen IDs on reopen")
}

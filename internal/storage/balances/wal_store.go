// Package balances persists wallet balance records and their audit history
// in a WAL. The latest balance per (wallet, token) pair and the set of
// processed transaction ids are recovered from the log on startup.
package balances

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/mirra/internal/domain"
)

const (
	DefaultDir = "./wal/balances"

	segmentThreshold = 1000
	maxSegments      = 100

	balanceKeyPrefix = "balance_"
	historyKeyPrefix = "history_"
)

// Store is a WAL-backed balance store.
type Store struct {
	mu        sync.RWMutex
	wal       *gowal.Wal
	records   map[string]domain.WalletBalanceRecord
	processed map[string]bool
}

func recordKey(wallet domain.Wallet, token domain.Token) string {
	return fmt.Sprintf("%s%s_%s", balanceKeyPrefix, wallet, token)
}

// NewStore opens (or creates) the WAL in dir and replays it to rebuild the
// current balance table and the processed-transaction set.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "balance_log_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init balance WAL")
	}

	s := &Store{
		wal:       wal,
		records:   make(map[string]domain.WalletBalanceRecord),
		processed: make(map[string]bool),
	}

	for msg := range wal.Iterator() {
		switch {
		case strings.HasPrefix(msg.Key, balanceKeyPrefix):
			var rec domain.WalletBalanceRecord
			if err := json.Unmarshal(msg.Value, &rec); err != nil {
				continue
			}
			s.records[recordKey(rec.Wallet, rec.Token)] = rec
		case strings.HasPrefix(msg.Key, historyKeyPrefix):
			var entry domain.BalanceHistoryEntry
			if err := json.Unmarshal(msg.Value, &entry); err != nil {
				continue
			}
			if entry.TxID != "" {
				s.processed[entry.TxID] = true
			}
		}
	}

	return s, nil
}

// PreviousBalance returns the last committed balance for the pair.
// Unseen pairs report a zero balance and ok=false.
func (s *Store) PreviousBalance(wallet domain.Wallet, token domain.Token) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(wallet, token)]
	if !ok {
		return decimal.Zero, false
	}
	return rec.Balance, true
}

// Seen reports whether the source transaction was already committed.
func (s *Store) Seen(txID string) bool {
	if txID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processed[txID]
}

// Commit durably appends the history entry and overwrites the balance record
// in one logical operation. Both writes must land; a failed write leaves the
// in-memory table untouched so the baseline never drifts from the log.
func (s *Store) Commit(entry domain.BalanceHistoryEntry) error {
	if s == nil || s.wal == nil {
		return errors.New("balance store is not initialized")
	}

	historyPayload, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "marshal history entry")
	}

	rec := domain.WalletBalanceRecord{
		Wallet:    entry.Wallet,
		Token:     entry.Token,
		Balance:   entry.Current,
		UpdatedAt: entry.Timestamp,
	}
	recPayload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal balance record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(idx, fmt.Sprintf("%s%s", historyKeyPrefix, entry.TxID), historyPayload); err != nil {
		return errors.Wrap(err, "append history entry")
	}
	if err := s.wal.Write(idx+1, recordKey(entry.Wallet, entry.Token), recPayload); err != nil {
		return errors.Wrap(err, "write balance record")
	}

	s.records[recordKey(entry.Wallet, entry.Token)] = rec
	if entry.TxID != "" {
		s.processed[entry.TxID] = true
	}
	return nil
}

// History returns up to limit most recent entries for the pair, newest first.
// Retention is bounded by WAL segment rotation.
func (s *Store) History(wallet domain.Wallet, token domain.Token, limit int) ([]domain.BalanceHistoryEntry, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("balance store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []domain.BalanceHistoryEntry
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, historyKeyPrefix) {
			continue
		}
		var entry domain.BalanceHistoryEntry
		if err := json.Unmarshal(msg.Value, &entry); err != nil {
			continue
		}
		if entry.Wallet != wallet || entry.Token != token {
			continue
		}
		entries = append(entries, entry)
	}

	// iterator yields oldest first
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

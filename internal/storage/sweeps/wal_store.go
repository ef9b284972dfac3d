// Package sweeps journals external transfers in a WAL so a restart never
// repeats a withdrawal that already left the account.
package sweeps

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	DefaultDir       = "./wal/sweeps"
	segmentThreshold = 1000
	maxSegments      = 100

	sweepKeyPrefix = "sweep_"
)

// Record is one journaled external transfer.
type Record struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Asset       string    `json:"asset"`
	Amount      string    `json:"amount"`
	TxRef       string    `json:"tx_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is a WAL-backed transfer journal.
type Store struct {
	mu   sync.RWMutex
	wal  *gowal.Wal
	seen map[string]bool
}

// NewStore opens the journal and replays it to rebuild the seen-ID set.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "sweep_log_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init sweep WAL")
	}

	s := &Store{wal: wal, seen: make(map[string]bool)}
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, sweepKeyPrefix) {
			continue
		}
		var rec Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode sweep record %s", msg.Key)
		}
		s.seen[rec.ID] = true
	}
	return s, nil
}

// Seen reports whether a transfer with this ID was already journaled.
func (s *Store) Seen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[id]
}

// Record journals the transfer. Duplicate IDs are rejected.
func (s *Store) Record(rec Record) error {
	if rec.ID == "" {
		return errors.New("sweep record requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[rec.ID] {
		return errors.Errorf("sweep %s already journaled", rec.ID)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal sweep record")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, sweepKeyPrefix+rec.ID, payload); err != nil {
		return errors.Wrap(err, "write sweep record")
	}
	s.seen[rec.ID] = true
	return nil
}

// List returns all journaled transfers in write order.
func (s *Store) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, sweepKeyPrefix) {
			continue
		}
		var rec Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode sweep record %s", msg.Key)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

// Package paperstate persists the paper trader's wallet so restarts resume
// with the same balances instead of re-seeding.
package paperstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const defaultStateDir = "./wal/paper"

// Store persists paper wallet state as a JSON file per scope.
type Store struct {
	path string
}

func stateDir() string {
	if dir := os.Getenv("MIRRA_PAPER_STATE_DIR"); dir != "" {
		return dir
	}
	return defaultStateDir
}

// NewStore creates a paper state store. Scope distinguishes independent
// simulations sharing one state dir.
func NewStore(scope string) (*Store, error) {
	dir := stateDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create paper state dir")
	}

	name := sanitizeScope(scope)
	if name == "" {
		name = "default"
	}
	return &Store{path: filepath.Join(dir, name+".json")}, nil
}

// State is the persisted wallet: asset symbol to balance, decimals as strings.
type State struct {
	Wallet    map[string]string `json:"wallet"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Load reads the wallet from disk. A missing or empty file returns nil.
func (s *Store) Load() (map[string]decimal.Decimal, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read paper state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode paper state")
	}

	wallet := make(map[string]decimal.Decimal, len(state.Wallet))
	for asset, raw := range state.Wallet {
		if raw == "" {
			wallet[asset] = decimal.Zero
			continue
		}
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s balance", asset)
		}
		wallet[asset] = parsed
	}
	return wallet, nil
}

// Save writes the wallet to disk atomically via a temp file.
func (s *Store) Save(wallet map[string]decimal.Decimal) error {
	if s == nil || s.path == "" {
		return nil
	}

	state := State{
		Wallet:    make(map[string]string, len(wallet)),
		UpdatedAt: time.Now(),
	}
	for asset, balance := range wallet {
		state.Wallet[asset] = balance.String()
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode paper state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write paper state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist paper state")
	}
	return nil
}

func sanitizeScope(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

package domain

import "github.com/pkg/errors"

var (
	// ErrLedgerUnavailable the balance store is unreachable; classification is
	// skipped for the notification so the running baseline never drifts.
	ErrLedgerUnavailable = errors.New("balance ledger unavailable")

	// ErrInvariantViolation a portfolio mutation failed reconciliation
	// (base + stable + positions no longer matches the observed total).
	ErrInvariantViolation = errors.New("portfolio invariant violation")

	// ErrHalted the risk coordinator rejected a mutation at the current halt level.
	ErrHalted = errors.New("mutation rejected by risk halt")

	// ErrDuplicate the idempotency key was already applied.
	ErrDuplicate = errors.New("duplicate operation")
)

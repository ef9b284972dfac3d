package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HaltLevel is one rung of the escalating risk-response ladder.
type HaltLevel int

const (
	// HaltNone normal operation, all agents active.
	HaltNone HaltLevel = iota
	// HaltSoft new entries suspended, existing positions still managed.
	HaltSoft
	// HaltSelectiveClose worst performers are closed to cut exposure.
	HaltSelectiveClose
	// HaltSystem full liquidation, all mutation access revoked until an
	// operator clears the halt.
	HaltSystem
)

func (h HaltLevel) String() string {
	switch h {
	case HaltSoft:
		return "soft_halt"
	case HaltSelectiveClose:
		return "selective_close"
	case HaltSystem:
		return "system_halt"
	default:
		return "none"
	}
}

// RiskState is the singleton risk posture owned by the risk coordinator.
type RiskState struct {
	Level             HaltLevel
	ConsecutiveLosses int
	// Drawdown fraction of portfolio value lost from the running peak, >= 0.
	Drawdown decimal.Decimal
	// RequiresManualReview set only on system halt and cleared only by an
	// explicit operator action. While set, every automated transition out of
	// the current level is suppressed.
	RequiresManualReview bool
	// ErrorCounts per-agent internal error counters feeding soft-halt escalation.
	ErrorCounts map[string]int
	LastChange  time.Time
}

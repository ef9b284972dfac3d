// Package portfolio holds the single owned portfolio and serializes every
// mutation through one exclusive section, so two agents never interleave a
// read-modify-write on the same totals.
package portfolio

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/mirra/internal/domain"
)

// State is the mutable portfolio: base asset value, stable asset value and
// the positions bucket. It is only ever touched inside Book.Update.
type State struct {
	// Base value of the volatile base asset, in quote terms.
	Base decimal.Decimal
	// Stable value of the stable asset.
	Stable decimal.Decimal

	positions map[domain.Token]*domain.Position

	LastRebalance time.Time
	LastHarvest   time.Time
	// RealizedGain cumulative realized profit since LastHarvest. Carried
	// forward until the harvesting engine consumes it.
	RealizedGain decimal.Decimal
	// Peak highest total value observed, for drawdown tracking.
	Peak decimal.Decimal
}

// NewState seeds a portfolio from bootstrap holdings.
func NewState(base, stable decimal.Decimal) *State {
	return &State{
		Base:      base,
		Stable:    stable,
		positions: make(map[domain.Token]*domain.Position),
	}
}

// Position returns the held position for the token, or nil.
func (s *State) Position(token domain.Token) *domain.Position {
	return s.positions[token]
}

// Upsert stores the position; fully closed positions are removed.
func (s *State) Upsert(pos *domain.Position) {
	if pos == nil {
		return
	}
	if pos.Closed() {
		delete(s.positions, pos.Token)
		return
	}
	s.positions[pos.Token] = pos
}

// Remove drops the position outright (dust sweeps, full liquidation).
func (s *State) Remove(token domain.Token) {
	delete(s.positions, token)
}

// PositionsValue returns the aggregate value of the positions bucket.
func (s *State) PositionsValue() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range s.positions {
		sum = sum.Add(p.Value())
	}
	return sum
}

// Total returns base + stable + positions. The book enforces that no value
// appears or disappears across a mutation beyond its declared delta.
func (s *State) Total() decimal.Decimal {
	return s.Base.Add(s.Stable).Add(s.PositionsValue())
}

func (s *State) clone() *State {
	cp := *s
	cp.positions = make(map[domain.Token]*domain.Position, len(s.positions))
	for k, v := range s.positions {
		pv := *v
		cp.positions[k] = &pv
	}
	return &cp
}

// Snapshot is an immutable view handed to agents and the status surface.
type Snapshot struct {
	Base           decimal.Decimal
	Stable         decimal.Decimal
	PositionsValue decimal.Decimal
	Total          decimal.Decimal
	Positions      []domain.Position
	LastRebalance  time.Time
	LastHarvest    time.Time
	RealizedGain   decimal.Decimal
	Peak           decimal.Decimal
	TakenAt        time.Time
}

// BasePct returns the base share of total, zero when the portfolio is empty.
func (s Snapshot) BasePct() decimal.Decimal { return pct(s.Base, s.Total) }

// StablePct returns the stable share of total.
func (s Snapshot) StablePct() decimal.Decimal { return pct(s.Stable, s.Total) }

// PositionsPct returns the positions share of total.
func (s Snapshot) PositionsPct() decimal.Decimal { return pct(s.PositionsValue, s.Total) }

func pct(part, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return part.Div(total)
}

// Mutation is one read-decide-write against the portfolio.
type Mutation struct {
	// Agent name for error attribution.
	Agent string
	// Key idempotency key; a key already applied is rejected with ErrDuplicate
	// so a redelivered notification or tick cannot apply twice.
	Key string
	// ExpectedDelta how much total value the mutation may legitimately create
	// or destroy: zero for internal conversions, negative for external sweeps.
	ExpectedDelta decimal.Decimal
	// Apply mutates the state. It runs under the exclusive section and must
	// not perform external calls.
	Apply func(*State) error
}

// Book owns the portfolio state. One mutation fully commits before the next
// begins; failed mutations leave the state untouched.
type Book struct {
	mu        sync.RWMutex
	state     *State
	applied   map[string]bool
	tolerance decimal.Decimal
}

// NewBook wraps the seeded state. Tolerance absorbs decimal rounding in
// conversions; anything beyond it is treated as a reconciliation failure.
func NewBook(state *State, tolerance decimal.Decimal) *Book {
	if state == nil {
		state = NewState(decimal.Zero, decimal.Zero)
	}
	if state.positions == nil {
		state.positions = make(map[domain.Token]*domain.Position)
	}
	state.Peak = state.Total()
	return &Book{
		state:     state,
		applied:   make(map[string]bool),
		tolerance: tolerance,
	}
}

// Update applies the mutation atomically. The mutation runs against a copy;
// the copy replaces the live state only after the value-conservation check
// passes, so an invariant violation cannot corrupt the book.
func (b *Book) Update(m Mutation) error {
	if m.Apply == nil {
		return errors.New("mutation without apply func")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if m.Key != "" && b.applied[m.Key] {
		return errors.Wrapf(domain.ErrDuplicate, "agent %s key %s", m.Agent, m.Key)
	}

	next := b.state.clone()
	preTotal := next.Total()

	if err := m.Apply(next); err != nil {
		return errors.Wrapf(err, "mutation by %s", m.Agent)
	}

	postTotal := next.Total()
	if next.Base.IsNegative() || next.Stable.IsNegative() || postTotal.IsNegative() {
		return errors.Wrapf(domain.ErrInvariantViolation, "agent %s drove a bucket negative (base=%s stable=%s total=%s)",
			m.Agent, next.Base, next.Stable, postTotal)
	}

	drift := postTotal.Sub(preTotal).Sub(m.ExpectedDelta).Abs()
	if drift.GreaterThan(b.tolerance) {
		return errors.Wrapf(domain.ErrInvariantViolation,
			"agent %s: total moved %s, declared %s, drift %s",
			m.Agent, postTotal.Sub(preTotal), m.ExpectedDelta, drift)
	}

	if postTotal.GreaterThan(next.Peak) {
		next.Peak = postTotal
	}

	b.state = next
	if m.Key != "" {
		b.applied[m.Key] = true
	}
	return nil
}

// Refresh updates mark prices without idempotency or value-conservation
// checks: repricing legitimately moves the total.
func (b *Book) Refresh(prices map[domain.Token]decimal.Decimal, stale map[domain.Token]bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for token, pos := range b.state.positions {
		price, ok := prices[token]
		if !ok {
			continue
		}
		pos.Refresh(price, stale[token])
	}
	if total := b.state.Total(); total.GreaterThan(b.state.Peak) {
		b.state.Peak = total
	}
}

// Snapshot returns a consistent copy of the current state.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := b.state
	positions := make([]domain.Position, 0, len(st.positions))
	for _, p := range st.positions {
		positions = append(positions, *p)
	}
	return Snapshot{
		Base:           st.Base,
		Stable:         st.Stable,
		PositionsValue: st.PositionsValue(),
		Total:          st.Total(),
		Positions:      positions,
		LastRebalance:  st.LastRebalance,
		LastHarvest:    st.LastHarvest,
		RealizedGain:   st.RealizedGain,
		Peak:           st.Peak,
		TakenAt:        time.Now(),
	}
}

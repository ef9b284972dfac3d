package pricer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CachedPricer wraps a venue pricer with a circuit breaker and a last-good
// cache. While the venue is down the last observed quote is served with the
// Stale flag set, so downstream consumers keep valuing positions instead of
// erroring every tick.
type CachedPricer struct {
	inner   Pricer
	breaker *gobreaker.CircuitBreaker
	maxAge  time.Duration

	mu   sync.RWMutex
	last map[string]Quote

	l *zap.Logger
}

// NewCachedPricer wraps inner. maxAge bounds how long a cached quote is served
// as a stale fallback; beyond it the venue error is surfaced.
func NewCachedPricer(inner Pricer, maxAge time.Duration, logger *zap.Logger) *CachedPricer {
	if logger == nil {
		logger = zap.NewNop()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "pricer",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &CachedPricer{
		inner:   inner,
		breaker: breaker,
		maxAge:  maxAge,
		last:    make(map[string]Quote),
		l:       logger,
	}
}

func (p *CachedPricer) Price(ctx context.Context, symbol string) (Quote, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.inner.Price(ctx, symbol)
	})
	if err == nil {
		quote := result.(Quote)
		p.mu.Lock()
		p.last[symbol] = quote
		p.mu.Unlock()
		return quote, nil
	}

	p.mu.RLock()
	cached, ok := p.last[symbol]
	p.mu.RUnlock()
	if ok && time.Since(cached.AsOf) <= p.maxAge {
		p.l.Warn("serving stale quote",
			zap.String("symbol", symbol),
			zap.Duration("age", time.Since(cached.AsOf)),
			zap.Error(err))
		cached.Stale = true
		return cached, nil
	}

	return Quote{}, errors.Wrapf(err, "no fresh or cached price for %s", symbol)
}

package polygon

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker is a three-state circuit breaker. Consecutive infrastructure
// failures open the circuit; after the cooldown a single half-open probe
// is admitted. Which errors count as infrastructure is injected.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	consecutive int
	openedAt    time.Time
	probing     bool

	threshold int
	cooldown  time.Duration
	isInfra   func(error) bool
	logger    arbor.ILogger
	now       func() time.Time
}

// NewBreaker creates a breaker with the given threshold and cooldown.
// isInfra classifies errors; nil uses IsInfrastructure.
func NewBreaker(threshold int, cooldown time.Duration, isInfra func(error) bool, logger arbor.ILogger) *Breaker {
	if isInfra == nil {
		isInfra = IsInfrastructure
	}
	return &Breaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
		isInfra:   isInfra,
		logger:    logger,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed. When the circuit is open it
// returns a circuit-open error until the cooldown elapses, then admits
// exactly one half-open probe.
func (b *Breaker) Allow(endpoint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return newError(KindCircuitOpen, endpoint, "circuit open, retry after %s", b.cooldown-b.now().Sub(b.openedAt))
		}
		b.transition(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return newError(KindCircuitOpen, endpoint, "half-open probe in flight")
		}
		b.probing = true
		return nil
	}
	return nil
}

// Record reports the outcome of an admitted call. Successes close the
// circuit and zero the counter; infrastructure failures count toward the
// threshold (or re-open a half-open circuit); business failures are
// ignored.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == BreakerHalfOpen {
			b.transition(BreakerClosed)
		}
		b.consecutive = 0
		b.probing = false
		return
	}

	if !b.isInfra(err) {
		b.probing = false
		return
	}

	switch b.state {
	case BreakerClosed:
		b.consecutive++
		if b.consecutive >= b.threshold {
			b.openedAt = b.now()
			b.transition(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.openedAt = b.now()
		b.probing = false
		b.transition(BreakerOpen)
	}
}

// State returns the current breaker state for observability.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.logger != nil {
		b.logger.Warn().
			Str("from", from.String()).
			Str("to", to.String()).
			Int("consecutive_failures", b.consecutive).
			Msg("Circuit breaker state change")
	}
}

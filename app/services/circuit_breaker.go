package services

import (
	"sync"
	"time"

	"github.com/amirphl/Uwabami/utils"
)

// BreakerState represents the current state of a circuit breaker
type BreakerState int

const (
	// BreakerClosed allows all requests through while tracking failures
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects all requests immediately
	BreakerOpen
	// BreakerHalfOpen allows a single probe request through
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// BreakerSettings configures one provider's breaker
type BreakerSettings struct {
	ErrorThresholdPercent int           // failure ratio that opens the breaker
	MinRequestVolume      int           // calls required in the window before opening
	ResetTimeout          time.Duration // open -> half-open delay
	Window                time.Duration // rolling window width
}

// DefaultBreakerSettings returns the production defaults
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ErrorThresholdPercent: utils.BreakerErrorThresholdPercent,
		MinRequestVolume:      utils.BreakerMinRequestVolume,
		ResetTimeout:          utils.BreakerResetTimeout,
		Window:                60 * time.Second,
	}
}

type breakerOutcome struct {
	at time.Time
	ok bool
}

// CircuitBreaker is a rolling-window failure-rate gate. It opens once the
// failure percentage inside the window crosses the threshold with at least
// MinRequestVolume calls observed, and lets a single probe through after the
// reset timeout.
type CircuitBreaker struct {
	mu       sync.Mutex
	settings BreakerSettings
	state    BreakerState
	outcomes []breakerOutcome
	openedAt time.Time

	now func() time.Time // injected for tests
}

// NewCircuitBreaker creates a breaker in the closed state
func NewCircuitBreaker(settings BreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{
		settings: settings,
		state:    BreakerClosed,
		now:      time.Now,
	}
}

// Allow checks whether a request is permitted. It returns ErrProviderUnavailable
// when the breaker is open and the reset timeout has not elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.settings.ResetTimeout {
			cb.state = BreakerHalfOpen
			return nil
		}
		return ErrProviderUnavailable
	case BreakerHalfOpen:
		// the probe is in flight; concurrent callers wait their turn
		return ErrProviderUnavailable
	}

	return nil
}

// Record reports the outcome of a permitted request
func (cb *CircuitBreaker) Record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()

	switch cb.state {
	case BreakerHalfOpen:
		if success {
			cb.state = BreakerClosed
			cb.outcomes = cb.outcomes[:0]
		} else {
			cb.state = BreakerOpen
			cb.openedAt = now
		}
		return

	case BreakerClosed:
		cb.outcomes = append(cb.outcomes, breakerOutcome{at: now, ok: success})
		cb.prune(now)

		total := len(cb.outcomes)
		if total < cb.settings.MinRequestVolume {
			return
		}
		failures := 0
		for _, o := range cb.outcomes {
			if !o.ok {
				failures++
			}
		}
		if failures*100 >= cb.settings.ErrorThresholdPercent*total {
			cb.state = BreakerOpen
			cb.openedAt = now
		}

	case BreakerOpen:
		// late results from calls admitted before the trip; nothing to do
	}
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker back to closed. Used by manual admin intervention.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.outcomes = cb.outcomes[:0]
	cb.openedAt = time.Time{}
}

// prune drops outcomes that fell out of the rolling window
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.settings.Window)
	kept := cb.outcomes[:0]
	for _, o := range cb.outcomes {
		if o.at.After(cutoff) {
			kept = append(kept, o)
		}
	}
	cb.outcomes = kept
}

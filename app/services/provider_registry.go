package services

import (
	"sync"
)

// ProviderRegistry owns the per-provider circuit breakers and health trackers.
// Entries are created lazily on first access so providers added at runtime
// need no registration step.
type ProviderRegistry struct {
	mu              sync.Mutex
	breakers        map[uint]*CircuitBreaker
	trackers        map[uint]*HealthTracker
	breakerSettings BreakerSettings
	healthWindow    int
}

// NewProviderRegistry creates an empty registry with the given defaults
func NewProviderRegistry(breakerSettings BreakerSettings, healthWindow int) *ProviderRegistry {
	return &ProviderRegistry{
		breakers:        make(map[uint]*CircuitBreaker),
		trackers:        make(map[uint]*HealthTracker),
		breakerSettings: breakerSettings,
		healthWindow:    healthWindow,
	}
}

// Breaker returns the circuit breaker for a provider, creating it if needed
func (r *ProviderRegistry) Breaker(providerID uint) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[providerID]
	if !ok {
		cb = NewCircuitBreaker(r.breakerSettings)
		r.breakers[providerID] = cb
	}
	return cb
}

// Tracker returns the health tracker for a provider, creating it if needed
func (r *ProviderRegistry) Tracker(providerID uint) *HealthTracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trackers[providerID]
	if !ok {
		t = NewHealthTracker(r.healthWindow)
		r.trackers[providerID] = t
	}
	return t
}

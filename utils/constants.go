package utils

import (
	"time"
)

// Activation lifecycle constants
const (
	// DefaultActivationTTL is how long a purchased number stays usable (20 minutes)
	DefaultActivationTTL = 20 * time.Minute

	// StuckReservationThreshold is the age after which a pending activation is
	// considered stuck and eligible for reconciliation (10 minutes)
	StuckReservationThreshold = 10 * time.Minute

	// InitialPollDelay is the wait before the first status poll of a fresh number
	InitialPollDelay = 2 * time.Second

	// TransientPollCooldown delays the next poll after a transient provider error
	TransientPollCooldown = 10 * time.Second

	// PollJitterMax is the maximum random jitter added to a scheduled poll
	PollJitterMax = 500 * time.Millisecond
)

// Provider call constants
const (
	// ProviderCallTimeout is the hard timeout on any outbound provider call
	ProviderCallTimeout = 45 * time.Second

	// BreakerErrorThresholdPercent opens the breaker once the failure ratio
	// in the rolling window reaches this percentage
	BreakerErrorThresholdPercent = 50

	// BreakerMinRequestVolume is the minimum number of calls in the window
	// before the breaker is allowed to open
	BreakerMinRequestVolume = 5

	// BreakerResetTimeout is how long an open breaker waits before half-open
	BreakerResetTimeout = 30 * time.Second

	// OperatorWildcard substitutes a missing {operator} template token
	OperatorWildcard = "any"
)

// Currency and cache constants
const (
	USDCurrency = "USD"

	// HealthSnapshotCacheKey is the redis key prefix for provider health snapshots
	HealthSnapshotCacheKey = "provider_health"

	// ReconcilerLockKey is the redis key for the reconciliation worker mutex
	ReconcilerLockKey = "reconciler_lock"
)

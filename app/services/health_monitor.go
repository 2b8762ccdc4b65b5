package services

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/amirphl/Uwabami/models"
	"github.com/amirphl/Uwabami/utils"
)

// HealthSnapshot is the aggregate view of a provider's recent call history
type HealthSnapshot struct {
	ProviderID    uint            `json:"provider_id"`
	ProviderName  string          `json:"provider_name"`
	SampleCount   int             `json:"sample_count"`
	SuccessRate   decimal.Decimal `json:"success_rate"`
	AvgLatencyMs  decimal.Decimal `json:"avg_latency_ms"`
	BreakerState  string          `json:"breaker_state"`
	LastError     string          `json:"last_error,omitempty"`
	LastCheckedAt time.Time       `json:"last_checked_at"`
}

type healthSample struct {
	ok      bool
	latency time.Duration
}

// HealthTracker keeps a fixed-size ring of call outcomes for one provider
type HealthTracker struct {
	mu        sync.Mutex
	samples   []healthSample
	next      int
	filled    bool
	lastError string
	lastAt    time.Time
}

// NewHealthTracker creates a tracker holding the last windowSize outcomes
func NewHealthTracker(windowSize int) *HealthTracker {
	if windowSize <= 0 {
		windowSize = 50
	}
	return &HealthTracker{samples: make([]healthSample, windowSize)}
}

// Record adds one call outcome to the ring
func (h *HealthTracker) Record(ok bool, latency time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.samples[h.next] = healthSample{ok: ok, latency: latency}
	h.next = (h.next + 1) % len(h.samples)
	if h.next == 0 {
		h.filled = true
	}
	h.lastAt = utils.UTCNow()
	if err != nil {
		h.lastError = err.Error()
	} else if ok {
		h.lastError = ""
	}
}

// Snapshot aggregates the ring into success rate and mean latency. An empty
// tracker reports a full success rate so fresh providers are not starved.
func (h *HealthTracker) Snapshot() (successRate, avgLatencyMs decimal.Decimal, sampleCount int, lastError string, lastAt time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := h.next
	if h.filled {
		count = len(h.samples)
	}
	if count == 0 {
		return decimal.NewFromInt(1), decimal.Zero, 0, h.lastError, h.lastAt
	}

	successes := 0
	var totalLatency time.Duration
	for i := 0; i < count; i++ {
		if h.samples[i].ok {
			successes++
		}
		totalLatency += h.samples[i].latency
	}

	successRate = decimal.NewFromInt(int64(successes)).Div(decimal.NewFromInt(int64(count)))
	avgLatencyMs = decimal.NewFromInt(totalLatency.Milliseconds()).Div(decimal.NewFromInt(int64(count)))
	return successRate, avgLatencyMs, count, h.lastError, h.lastAt
}

// ProviderHealth pairs a provider with its computed selection score
type ProviderHealth struct {
	Provider *models.Provider
	Snapshot HealthSnapshot
	Score    decimal.Decimal
}

var scoreLatencyFloor = decimal.NewFromInt(1)

// Score computes the weighted selection score for one provider. Higher is
// better. Latency is normalized to 100ms units and floored at 1 so fast
// providers do not divide by ~0; priority 1 is the strongest.
func Score(p *models.Provider, successRate, avgLatencyMs decimal.Decimal) decimal.Decimal {
	priority := p.Priority
	if priority < 1 {
		priority = 1
	}

	numerator := successRate.Mul(p.Weight).Div(decimal.NewFromInt(int64(priority)))

	latencyFactor := avgLatencyMs.Div(decimal.NewFromInt(100))
	if latencyFactor.LessThan(scoreLatencyFloor) {
		latencyFactor = scoreLatencyFloor
	}
	denominator := latencyFactor.Mul(p.CostMultiplier())

	return numerator.Div(denominator)
}

// RankProviders orders candidates by descending score. Ties break on lower
// effective price so equally healthy providers compete on cost, then on name
// for a stable order.
func RankProviders(candidates []ProviderHealth) []ProviderHealth {
	ranked := make([]ProviderHealth, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].Score.Equal(ranked[j].Score) {
			return ranked[i].Score.GreaterThan(ranked[j].Score)
		}
		ci := ranked[i].Provider.CostMultiplier()
		cj := ranked[j].Provider.CostMultiplier()
		if !ci.Equal(cj) {
			return ci.LessThan(cj)
		}
		return ranked[i].Provider.Name < ranked[j].Provider.Name
	})

	return ranked
}

// HealthMonitor aggregates per-provider trackers and caches the latest
// snapshot set in redis so the HTTP surface can serve health reads without
// touching the trackers.
type HealthMonitor struct {
	registry    *ProviderRegistry
	redisClient *redis.Client
	snapshotTTL time.Duration
}

// NewHealthMonitor creates a health monitor backed by the given registry
func NewHealthMonitor(registry *ProviderRegistry, redisClient *redis.Client, snapshotTTL time.Duration) *HealthMonitor {
	return &HealthMonitor{
		registry:    registry,
		redisClient: redisClient,
		snapshotTTL: snapshotTTL,
	}
}

// Evaluate computes fresh health snapshots and scores for the given providers
func (m *HealthMonitor) Evaluate(providers []*models.Provider) []ProviderHealth {
	out := make([]ProviderHealth, 0, len(providers))
	for _, p := range providers {
		tracker := m.registry.Tracker(p.ID)
		breaker := m.registry.Breaker(p.ID)

		successRate, avgLatencyMs, sampleCount, lastError, lastAt := tracker.Snapshot()

		out = append(out, ProviderHealth{
			Provider: p,
			Snapshot: HealthSnapshot{
				ProviderID:    p.ID,
				ProviderName:  p.Name,
				SampleCount:   sampleCount,
				SuccessRate:   successRate,
				AvgLatencyMs:  avgLatencyMs,
				BreakerState:  breaker.State().String(),
				LastError:     lastError,
				LastCheckedAt: lastAt,
			},
			Score: Score(p, successRate, avgLatencyMs),
		})
	}
	return out
}

// PublishSnapshots caches the snapshot set in redis. Failures are logged and
// swallowed; the cache is a convenience, not a dependency.
func (m *HealthMonitor) PublishSnapshots(ctx context.Context, health []ProviderHealth) {
	if m.redisClient == nil {
		return
	}

	snapshots := make([]HealthSnapshot, 0, len(health))
	for _, h := range health {
		snapshots = append(snapshots, h.Snapshot)
	}

	payload, err := json.Marshal(snapshots)
	if err != nil {
		log.Printf("health monitor: marshal snapshots: %v", err)
		return
	}

	if err := m.redisClient.Set(ctx, utils.HealthSnapshotCacheKey, payload, m.snapshotTTL).Err(); err != nil {
		log.Printf("health monitor: cache snapshots: %v", err)
	}
}

// CachedSnapshots returns the last published snapshot set, if any
func (m *HealthMonitor) CachedSnapshots(ctx context.Context) ([]HealthSnapshot, error) {
	if m.redisClient == nil {
		return nil, nil
	}

	payload, err := m.redisClient.Get(ctx, utils.HealthSnapshotCacheKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshots []HealthSnapshot
	if err := json.Unmarshal(payload, &snapshots); err != nil {
		return nil, err
	}
	return snapshots, nil
}

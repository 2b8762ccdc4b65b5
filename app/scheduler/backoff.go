package scheduler

import (
	"math/rand"
	"time"

	"github.com/amirphl/Uwabami/utils"
)

// backoffTier holds the poll delays for one age band of an activation
type backoffTier struct {
	maxAge time.Duration
	delays []time.Duration
}

// backoffTiers widens the poll cadence as the activation ages. Fresh numbers
// get their SMS within seconds, so they poll tightly; numbers nearing the TTL
// almost never resolve and poll lazily. Within a tier the delays cycle by
// poll count.
var backoffTiers = []backoffTier{
	{maxAge: 5 * time.Minute, delays: []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}},
	{maxAge: 10 * time.Minute, delays: []time.Duration{4 * time.Second, 6 * time.Second, 8 * time.Second}},
	{maxAge: 15 * time.Minute, delays: []time.Duration{6 * time.Second, 8 * time.Second, 10 * time.Second}},
	{maxAge: 20 * time.Minute, delays: []time.Duration{8 * time.Second, 10 * time.Second, 12 * time.Second}},
}

// lateTierDelay is the flat cadence once an activation outlives every tier
const lateTierDelay = 15 * time.Second

// NextPollDelay computes the wait before the next status poll from the
// activation's age and how many polls it has already had
func NextPollDelay(age time.Duration, pollCount int) time.Duration {
	for _, tier := range backoffTiers {
		if age < tier.maxAge {
			return tier.delays[pollCount%len(tier.delays)]
		}
	}
	return lateTierDelay
}

// withJitter spreads simultaneous polls apart so a batch of activations
// created together does not hammer a provider in lockstep
func withJitter(delay time.Duration) time.Duration {
	return delay + time.Duration(rand.Int63n(int64(utils.PollJitterMax)))
}

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/amirphl/Uwabami/utils"
)

func TestNextPollDelayTiers(t *testing.T) {
	cases := []struct {
		age       time.Duration
		pollCount int
		want      time.Duration
	}{
		{30 * time.Second, 0, 2 * time.Second},
		{30 * time.Second, 1, 4 * time.Second},
		{30 * time.Second, 2, 6 * time.Second},
		{30 * time.Second, 3, 2 * time.Second}, // cycles back
		{7 * time.Minute, 0, 4 * time.Second},
		{7 * time.Minute, 2, 8 * time.Second},
		{12 * time.Minute, 0, 6 * time.Second},
		{17 * time.Minute, 1, 10 * time.Second},
		{25 * time.Minute, 0, 15 * time.Second},
		{25 * time.Minute, 7, 15 * time.Second}, // flat past the last tier
	}

	for _, tc := range cases {
		got := NextPollDelay(tc.age, tc.pollCount)
		assert.Equal(t, tc.want, got, "age=%s pollCount=%d", tc.age, tc.pollCount)
	}
}

func TestNextPollDelayWidensWithAge(t *testing.T) {
	young := NextPollDelay(time.Minute, 0)
	old := NextPollDelay(18*time.Minute, 0)
	assert.Less(t, young, old)
}

func TestWithJitterBounds(t *testing.T) {
	base := 5 * time.Second
	for i := 0; i < 100; i++ {
		jittered := withJitter(base)
		assert.GreaterOrEqual(t, jittered, base)
		assert.Less(t, jittered, base+utils.PollJitterMax)
	}
}

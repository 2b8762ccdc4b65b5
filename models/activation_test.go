package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActivationTransitions(t *testing.T) {
	allowed := []struct{ from, to ActivationStatus }{
		{ActivationStatusPending, ActivationStatusActive},
		{ActivationStatusPending, ActivationStatusCancelled},
		{ActivationStatusPending, ActivationStatusExpired},
		{ActivationStatusPending, ActivationStatusFailed},
		{ActivationStatusActive, ActivationStatusReceived},
		{ActivationStatusActive, ActivationStatusCancelled},
		{ActivationStatusActive, ActivationStatusExpired},
		{ActivationStatusActive, ActivationStatusFailed},
		{ActivationStatusReceived, ActivationStatusCompleted},
		{ActivationStatusReceived, ActivationStatusExpired},
		{ActivationStatusCancelled, ActivationStatusRefunded},
		{ActivationStatusExpired, ActivationStatusRefunded},
		{ActivationStatusFailed, ActivationStatusRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to ActivationStatus }{
		{ActivationStatusPending, ActivationStatusReceived},
		{ActivationStatusPending, ActivationStatusCompleted},
		{ActivationStatusActive, ActivationStatusCompleted},
		{ActivationStatusReceived, ActivationStatusCancelled},
		{ActivationStatusReceived, ActivationStatusRefunded},
		{ActivationStatusCompleted, ActivationStatusRefunded},
		{ActivationStatusCompleted, ActivationStatusActive},
		{ActivationStatusRefunded, ActivationStatusActive},
		{ActivationStatusCancelled, ActivationStatusActive},
		{ActivationStatusExpired, ActivationStatusReceived},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestActivationStatusPredicates(t *testing.T) {
	assert.False(t, ActivationStatusPending.IsTerminal())
	assert.False(t, ActivationStatusActive.IsTerminal())
	assert.False(t, ActivationStatusReceived.IsTerminal())
	assert.True(t, ActivationStatusCompleted.IsTerminal())
	assert.True(t, ActivationStatusRefunded.IsTerminal())

	assert.True(t, ActivationStatusCancelled.IsRefundable())
	assert.True(t, ActivationStatusExpired.IsRefundable())
	assert.True(t, ActivationStatusFailed.IsRefundable())
	assert.False(t, ActivationStatusCompleted.IsRefundable())
	assert.False(t, ActivationStatusRefunded.IsRefundable())

	assert.True(t, ActivationStatusActive.IsPollable())
	assert.True(t, ActivationStatusReceived.IsPollable())
	assert.False(t, ActivationStatusPending.IsPollable())
	assert.False(t, ActivationStatusCompleted.IsPollable())
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled}

	allowed := map[Status][]Status{
		StatusPending:    {StatusProcessing, StatusPaid, StatusCancelled},
		StatusProcessing: {StatusPaid, StatusFailed, StatusPending},
		StatusFailed:     {StatusPending},
		StatusPaid:       {},
		StatusCancelled:  {},
	}

	for from, targets := range allowed {
		legal := make(map[Status]bool, len(targets))
		for _, target := range targets {
			legal[target] = true
		}
		for _, to := range all {
			assert.Equal(t, legal[to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusPaid.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
}

func TestStatus_Public(t *testing.T) {
	assert.Equal(t, StatusPending, StatusProcessing.Public(), "the claim substate must never leak")
	assert.Equal(t, StatusPending, StatusPending.Public())
	assert.Equal(t, StatusPaid, StatusPaid.Public())
	assert.Equal(t, StatusFailed, StatusFailed.Public())
	assert.Equal(t, StatusCancelled, StatusCancelled.Public())
}

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusPaid, StatusFailed, StatusCancelled} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("refunded").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestMethod_IsValid(t *testing.T) {
	assert.True(t, MethodStripe.IsValid())
	assert.True(t, MethodManual.IsValid())
	assert.False(t, Method("paypal").IsValid())
}

package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowedTransitions(t *testing.T) {
	assert.True(t, Allowed(StateProcessingPayment, StateSettled))
	assert.True(t, Allowed(StateProcessingPayment, StateFailed))
	assert.True(t, Allowed(StateProcessingPayment, StateExpired))
	assert.True(t, Allowed(StateProcessingPayment, StateCanceled))
	assert.True(t, Allowed(StateSettled, StateFulfilled))

	// Settlement is never rolled back.
	assert.False(t, Allowed(StateSettled, StateFailed))
	assert.False(t, Allowed(StateSettled, StateExpired))
	assert.False(t, Allowed(StateFulfilled, StateSettled))

	// Terminal failures are dead ends until the invoice is replaced.
	assert.False(t, Allowed(StateExpired, StateSettled))
	assert.False(t, Allowed(StateFailed, StateProcessingPayment))
}

func TestTerminalAndDeletable(t *testing.T) {
	for _, s := range []State{StateFulfilled, StateFailed, StateExpired, StateCanceled} {
		assert.True(t, s.Terminal(), string(s))
	}
	assert.False(t, StateProcessingPayment.Terminal())
	assert.False(t, StateSettled.Terminal())

	for _, s := range []State{StateFailed, StateExpired, StateCanceled} {
		assert.True(t, s.Deletable(), string(s))
	}
	assert.False(t, StateFulfilled.Deletable(), "paid invoices keep blocking checkouts")
	assert.False(t, StateSettled.Deletable())
	assert.False(t, StateProcessingPayment.Deletable())
}

func TestNewOrderID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		id, err := NewOrderID()
		assert.NoError(t, err)
		assert.Len(t, id, orderIDLength)
		for _, r := range id {
			assert.Contains(t, orderIDAlphabet, string(r))
		}
		seen[id] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

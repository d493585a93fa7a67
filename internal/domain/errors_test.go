package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewOrderNotFound("t1", "o1")
	assert.Equal(t, "ORDER_NOT_FOUND: order not found (tenant=t1, order=o1)", err.Error())

	err = NewInsufficientStock("t1", "milk", 100, 250)
	assert.Equal(t, "INSUFFICIENT_STOCK: stock 100 is less than requested 250 (tenant=t1, item=milk)", err.Error())
}

func TestPredicates_MatchWrapped(t *testing.T) {
	wrapped := fmt.Errorf("advance: %w", NewInvalidTransition("t1", "o1", StatusQueued, StatusCompleted))

	assert.True(t, IsInvalidTransition(wrapped))
	assert.False(t, IsImmutableOrder(wrapped))
	assert.Equal(t, ErrCodeInvalidTransition, CodeOf(wrapped))
	assert.False(t, IsRetryable(wrapped))
}

func TestPredicates_NilAndForeign(t *testing.T) {
	assert.False(t, IsOrderNotFound(nil))
	assert.False(t, IsOrderNotFound(errors.New("boom")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("boom")))
}

func TestClassifyStoreError(t *testing.T) {
	t.Run("deadline becomes store unavailable", func(t *testing.T) {
		err := ClassifyStoreError("save order", context.DeadlineExceeded)
		require.Error(t, err)
		assert.True(t, IsStoreUnavailable(err))
		assert.True(t, IsRetryable(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("domain errors pass through", func(t *testing.T) {
		in := NewTenantMismatch("t1", "menu item", "latte")
		err := ClassifyStoreError("lookup", in)
		assert.Same(t, in, err)
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		cause := errors.New("constraint failed")
		err := ClassifyStoreError("save order", cause)
		assert.False(t, IsStoreUnavailable(err))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "save order: constraint failed", err.Error())
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, ClassifyStoreError("noop", nil))
	})
}

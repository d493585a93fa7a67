package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulfillmentKey_Deterministic(t *testing.T) {
	k1, err := FulfillmentKey("t1", "o1", "completed")
	require.NoError(t, err)
	k2, err := FulfillmentKey("t1", "o1", "completed")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestFulfillmentKey_Distinct(t *testing.T) {
	base := MustFulfillmentKey("t1", "o1", "completed")

	assert.NotEqual(t, base, MustFulfillmentKey("t2", "o1", "completed"))
	assert.NotEqual(t, base, MustFulfillmentKey("t1", "o2", "completed"))
	assert.NotEqual(t, base, MustFulfillmentKey("t1", "o1", "cancelled"))
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainFulfillment, data), hashWithDomain(DomainTransition, data))
}

func TestTransitionKey(t *testing.T) {
	a, err := TransitionKey("t1", "o1", "queued", "in_progress", 2)
	require.NoError(t, err)
	b, err := TransitionKey("t1", "o1", "queued", "in_progress", 3)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

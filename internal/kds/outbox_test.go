package kds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutbox_CoalescesPerTenant(t *testing.T) {
	o := newOutbox()

	assert.True(t, o.put(View{Tenant: "a", Version: 1}))
	assert.True(t, o.put(View{Tenant: "b", Version: 1}))
	assert.True(t, o.put(View{Tenant: "a", Version: 3}))
	assert.True(t, o.put(View{Tenant: "a", Version: 2})) // stale, ignored
	assert.Equal(t, 2, o.len())

	got := o.drain()
	assert.Equal(t, []View{{Tenant: "a", Version: 3}, {Tenant: "b", Version: 1}}, got)
	assert.Equal(t, 0, o.len())
	assert.Empty(t, o.drain())
}

func TestOutbox_SignalCoalesces(t *testing.T) {
	o := newOutbox()
	o.put(View{Tenant: "a", Version: 1})
	o.put(View{Tenant: "a", Version: 2})

	select {
	case <-o.wait():
	default:
		t.Fatal("expected a signal")
	}
	select {
	case <-o.wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestOutbox_ClosedRejectsPut(t *testing.T) {
	o := newOutbox()
	o.put(View{Tenant: "a", Version: 1})
	o.close()

	assert.False(t, o.put(View{Tenant: "a", Version: 2}))
	assert.Equal(t, []View{{Tenant: "a", Version: 1}}, o.drain())
}

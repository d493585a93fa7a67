package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New("")

	m.OrderSubmitted("cafe-a")
	m.OrderSubmitted("cafe-a")
	m.Fulfillment("cafe-a", "applied")
	m.SetStock("cafe-a", "milk", -150)
	m.LowStock("cafe-a", "milk")
	m.SetQueueDepth("cafe-a", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersSubmitted.WithLabelValues("cafe-a")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fulfillments.WithLabelValues("cafe-a", "applied")))
	assert.Equal(t, -150.0, testutil.ToFloat64(m.StockLevel.WithLabelValues("cafe-a", "milk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LowStockWarnings.WithLabelValues("cafe-a", "milk")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("cafe-a")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderSubmitted("t")
		m.Transition("t", "ready")
		m.Compaction("t")
		m.StoreRetry("save")
		m.TrackStore("save")(time.Now())
		m.HTTPRequest("GET", "/", 200, time.Millisecond)
		m.KDSNotified("t", "memory")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("galley")
	m.Compaction("cafe-a")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `galley_position_compactions_total{tenant="cafe-a"} 1`)
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New("galley")
		New("galley")
	})
}

package kds

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/galley/internal/domain"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "kds.cafe-a", RoutingKey("cafe-a"))
}

func TestAMQPSink_PublishesView(t *testing.T) {
	url := os.Getenv("GALLEY_TEST_AMQP_URL")
	if url == "" {
		t.Skip("GALLEY_TEST_AMQP_URL not set")
	}

	exchange := "galley.kds.test"
	sink, err := DialAMQP(url, exchange)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ch, err := conn.Channel()
	require.NoError(t, err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, RoutingKey("cafe-a"), exchange, false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	view := View{Tenant: "cafe-a", Version: 3, Tickets: []Ticket{{OrderID: "order-1", Rank: 1, Status: domain.StatusQueued}}}
	require.NoError(t, sink.Publish(ctx, view))

	select {
	case d := <-deliveries:
		var got View
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, view.Tenant, got.Tenant)
		assert.Equal(t, view.Version, got.Version)
		assert.Equal(t, "order-1", got.Tickets[0].OrderID)
		assert.Equal(t, "cafe-a", d.Headers["tenant_id"])
	case <-ctx.Done():
		t.Fatal("view not delivered")
	}
}

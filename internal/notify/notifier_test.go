package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPublisher(client, nil)
}

func TestPublishDeliversEnvelopeInOrder(t *testing.T) {
	publisher := newTestPublisher(t)
	tenantID := uuid.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	envelopes, err := publisher.Subscribe(ctx, tenantID)
	require.NoError(t, err)

	type payload struct {
		SKU string `json:"sku"`
	}
	require.NoError(t, publisher.Publish(ctx, tenantID, "stock-updated", payload{SKU: "WM-BLK"}))
	require.NoError(t, publisher.Publish(ctx, tenantID, "low-stock", payload{SKU: "TS-RED"}))

	first := <-envelopes
	assert.Equal(t, "stock-updated", first.Event)
	var got payload
	require.NoError(t, json.Unmarshal(first.Payload, &got))
	assert.Equal(t, "WM-BLK", got.SKU)

	second := <-envelopes
	assert.Equal(t, "low-stock", second.Event)
}

func TestPublishIsScopedToTenant(t *testing.T) {
	publisher := newTestPublisher(t)
	tenantA := uuid.New()
	tenantB := uuid.New()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	envelopes, err := publisher.Subscribe(ctx, tenantA)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(ctx, tenantB, "stock-updated", map[string]string{"sku": "OTHER"}))
	require.NoError(t, publisher.Publish(ctx, tenantA, "stock-updated", map[string]string{"sku": "MINE"}))

	env := <-envelopes
	var got map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "MINE", got["sku"])

	select {
	case extra, ok := <-envelopes:
		if ok {
			t.Fatalf("unexpected extra envelope: %+v", extra)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPublishWithoutClientIsNoop(t *testing.T) {
	publisher := NewPublisher(nil, nil)
	require.NoError(t, publisher.Publish(context.Background(), uuid.New(), "stock-updated", nil))

	_, err := publisher.Subscribe(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestChannelFor(t *testing.T) {
	tenantID := uuid.MustParse("6a1f0b88-9f1e-4ed6-95a4-13f9f0e7f9a1")
	assert.Equal(t, "tenant:6a1f0b88-9f1e-4ed6-95a4-13f9f0e7f9a1:events", ChannelFor(tenantID))
}

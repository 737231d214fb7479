package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	statsCalls int32
	lowCalls   int32
	topCalls   int32
	graphCalls int32
}

func (r *stubReader) Stats(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	atomic.AddInt32(&r.statsCalls, 1)
	return Stats{
		TrackedVariants:       4,
		UnitsOnHand:           120,
		LowStockCount:         1,
		OpenPurchaseOrders:    2,
		OutstandingOrderValue: decimal.RequireFromString("99.50"),
	}, nil
}

func (r *stubReader) LowStock(ctx context.Context, tenantID uuid.UUID, limit int) ([]LowStockItem, error) {
	atomic.AddInt32(&r.lowCalls, 1)
	return []LowStockItem{{
		SKU:               "WM-BLK",
		QuantityOnHand:    2,
		LowStockThreshold: 5,
		IncomingQuantity:  10,
		EffectiveStock:    12,
		NeedsAlert:        false,
	}}, nil
}

func (r *stubReader) TopSellers(ctx context.Context, tenantID uuid.UUID, window time.Duration, limit int) ([]TopSeller, error) {
	atomic.AddInt32(&r.topCalls, 1)
	return []TopSeller{{SKU: "TS-RED", UnitsSold: 40, SaleCount: 12}}, nil
}

func (r *stubReader) MovementGraph(ctx context.Context, tenantID uuid.UUID, days int) ([]GraphPoint, error) {
	atomic.AddInt32(&r.graphCalls, 1)
	return []GraphPoint{
		{Date: "2026-08-31", Purchase: 10, Sale: 3},
		{Date: "2026-09-01", Return: 2, Adjustment: 1},
	}, nil
}

func newCachedService(t *testing.T, reader ReaderPort) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(reader, NewCache(client, time.Minute), nil)
}

func TestStatsServedFromCacheOnSecondCall(t *testing.T) {
	reader := &stubReader{}
	service := newCachedService(t, reader)
	tenantID := uuid.New()

	first, err := service.Stats(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), first.TrackedVariants)
	assert.True(t, first.OutstandingOrderValue.Equal(decimal.RequireFromString("99.50")))

	second, err := service.Stats(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, first.UnitsOnHand, second.UnitsOnHand)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.statsCalls), "second call must hit the cache")
}

func TestNilCacheFallsThroughToReader(t *testing.T) {
	reader := &stubReader{}
	service := NewService(reader, nil, nil)
	tenantID := uuid.New()

	_, err := service.Stats(context.Background(), tenantID)
	require.NoError(t, err)
	_, err = service.Stats(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&reader.statsCalls))
}

func TestLowStockRoundTripsThroughCache(t *testing.T) {
	reader := &stubReader{}
	service := newCachedService(t, reader)
	tenantID := uuid.New()

	items, err := service.LowStock(context.Background(), tenantID, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "WM-BLK", items[0].SKU)
	assert.Equal(t, int64(12), items[0].EffectiveStock)
	assert.False(t, items[0].NeedsAlert)

	again, err := service.LowStock(context.Background(), tenantID, 50)
	require.NoError(t, err)
	assert.Equal(t, items, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.lowCalls))
}

func TestTopSellers(t *testing.T) {
	reader := &stubReader{}
	service := newCachedService(t, reader)

	sellers, err := service.TopSellers(context.Background(), uuid.New(), 10)
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, int64(40), sellers[0].UnitsSold)
}

func TestMovementGraphServedFromCache(t *testing.T) {
	reader := &stubReader{}
	service := newCachedService(t, reader)
	tenantID := uuid.New()

	graph, err := service.MovementGraph(context.Background(), tenantID, 7)
	require.NoError(t, err)
	require.Len(t, graph, 2)
	assert.Equal(t, int64(10), graph[0].Purchase)
	assert.Equal(t, int64(2), graph[1].Return)

	again, err := service.MovementGraph(context.Background(), tenantID, 7)
	require.NoError(t, err)
	assert.Equal(t, graph, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.graphCalls))

	_, err = service.MovementGraph(context.Background(), tenantID, 30)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&reader.graphCalls), "window size is part of the cache key")
}

func TestBuildGraphZeroFillsQuietDays(t *testing.T) {
	today := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	totals := map[string]map[string]int64{
		"2026-08-31": {"purchase": 12, "sale": 4},
		"2026-09-01": {"return": 1},
	}

	points := buildGraph(today, 3, totals)
	require.Len(t, points, 3)
	assert.Equal(t, GraphPoint{Date: "2026-08-30"}, points[0])
	assert.Equal(t, GraphPoint{Date: "2026-08-31", Purchase: 12, Sale: 4}, points[1])
	assert.Equal(t, GraphPoint{Date: "2026-09-01", Return: 1}, points[2])
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "dashboard:stats:abc", BuildKey("stats", "abc"))
}

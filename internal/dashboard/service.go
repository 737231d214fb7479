package dashboard

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const topSellerWindow = 30 * 24 * time.Hour

// ReaderPort exposes the aggregate queries the service needs.
type ReaderPort interface {
	Stats(ctx context.Context, tenantID uuid.UUID) (Stats, error)
	LowStock(ctx context.Context, tenantID uuid.UUID, limit int) ([]LowStockItem, error)
	TopSellers(ctx context.Context, tenantID uuid.UUID, window time.Duration, limit int) ([]TopSeller, error)
	MovementGraph(ctx context.Context, tenantID uuid.UUID, days int) ([]GraphPoint, error)
}

// Service serves dashboard reads through the cache. Concurrent misses for the
// same key collapse onto one loader call.
type Service struct {
	reader ReaderPort
	cache  *Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewService constructs the dashboard service.
func NewService(reader ReaderPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, cache: cache, logger: logger}
}

// Stats returns the tenant summary.
func (s *Service) Stats(ctx context.Context, tenantID uuid.UUID) (Stats, error) {
	key := BuildKey("stats", tenantID.String())
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var stats Stats
		err := s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (interface{}, error) {
			return s.reader.Stats(ctx, tenantID)
		})
		return stats, err
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

// LowStock returns variants at or below threshold.
func (s *Service) LowStock(ctx context.Context, tenantID uuid.UUID, limit int) ([]LowStockItem, error) {
	key := BuildKey("lowstock", tenantID.String(), strconv.Itoa(limit))
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var items []LowStockItem
		err := s.cache.FetchJSON(ctx, key, &items, func(ctx context.Context) (interface{}, error) {
			return s.reader.LowStock(ctx, tenantID, limit)
		})
		return items, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]LowStockItem), nil
}

// MovementGraph returns per-day movement totals over the trailing window.
func (s *Service) MovementGraph(ctx context.Context, tenantID uuid.UUID, days int) ([]GraphPoint, error) {
	key := BuildKey("movementgraph", tenantID.String(), strconv.Itoa(days))
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var points []GraphPoint
		err := s.cache.FetchJSON(ctx, key, &points, func(ctx context.Context) (interface{}, error) {
			return s.reader.MovementGraph(ctx, tenantID, days)
		})
		return points, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]GraphPoint), nil
}

// TopSellers returns the best selling variants over the trailing 30 days.
func (s *Service) TopSellers(ctx context.Context, tenantID uuid.UUID, limit int) ([]TopSeller, error) {
	key := BuildKey("topsellers", tenantID.String(), strconv.Itoa(limit))
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		var sellers []TopSeller
		err := s.cache.FetchJSON(ctx, key, &sellers, func(ctx context.Context) (interface{}, error) {
			return s.reader.TopSellers(ctx, tenantID, topSellerWindow, limit)
		})
		return sellers, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]TopSeller), nil
}

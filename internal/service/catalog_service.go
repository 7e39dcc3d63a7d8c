package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
)

type statusStore interface {
	List(ctx context.Context) ([]models.RepairStatus, error)
}

type relayDirectoryStore interface {
	List(ctx context.Context) ([]models.RelayPoint, error)
	GetByID(ctx context.Context, id string) (*models.RelayPoint, error)
}

type catalogCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

const (
	cacheKeyStatuses = "catalog:repair_statuses"
	cacheKeyRelays   = "catalog:relay_points"
)

// CatalogService serves the read-mostly directory data behind a Redis cache:
// the repair status catalog and the relay-point directory.
type CatalogService struct {
	statuses statusStore
	relays   relayDirectoryStore
	cache    catalogCache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewCatalogService constructs the service. The cache may be nil.
func NewCatalogService(statuses statusStore, relays relayDirectoryStore, cache catalogCache, ttl time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CatalogService{statuses: statuses, relays: relays, cache: cache, ttl: ttl, logger: logger}
}

// Statuses returns the repair status catalog.
func (s *CatalogService) Statuses(ctx context.Context) ([]models.RepairStatus, error) {
	var cached []models.RepairStatus
	if s.cacheGet(ctx, cacheKeyStatuses, &cached) {
		return cached, nil
	}

	statuses, err := s.statuses.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status catalog")
	}
	s.cacheSet(ctx, cacheKeyStatuses, statuses)
	return statuses, nil
}

// RelayPoints returns the active relay-point directory.
func (s *CatalogService) RelayPoints(ctx context.Context) ([]models.RelayPoint, error) {
	var cached []models.RelayPoint
	if s.cacheGet(ctx, cacheKeyRelays, &cached) {
		return cached, nil
	}

	relays, err := s.relays.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load relay points")
	}
	s.cacheSet(ctx, cacheKeyRelays, relays)
	return relays, nil
}

func (s *CatalogService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
	}
	return false
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

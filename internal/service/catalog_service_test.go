package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fixdrop-app/fixdrop-api/internal/models"
	appErrors "github.com/fixdrop-app/fixdrop-api/pkg/errors"
)

type statusStoreStub struct {
	statuses []models.RepairStatus
	calls    int
}

func (s *statusStoreStub) List(ctx context.Context) ([]models.RepairStatus, error) {
	s.calls++
	return s.statuses, nil
}

type relayDirectoryStub struct {
	relays []models.RelayPoint
	calls  int
}

func (s *relayDirectoryStub) List(ctx context.Context) ([]models.RelayPoint, error) {
	s.calls++
	return s.relays, nil
}

func (s *relayDirectoryStub) GetByID(ctx context.Context, id string) (*models.RelayPoint, error) {
	for _, r := range s.relays {
		if r.ID == id {
			copy := r
			return &copy, nil
		}
	}
	return nil, errors.New("not found")
}

type cacheStub struct {
	entries map[string][]byte
	getErr  error
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func TestCatalogStatusesCached(t *testing.T) {
	statuses := &statusStoreStub{statuses: []models.RepairStatus{
		{Code: models.StatusSubmitted, Label: "Submitted", Position: 1},
		{Code: models.StatusReceived, Label: "Received", Position: 2},
	}}
	cache := newCacheStub()
	svc := NewCatalogService(statuses, &relayDirectoryStub{}, cache, time.Minute, nil)

	first, err := svc.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 1, statuses.calls)

	// second read comes from the cache
	second, err := svc.Statuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, statuses.calls)
}

func TestCatalogRelayPointsCacheFailureFallsThrough(t *testing.T) {
	relays := &relayDirectoryStub{relays: []models.RelayPoint{{ID: "relay-1", Name: "Corner Shop", Active: true}}}
	cache := newCacheStub()
	cache.getErr = errors.New("redis down")
	svc := NewCatalogService(&statusStoreStub{}, relays, cache, time.Minute, nil)

	list, err := svc.RelayPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, relays.calls)
}

func TestCatalogWithoutCache(t *testing.T) {
	statuses := &statusStoreStub{statuses: []models.RepairStatus{{Code: models.StatusSubmitted}}}
	svc := NewCatalogService(statuses, &relayDirectoryStub{}, nil, time.Minute, nil)

	_, err := svc.Statuses(context.Background())
	require.NoError(t, err)
	_, err = svc.Statuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, statuses.calls)
}

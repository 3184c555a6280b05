package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/teacher-transfer-api/internal/models"
	"github.com/noah-isme/teacher-transfer-api/pkg/cache"
	appErrors "github.com/noah-isme/teacher-transfer-api/pkg/errors"
)

const defaultListingTTL = 2 * time.Minute

var openVacanciesKey = cache.Key("vacancies", "open")

type listingStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ListingCache holds the open-vacancy listing clients pick reference tokens from.
// Every write that changes which vacancies are open, or how their school is named, must drop it.
// A nil or disabled cache misses on every read and ignores writes.
type ListingCache struct {
	store   listingStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewListingCache constructs the cache.
func NewListingCache(store listingStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *ListingCache {
	if ttl <= 0 {
		ttl = defaultListingTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingCache{store: store, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *ListingCache) Enabled() bool {
	return c != nil && c.enabled && c.store != nil
}

// OpenVacancies returns the cached listing and whether it was a hit.
func (c *ListingCache) OpenVacancies(ctx context.Context) ([]models.VacancyListing, bool) {
	if !c.Enabled() {
		return nil, false
	}
	start := time.Now()
	var listings []models.VacancyListing
	err := c.store.Get(ctx, openVacanciesKey, &listings)
	c.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			c.logger.Warn("vacancy listing cache read failed", zap.Error(err))
		}
		return nil, false
	}
	return listings, true
}

// StoreOpenVacancies caches listings for the configured TTL.
func (c *ListingCache) StoreOpenVacancies(ctx context.Context, listings []models.VacancyListing) {
	if !c.Enabled() {
		return
	}
	start := time.Now()
	err := c.store.Set(ctx, openVacanciesKey, listings, c.ttl)
	c.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		c.logger.Warn("vacancy listing cache write failed", zap.Error(err))
	}
}

// InvalidateOpenVacancies drops the cached listing.
func (c *ListingCache) InvalidateOpenVacancies(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := c.store.Delete(context.WithoutCancel(ctx), openVacanciesKey); err != nil {
		c.logger.Warn("vacancy listing cache invalidate failed", zap.Error(err))
	}
}

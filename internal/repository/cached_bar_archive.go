package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	pkgcache "github.com/Vestika/portfolio-sub001/pkg/cache"
)

// CachedBarArchive decorates a BarArchive with a read cache for the hot
// "last N days" lookups served to the API layer. Writes pass through and
// invalidate the symbol's cached reads, so a stale read window is bounded by
// the TTL even if invalidation is missed.
type CachedBarArchive struct {
	inner domrepo.BarArchive
	cache pkgcache.Service
	ttl   time.Duration
}

func NewCachedBarArchive(inner domrepo.BarArchive, cache pkgcache.Service, ttl time.Duration) *CachedBarArchive {
	return &CachedBarArchive{inner: inner, cache: cache, ttl: ttl}
}

var _ domrepo.BarArchive = (*CachedBarArchive)(nil)

func (c *CachedBarArchive) Upsert(ctx context.Context, bar models.HistoricalBar) error {
	if err := c.inner.Upsert(ctx, bar); err != nil {
		return err
	}
	c.invalidate(ctx, bar.Symbol)
	return nil
}

func (c *CachedBarArchive) UpsertBatch(ctx context.Context, bars []models.HistoricalBar) (int, error) {
	n, err := c.inner.UpsertBatch(ctx, bars)
	if err != nil {
		return n, err
	}
	seen := make(map[string]struct{}, 8)
	for _, b := range bars {
		if _, ok := seen[b.Symbol]; ok {
			continue
		}
		seen[b.Symbol] = struct{}{}
		c.invalidate(ctx, b.Symbol)
	}
	return n, nil
}

func (c *CachedBarArchive) LatestDay(ctx context.Context, symbol string) (*time.Time, error) {
	return c.inner.LatestDay(ctx, symbol)
}

func (c *CachedBarArchive) Range(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalBar, error) {
	return c.inner.Range(ctx, symbol, from, to)
}

func (c *CachedBarArchive) LastN(ctx context.Context, symbol string, n int) ([]models.HistoricalBar, error) {
	key := pkgcache.GenerateKeyWithParams("bars:lastn", symbol, n)

	var cached []models.HistoricalBar
	err := c.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		// Cache trouble degrades to a direct read, never to a failure.
		bars, innerErr := c.inner.LastN(ctx, symbol, n)
		return bars, innerErr
	}

	bars, err := c.inner.LastN(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(ctx, key, bars, c.ttl)
	return bars, nil
}

func (c *CachedBarArchive) CountForSymbol(ctx context.Context, symbol string) (int, error) {
	return c.inner.CountForSymbol(ctx, symbol)
}

func (c *CachedBarArchive) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

func (c *CachedBarArchive) invalidate(ctx context.Context, symbol string) {
	pattern := fmt.Sprintf("bars:lastn:%s:*", symbol)
	_ = c.cache.DeleteByPattern(ctx, pattern)
}

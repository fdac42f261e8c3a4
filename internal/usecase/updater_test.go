package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
	"github.com/Vestika/portfolio-sub001/internal/service/quotegate"
)

func newTestUpdater(t *testing.T, registry *fakeRegistry, source *fakeSource, cache *livecache.Cache, interval time.Duration) *LiveUpdater {
	t.Helper()
	return NewLiveUpdater(
		registry, source, quotegate.New(), cache, nopMetrics{}, testLogger(t),
		interval, time.Second, time.Second,
	)
}

func TestUpdateOnceRefreshesAllTrackedSymbols(t *testing.T) {
	registry := newFakeRegistry()
	registry.add("AAPL", models.MarketUS, nil)
	registry.add("TEVA", models.MarketTASE, nil)

	source := newFakeSource()
	source.prices["AAPL"] = 189.84
	source.prices["TEVA"] = 12.6

	cache := livecache.New()
	u := newTestUpdater(t, registry, source, cache, time.Hour)

	result, err := u.UpdateOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 0, result.Errors)

	quote, ok := cache.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 189.84, quote.Price)

	quote, ok = cache.Get("TEVA")
	require.True(t, ok)
	assert.Equal(t, 12.6, quote.Price)
}

func TestUpdateOnceOneBadSymbolDoesNotAbortBatch(t *testing.T) {
	registry := newFakeRegistry()
	registry.add("AAPL", models.MarketUS, nil)
	registry.add("BAD", models.MarketUS, nil)
	registry.add("MSFT", models.MarketUS, nil)

	source := newFakeSource()
	source.prices["AAPL"] = 189.84
	source.prices["MSFT"] = 380.25
	source.currentErr["BAD"] = errors.New("vendor exploded")

	cache := livecache.New()
	u := newTestUpdater(t, registry, source, cache, time.Hour)

	result, err := u.UpdateOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Equal(t, 1, result.Errors)

	_, ok := cache.Get("BAD")
	assert.False(t, ok, "failed symbol must keep its previous cache state")
	_, ok = cache.Get("MSFT")
	assert.True(t, ok)
}

func TestUpdateOnceRegistryFailureIsTotal(t *testing.T) {
	registry := newFakeRegistry()
	registry.listErr = errors.New("registry down")

	u := newTestUpdater(t, registry, newFakeSource(), livecache.New(), time.Hour)

	_, err := u.UpdateOnce(context.Background())
	require.Error(t, err)
}

func TestUpdaterStartStop(t *testing.T) {
	registry := newFakeRegistry()
	registry.add("AAPL", models.MarketUS, nil)

	source := newFakeSource()
	source.prices["AAPL"] = 100

	cache := livecache.New()
	u := newTestUpdater(t, registry, source, cache, 10*time.Millisecond)

	u.Start()
	u.Start() // second Start is a no-op

	require.Eventually(t, func() bool {
		_, ok := cache.Get("AAPL")
		return ok
	}, time.Second, 5*time.Millisecond)

	u.Stop()
	u.Stop() // second Stop is a no-op

	source.mu.Lock()
	calls := source.calls
	source.mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	source.mu.Lock()
	assert.Equal(t, calls, source.calls, "no refreshes after Stop")
	source.mu.Unlock()
}

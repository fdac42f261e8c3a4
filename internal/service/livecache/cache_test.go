package livecache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
)

func TestSetAndGet(t *testing.T) {
	t.Parallel()

	c := New()
	before := time.Now()
	c.Set("AAPL", 189.5, "USD", models.MarketUS, nil)

	q, ok := c.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 189.5, q.Price)
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, models.MarketUS, q.Market)
	assert.WithinRange(t, q.LastUpdate, before, time.Now())

	_, ok = c.Get("MSFT")
	assert.False(t, ok)
}

func TestUpdateBatchSkipsMalformed(t *testing.T) {
	t.Parallel()

	c := New()
	change := 1.2
	applied := c.UpdateBatch([]models.LiveQuote{
		{Symbol: "MSFT", Price: 380.25, Currency: "USD", Market: models.MarketUS, ChangePercent: &change},
		{Symbol: "", Price: 10, Currency: "USD", Market: models.MarketUS},
		{Symbol: "BAD", Price: -1, Currency: "USD", Market: models.MarketUS},
		{Symbol: "TEVA", Price: 4210, Currency: "ILS", Market: models.MarketTASE},
	})

	assert.Equal(t, 2, applied)
	assert.Equal(t, 2, c.Size())

	q, ok := c.Get("MSFT")
	require.True(t, ok)
	assert.Equal(t, 380.25, q.Price)
	require.NotNil(t, q.ChangePercent)
	assert.Equal(t, 1.2, *q.ChangePercent)
	assert.WithinDuration(t, time.Now(), q.LastUpdate, time.Second)
}

func TestRemoveAndClear(t *testing.T) {
	t.Parallel()

	c := New()
	c.Set("AAPL", 189.5, "USD", models.MarketUS, nil)
	c.Set("BTC-USD", 64000, "USD", models.MarketCrypto, nil)

	assert.True(t, c.Remove("AAPL"))
	assert.False(t, c.Remove("AAPL"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Symbols())
}

func TestGetAllReturnsCopy(t *testing.T) {
	t.Parallel()

	c := New()
	c.Set("AAPL", 189.5, "USD", models.MarketUS, nil)

	all := c.GetAll()
	delete(all, "AAPL")

	_, ok := c.Get("AAPL")
	assert.True(t, ok, "mutating the returned map must not touch the cache")
}

func TestStats(t *testing.T) {
	t.Parallel()

	c := New()
	assert.Equal(t, 0, c.Stats().TotalSymbols)

	c.Set("AAPL", 189.5, "USD", models.MarketUS, nil)
	c.Set("MSFT", 380.25, "USD", models.MarketUS, nil)
	c.Set("EURUSD", 1.09, "USD", models.MarketForex, nil)

	stats := c.Stats()
	assert.Equal(t, 3, stats.TotalSymbols)
	assert.Equal(t, 2, stats.Markets[models.MarketUS])
	assert.Equal(t, 1, stats.Markets[models.MarketForex])
	require.NotNil(t, stats.OldestUpdate)
	require.NotNil(t, stats.NewestUpdate)
	assert.False(t, stats.NewestUpdate.Before(*stats.OldestUpdate))
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	t.Parallel()

	const (
		writers = 8
		readers = 8
		symbols = 100
		rounds  = 1000
	)

	c := New()
	var wg sync.WaitGroup

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				sym := fmt.Sprintf("SYM%03d", (w*rounds+r)%symbols)
				price := float64(r + 1)
				c.Set(sym, price, "USD", models.MarketUS, nil)
			}
		}(w)
	}

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				sym := fmt.Sprintf("SYM%03d", i%symbols)
				if q, ok := c.Get(sym); ok {
					// A quote is replaced as a unit: no partially written fields.
					require.Equal(t, sym, q.Symbol)
					require.Positive(t, q.Price)
					require.Equal(t, "USD", q.Currency)
					require.False(t, q.LastUpdate.IsZero())
				}
				_ = c.Stats()
			}
		}(r)
	}

	wg.Wait()
	assert.Equal(t, symbols, c.Size())
}

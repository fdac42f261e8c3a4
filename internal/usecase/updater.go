package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
	"github.com/Vestika/portfolio-sub001/internal/service/quotegate"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
)

// LiveUpdater keeps the live cache warm by polling the quote source on a
// fixed interval for all tracked symbols. Vendor errors are retried only by
// the next scheduled tick, never inline.
type LiveUpdater struct {
	registry    domrepo.SymbolRegistry
	source      domrepo.QuoteSource
	gate        *quotegate.Gate
	cache       *livecache.Cache
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	interval    time.Duration
	callTimeout time.Duration
	stopTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLiveUpdater(
	registry domrepo.SymbolRegistry,
	source domrepo.QuoteSource,
	gate *quotegate.Gate,
	cache *livecache.Cache,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	interval, callTimeout, stopTimeout time.Duration,
) *LiveUpdater {
	return &LiveUpdater{
		registry:    registry,
		source:      source,
		gate:        gate,
		cache:       cache,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		callTimeout: callTimeout,
		stopTimeout: stopTimeout,
	}
}

// UpdateOnce refreshes every tracked symbol through the serialization gate.
// One bad symbol never aborts the batch.
func (u *LiveUpdater) UpdateOnce(ctx context.Context) (models.UpdateResult, error) {
	start := time.Now()
	result := models.UpdateResult{Timestamp: start}

	symbols, err := u.registry.List(ctx)
	if err != nil {
		// Cannot even enumerate the batch; this is the only total failure.
		return result, err
	}

	for _, sym := range symbols {
		if ctx.Err() != nil {
			break
		}
		var quote *models.LiveQuote
		err := u.gate.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, u.callTimeout)
			defer cancel()
			var qerr error
			quote, qerr = u.source.GetCurrent(callCtx, sym.Symbol, sym.Market)
			return qerr
		})
		if err != nil {
			result.Errors++
			u.metrics.RecordError("quote_refresh")
			u.logger.Warn("quote refresh failed",
				applogger.String("symbol", sym.Symbol),
				applogger.Error(err),
			)
			continue
		}
		u.cache.Set(quote.Symbol, quote.Price, quote.Currency, quote.Market, quote.ChangePercent)
		u.metrics.RecordQuoteRefresh(string(quote.Market), quote.Symbol)
		u.metrics.RecordLastPrice(quote.Symbol, quote.Price)
		result.Updated++
	}

	u.metrics.RecordLatency("update_once", time.Since(start).Seconds())
	u.logger.Info("live refresh complete",
		applogger.Int("updated", result.Updated),
		applogger.Int("errors", result.Errors),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return result, nil
}

// Start schedules UpdateOnce on the fixed interval and returns immediately.
func (u *LiveUpdater) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.done = make(chan struct{})
	go u.loop(ctx, u.done)
}

// Stop cancels future runs and waits (bounded) for an in-flight run to
// finish. No background work survives Stop.
func (u *LiveUpdater) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.cancel, u.done = nil, nil
	u.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(u.stopTimeout):
		u.logger.Warn("updater stop timed out; abandoning in-flight run")
	}
}

func (u *LiveUpdater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := u.UpdateOnce(ctx); err != nil && ctx.Err() == nil {
				u.metrics.RecordError("update_cycle")
				u.logger.Error("scheduled refresh failed", applogger.Error(err))
			}
		}
	}
}

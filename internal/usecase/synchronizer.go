package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
	"github.com/Vestika/portfolio-sub001/internal/service/quotegate"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
	xutil "github.com/Vestika/portfolio-sub001/pkg/util"
)

// Synchronizer keeps the historical archive consistent with reality in two
// stages: a cheap promotion of already-fetched live quotes into today's bars,
// then a self-healing backfill for symbols whose archive fell behind.
type Synchronizer struct {
	cache       *livecache.Cache
	registry    domrepo.SymbolRegistry
	archive     domrepo.BarArchive
	source      domrepo.QuoteSource
	gate        *quotegate.Gate
	publisher   domrepo.Publisher
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	staleness   time.Duration
	backfillDay int
	callTimeout time.Duration
	now         func() time.Time
}

func NewSynchronizer(
	cache *livecache.Cache,
	registry domrepo.SymbolRegistry,
	archive domrepo.BarArchive,
	source domrepo.QuoteSource,
	gate *quotegate.Gate,
	publisher domrepo.Publisher,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	staleness time.Duration,
	backfillDays int,
	callTimeout time.Duration,
) *Synchronizer {
	return &Synchronizer{
		cache:       cache,
		registry:    registry,
		archive:     archive,
		source:      source,
		gate:        gate,
		publisher:   publisher,
		metrics:     metrics,
		logger:      logger,
		staleness:   staleness,
		backfillDay: backfillDays,
		callTimeout: callTimeout,
		now:         time.Now,
	}
}

// TransferLiveToArchive is Stage 1: for every tracked symbol with a cached
// live quote, upsert today's bar using the live price as close. Open, high
// and low use the same price as placeholders since the live snapshot carries
// no intraday range; the next vendor history fetch replaces them.
// Archive writes need no gate, so they run with bounded concurrency.
func (s *Synchronizer) TransferLiveToArchive(ctx context.Context) models.TransferResult {
	start := s.now()
	today := xutil.NormalizeDay(start)

	symbols, err := s.registry.List(ctx)
	if err != nil {
		s.logger.Error("stage1: registry list failed", applogger.Error(err))
		s.metrics.RecordError("stage1_registry")
		return models.TransferResult{ErrorCount: 1}
	}

	var (
		mu        sync.Mutex
		result    models.TransferResult
		published []models.HistoricalBar
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range symbols {
		quote, ok := s.cache.Get(sym.Symbol)
		if !ok {
			continue
		}
		g.Go(func() error {
			bar := models.HistoricalBar{
				Symbol: quote.Symbol,
				Day:    today,
				Open:   quote.Price,
				High:   quote.Price,
				Low:    quote.Price,
				Close:  quote.Price,
			}

			latest, lerr := s.archive.LatestDay(gctx, quote.Symbol)
			if err := s.archive.Upsert(gctx, bar); err != nil {
				s.logger.Warn("stage1: bar upsert failed",
					applogger.String("symbol", quote.Symbol),
					applogger.Error(err),
				)
				s.metrics.RecordError("stage1_upsert")
				mu.Lock()
				result.ErrorCount++
				mu.Unlock()
				return nil
			}
			if err := s.registry.MarkUpdated(gctx, quote.Symbol, s.now()); err != nil {
				s.logger.Warn("stage1: mark updated failed",
					applogger.String("symbol", quote.Symbol),
					applogger.Error(err),
				)
				s.metrics.RecordError("stage1_registry")
				mu.Lock()
				result.ErrorCount++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			result.SuccessCount++
			if lerr == nil && latest != nil && latest.Equal(today) {
				result.Modified++
			} else {
				result.Upserted++
			}
			published = append(published, bar)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(published) > 0 {
		if err := s.publisher.PublishBars(ctx, published); err != nil {
			// Downstream delivery is best-effort; the archive is the truth.
			s.logger.Warn("stage1: publish failed", applogger.Error(err))
			s.metrics.RecordError("stage1_publish")
		}
	}

	s.metrics.RecordBarsUpserted("transfer", result.SuccessCount)
	s.metrics.RecordLatency("stage1", time.Since(start).Seconds())
	return result
}

// RepairStale is Stage 2: re-fetch history for every symbol whose LastUpdate
// is absent or older than the staleness threshold. Per-symbol failures are
// counted; the next cycle retries whatever is still stale.
func (s *Synchronizer) RepairStale(ctx context.Context) models.RepairResult {
	start := s.now()
	cutoff := start.Add(-s.staleness)

	stale, err := s.registry.ListStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("stage2: stale scan failed", applogger.Error(err))
		s.metrics.RecordError("stage2_registry")
		return models.RepairResult{ErrorCount: 1}
	}

	result := models.RepairResult{TotalProcessed: len(stale)}
	for _, sym := range stale {
		if ctx.Err() != nil {
			break
		}
		if err := s.repairOne(ctx, sym); err != nil {
			result.ErrorCount++
			s.metrics.RecordError("stage2_backfill")
			s.logger.Warn("stage2: repair failed",
				applogger.String("symbol", sym.Symbol),
				applogger.Error(err),
			)
			continue
		}
		result.SuccessCount++
	}

	s.metrics.RecordLatency("stage2", time.Since(start).Seconds())
	return result
}

// repairOne backfills a single stale symbol: the full default window when the
// archive has never seen it, otherwise just the gap since its latest bar.
func (s *Synchronizer) repairOne(ctx context.Context, sym models.TrackedSymbol) error {
	today := xutil.NormalizeDay(s.now())

	latest, err := s.archive.LatestDay(ctx, sym.Symbol)
	if err != nil {
		return fmt.Errorf("latest day: %w", err)
	}

	if latest == nil {
		res := s.BackfillNewSymbol(ctx, sym.Symbol, sym.Market, s.backfillDay)
		if res.Status != models.BackfillSuccess {
			return fmt.Errorf("backfill: %s", res.Error)
		}
		return nil
	}

	from := latest.AddDate(0, 0, 1)
	if from.After(today) {
		// Archive already has today's bar; only the registry stamp lagged.
		return s.registry.MarkUpdated(ctx, sym.Symbol, s.now())
	}
	_, err = s.fetchAndArchive(ctx, sym.Symbol, sym.Market, from, today)
	return err
}

// BackfillNewSymbol fetches up to days of daily history and seeds the
// archive. Used by Stage 2 and by the on-demand path when a brand-new symbol
// is first tracked.
func (s *Synchronizer) BackfillNewSymbol(ctx context.Context, symbol string, market models.Market, days int) models.BackfillResult {
	if days <= 0 {
		days = s.backfillDay
	}
	to := xutil.NormalizeDay(s.now())
	from := xutil.DaysAgo(s.now(), days)

	result := models.BackfillResult{Symbol: symbol, DateFrom: &from, DateTo: &to}

	inserted, err := s.fetchAndArchive(ctx, symbol, market, from, to)
	if err != nil {
		result.Status = models.BackfillError
		result.Error = err.Error()
		return result
	}

	result.Status = models.BackfillSuccess
	result.RecordsInserted = inserted
	s.logger.Info("backfill complete",
		applogger.String("symbol", symbol),
		applogger.Int("records", inserted),
	)
	return result
}

// fetchAndArchive pulls [from, to] through the gate, upserts the bars and
// stamps the registry. An empty vendor result is an error: the symbol stays
// stale and the next cycle retries.
func (s *Synchronizer) fetchAndArchive(ctx context.Context, symbol string, market models.Market, from, to time.Time) (int, error) {
	var bars []models.HistoricalBar
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
		var herr error
		bars, herr = s.source.GetHistory(callCtx, symbol, market, from, to)
		return herr
	})
	if err != nil {
		return 0, fmt.Errorf("history fetch: %w", err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("history fetch: empty result for %s [%s..%s]",
			symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	inserted, err := s.archive.UpsertBatch(ctx, bars)
	if err != nil {
		return inserted, fmt.Errorf("archive upsert: %w", err)
	}
	if err := s.registry.MarkUpdated(ctx, symbol, s.now()); err != nil {
		return inserted, fmt.Errorf("mark updated: %w", err)
	}

	if err := s.publisher.PublishBars(ctx, bars); err != nil {
		s.logger.Warn("backfill publish failed",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		s.metrics.RecordError("backfill_publish")
	}
	s.metrics.RecordBarsUpserted("backfill", inserted)
	return inserted, nil
}

// RunDailySync is the single scheduler entry point. Stage 1 always completes
// before Stage 2 starts, so Stage 2 sees the smallest possible stale set.
func (s *Synchronizer) RunDailySync(ctx context.Context) models.SyncResult {
	start := s.now()

	transfer := s.TransferLiveToArchive(ctx)
	repair := s.RepairStale(ctx)

	result := models.SyncResult{
		Transfer:  transfer,
		Repair:    repair,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	s.logger.Info("sync cycle complete",
		applogger.Int("transferred", transfer.SuccessCount),
		applogger.Int("transfer_errors", transfer.ErrorCount),
		applogger.Int("repaired", repair.SuccessCount),
		applogger.Int("repair_errors", repair.ErrorCount),
		applogger.Int("stale_candidates", repair.TotalProcessed),
		applogger.Duration("duration_ms", result.Duration),
	)
	return result
}

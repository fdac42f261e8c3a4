package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
	"github.com/Vestika/portfolio-sub001/internal/service/quotegate"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
)

// QuoteService answers on-demand price lookups. Every lookup tracks the
// symbol, so the periodic updater and synchronizer pick it up from the next
// cycle; a cache miss is served by a direct gated fetch, and a symbol the
// archive has never seen gets a background backfill kicked off.
type QuoteService struct {
	cache        *livecache.Cache
	registry     domrepo.SymbolRegistry
	archive      domrepo.BarArchive
	source       domrepo.QuoteSource
	gate         *quotegate.Gate
	synchronizer *Synchronizer
	metrics      domrepo.Metrics
	logger       *applogger.Logger
	callTimeout  time.Duration
	backfillDays int
}

func NewQuoteService(
	cache *livecache.Cache,
	registry domrepo.SymbolRegistry,
	archive domrepo.BarArchive,
	source domrepo.QuoteSource,
	gate *quotegate.Gate,
	synchronizer *Synchronizer,
	metrics domrepo.Metrics,
	logger *applogger.Logger,
	callTimeout time.Duration,
	backfillDays int,
) *QuoteService {
	return &QuoteService{
		cache:        cache,
		registry:     registry,
		archive:      archive,
		source:       source,
		gate:         gate,
		synchronizer: synchronizer,
		metrics:      metrics,
		logger:       logger,
		callTimeout:  callTimeout,
		backfillDays: backfillDays,
	}
}

// Lookup returns the live quote for a symbol, tracking it as a side effect.
func (q *QuoteService) Lookup(ctx context.Context, symbol string, market models.Market) (models.LiveQuote, error) {
	_, created, err := q.registry.Ensure(ctx, symbol, market)
	if err != nil {
		return models.LiveQuote{}, err
	}
	if created {
		q.seedArchive(symbol, market)
	}

	if quote, ok := q.cache.Get(symbol); ok {
		return quote, nil
	}

	var fetched *models.LiveQuote
	err = q.gate.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, q.callTimeout)
		defer cancel()
		var ferr error
		fetched, ferr = q.source.GetCurrent(callCtx, symbol, market)
		return ferr
	})
	if err != nil {
		if !errors.Is(err, domrepo.ErrSymbolNotFound) {
			q.metrics.RecordError("lookup")
		}
		return models.LiveQuote{}, err
	}

	q.cache.Set(fetched.Symbol, fetched.Price, fetched.Currency, fetched.Market, fetched.ChangePercent)
	q.metrics.RecordQuoteRefresh(string(market), symbol)
	q.metrics.RecordLastPrice(symbol, fetched.Price)

	quote, _ := q.cache.Get(symbol)
	return quote, nil
}

// seedArchive starts a background backfill for a just-created symbol when
// the archive holds nothing for it. Detached from the request context so a
// fast client disconnect does not abort the seed.
func (q *QuoteService) seedArchive(symbol string, market models.Market) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		count, err := q.archive.CountForSymbol(ctx, symbol)
		if err != nil {
			q.logger.Warn("seed: archive count failed",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			return
		}
		if count > 0 {
			return
		}
		res := q.synchronizer.BackfillNewSymbol(ctx, symbol, market, q.backfillDays)
		if res.Status != models.BackfillSuccess {
			q.logger.Warn("seed: backfill failed",
				applogger.String("symbol", symbol),
				applogger.String("error", res.Error),
			)
		}
	}()
}

// History returns the most recent daily bars for a symbol, oldest first.
func (q *QuoteService) History(ctx context.Context, symbol string, days int) ([]models.HistoricalBar, error) {
	return q.archive.LastN(ctx, symbol, days)
}

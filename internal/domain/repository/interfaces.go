package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
)

// Vendor-level errors surfaced by QuoteSource implementations. Callers count
// and skip these per symbol; they never abort a batch.
var (
	ErrSymbolNotFound = errors.New("quote source: symbol not found")
	ErrRateLimited    = errors.New("quote source: rate limited")
)

// QuoteSource is the upstream provider of current and historical prices.
// Implementations are NOT safe for concurrent invocation: every call must be
// made while holding the process-wide serialization gate.
type QuoteSource interface {
	GetCurrent(ctx context.Context, symbol string, market models.Market) (*models.LiveQuote, error)
	GetHistory(ctx context.Context, symbol string, market models.Market, from, to time.Time) ([]models.HistoricalBar, error)
}

// SymbolRegistry is the durable record of which symbols must be kept live and
// historically current. Symbols are never hard-deleted here.
type SymbolRegistry interface {
	// Ensure registers the symbol if unknown and stamps LastQueriedAt either way.
	Ensure(ctx context.Context, symbol string, market models.Market) (*models.TrackedSymbol, bool, error)
	Get(ctx context.Context, symbol string) (*models.TrackedSymbol, error)
	List(ctx context.Context) ([]models.TrackedSymbol, error)
	// ListStale returns symbols whose LastUpdate is absent or older than the cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]models.TrackedSymbol, error)
	// MarkUpdated sets LastUpdate after the archive successfully received a bar.
	MarkUpdated(ctx context.Context, symbol string, at time.Time) error
	Health(ctx context.Context) error
}

// BarArchive is the durable time-ordered store of one daily bar per
// (symbol, day). Writes are upserts keyed on that pair, never blind inserts.
type BarArchive interface {
	Upsert(ctx context.Context, bar models.HistoricalBar) error
	UpsertBatch(ctx context.Context, bars []models.HistoricalBar) (int, error)
	// LatestDay returns the most recent archived day for the symbol, or nil.
	LatestDay(ctx context.Context, symbol string) (*time.Time, error)
	Range(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalBar, error)
	LastN(ctx context.Context, symbol string, n int) ([]models.HistoricalBar, error)
	CountForSymbol(ctx context.Context, symbol string) (int, error)
	Health(ctx context.Context) error
}

// Publisher ships archived-bar events to downstream consumers. Delivery is
// at-least-once; events are idempotent by (symbol, day).
type Publisher interface {
	PublishBars(ctx context.Context, bars []models.HistoricalBar) error
	Close() error
}

// Metrics records operational measurements for the price subsystem.
type Metrics interface {
	RecordQuoteRefresh(market, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordGateWait(seconds float64)
	RecordBarsUpserted(stage string, count int)
}

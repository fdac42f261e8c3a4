package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
	xutil "github.com/Vestika/portfolio-sub001/pkg/util"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return l
}

// fakeRegistry is an in-memory SymbolRegistry.
type fakeRegistry struct {
	mu      sync.Mutex
	rows    map[string]models.TrackedSymbol
	listErr error
	markErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rows: make(map[string]models.TrackedSymbol)}
}

func (f *fakeRegistry) add(symbol string, market models.Market, lastUpdate *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[symbol] = models.TrackedSymbol{
		Symbol:        symbol,
		Market:        market,
		AddedAt:       time.Now(),
		LastQueriedAt: time.Now(),
		LastUpdate:    lastUpdate,
	}
}

func (f *fakeRegistry) Ensure(_ context.Context, symbol string, market models.Market) (*models.TrackedSymbol, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[symbol]; ok {
		row.LastQueriedAt = time.Now()
		f.rows[symbol] = row
		return &row, false, nil
	}
	row := models.TrackedSymbol{Symbol: symbol, Market: market, AddedAt: time.Now(), LastQueriedAt: time.Now()}
	f.rows[symbol] = row
	return &row, true, nil
}

func (f *fakeRegistry) Get(_ context.Context, symbol string) (*models.TrackedSymbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	return &row, nil
}

func (f *fakeRegistry) List(_ context.Context) ([]models.TrackedSymbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.TrackedSymbol, 0, len(f.rows))
	for _, row := range f.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (f *fakeRegistry) ListStale(_ context.Context, cutoff time.Time) ([]models.TrackedSymbol, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.TrackedSymbol
	for _, row := range f.rows {
		if row.LastUpdate == nil || row.LastUpdate.Before(cutoff) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (f *fakeRegistry) MarkUpdated(_ context.Context, symbol string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	row, ok := f.rows[symbol]
	if !ok {
		return errors.New("unknown symbol")
	}
	row.LastUpdate = &at
	f.rows[symbol] = row
	return nil
}

func (f *fakeRegistry) Health(context.Context) error { return nil }

func (f *fakeRegistry) lastUpdate(symbol string) *time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[symbol]
	return row.LastUpdate
}

// fakeArchive is an in-memory BarArchive keyed on (symbol, day).
type fakeArchive struct {
	mu        sync.Mutex
	bars      map[string]map[time.Time]models.HistoricalBar
	upsertErr error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{bars: make(map[string]map[time.Time]models.HistoricalBar)}
}

func (f *fakeArchive) Upsert(_ context.Context, bar models.HistoricalBar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.put(bar)
	return nil
}

func (f *fakeArchive) UpsertBatch(_ context.Context, bars []models.HistoricalBar) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	for _, bar := range bars {
		f.put(bar)
	}
	return len(bars), nil
}

func (f *fakeArchive) put(bar models.HistoricalBar) {
	if f.bars[bar.Symbol] == nil {
		f.bars[bar.Symbol] = make(map[time.Time]models.HistoricalBar)
	}
	f.bars[bar.Symbol][xutil.NormalizeDay(bar.Day)] = bar
}

func (f *fakeArchive) LatestDay(_ context.Context, symbol string) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	days := f.bars[symbol]
	if len(days) == 0 {
		return nil, nil
	}
	var latest time.Time
	for day := range days {
		if day.After(latest) {
			latest = day
		}
	}
	return &latest, nil
}

func (f *fakeArchive) Range(_ context.Context, symbol string, from, to time.Time) ([]models.HistoricalBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.HistoricalBar
	for day, bar := range f.bars[symbol] {
		if !day.Before(from) && !day.After(to) {
			out = append(out, bar)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (f *fakeArchive) LastN(_ context.Context, symbol string, n int) ([]models.HistoricalBar, error) {
	all, _ := f.Range(context.Background(), symbol, time.Time{}, time.Now().AddDate(10, 0, 0))
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (f *fakeArchive) CountForSymbol(_ context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bars[symbol]), nil
}

func (f *fakeArchive) Health(context.Context) error { return nil }

func (f *fakeArchive) get(symbol string, day time.Time) (models.HistoricalBar, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bar, ok := f.bars[symbol][xutil.NormalizeDay(day)]
	return bar, ok
}

func (f *fakeArchive) count(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bars[symbol])
}

// fakeSource is a scripted QuoteSource that counts concurrent entries so
// tests can assert the serialization gate actually serializes vendor calls.
type fakeSource struct {
	mu          sync.Mutex
	prices      map[string]float64
	history     map[string][]models.HistoricalBar
	currentErr  map[string]error
	historyErr  map[string]error
	inFlight    int
	maxInFlight int
	calls       int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		prices:     make(map[string]float64),
		history:    make(map[string][]models.HistoricalBar),
		currentErr: make(map[string]error),
		historyErr: make(map[string]error),
	}
}

func (f *fakeSource) enter() {
	f.mu.Lock()
	f.inFlight++
	f.calls++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()
	// Hold the slot long enough for overlap to be observable.
	time.Sleep(time.Millisecond)
}

func (f *fakeSource) exit() {
	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()
}

func (f *fakeSource) GetCurrent(_ context.Context, symbol string, market models.Market) (*models.LiveQuote, error) {
	f.enter()
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.currentErr[symbol]; err != nil {
		return nil, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return nil, errors.New("no scripted price")
	}
	cp := 0.5
	return &models.LiveQuote{
		Symbol:        symbol,
		Price:         price,
		Currency:      "USD",
		Market:        market,
		ChangePercent: &cp,
		LastUpdate:    time.Now(),
	}, nil
}

func (f *fakeSource) GetHistory(_ context.Context, symbol string, _ models.Market, from, to time.Time) ([]models.HistoricalBar, error) {
	f.enter()
	defer f.exit()

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.historyErr[symbol]; err != nil {
		return nil, err
	}
	var out []models.HistoricalBar
	for _, bar := range f.history[symbol] {
		if !bar.Day.Before(xutil.NormalizeDay(from)) && !bar.Day.After(xutil.NormalizeDay(to)) {
			out = append(out, bar)
		}
	}
	return out, nil
}

// scriptHistory seeds daily bars for the n days ending today.
func (f *fakeSource) scriptHistory(symbol string, n int, base float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	today := xutil.NormalizeDay(time.Now())
	bars := make([]models.HistoricalBar, 0, n)
	for i := n - 1; i >= 0; i-- {
		price := base + float64(i)*0.1
		bars = append(bars, models.HistoricalBar{
			Symbol: symbol,
			Day:    today.AddDate(0, 0, -i),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price + 0.5,
		})
	}
	f.history[symbol] = bars
}

// nopMetrics satisfies repository.Metrics in tests.
type nopMetrics struct{}

func (nopMetrics) RecordQuoteRefresh(string, string)  {}
func (nopMetrics) RecordError(string)                 {}
func (nopMetrics) RecordLastPrice(string, float64)    {}
func (nopMetrics) RecordLatency(string, float64)      {}
func (nopMetrics) RecordGateWait(float64)             {}
func (nopMetrics) RecordBarsUpserted(string, int)     {}

// nopPublisher satisfies repository.Publisher in tests.
type nopPublisher struct {
	mu   sync.Mutex
	sent []models.HistoricalBar
}

func (p *nopPublisher) PublishBars(_ context.Context, bars []models.HistoricalBar) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, bars...)
	return nil
}

func (p *nopPublisher) Close() error { return nil }

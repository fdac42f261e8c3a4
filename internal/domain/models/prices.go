package models

import "time"

// Market classifies the venue a symbol trades on. It drives vendor routing,
// trading-calendar lookups and cache statistics.
type Market string

const (
	MarketUS     Market = "US"     // domestic equities
	MarketTASE   Market = "TASE"   // Tel-Aviv exchange equities
	MarketForex  Market = "FOREX"  // currency pairs
	MarketCrypto Market = "CRYPTO" // crypto assets
)

// Valid reports whether m is one of the known markets.
func (m Market) Valid() bool {
	switch m {
	case MarketUS, MarketTASE, MarketForex, MarketCrypto:
		return true
	}
	return false
}

// LiveQuote is the most recent known price snapshot for a symbol. It lives
// only in the live cache and is lost on restart.
type LiveQuote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	Market        Market    `json:"market"`
	ChangePercent *float64  `json:"change_percent,omitempty"`
	LastUpdate    time.Time `json:"last_update"`
}

// HistoricalBar is one durable daily price record. At most one bar exists per
// (symbol, day); Day is always normalized to 00:00 UTC so the pair forms the
// upsert key.
type HistoricalBar struct {
	Symbol string    `json:"symbol"`
	Day    time.Time `json:"day"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume *int64    `json:"volume,omitempty"`
}

// TrackedSymbol is the durable record that a symbol must be kept live and
// historically current. LastUpdate is set only when the archive successfully
// receives a bar for the symbol; its absence or staleness drives backfill.
type TrackedSymbol struct {
	Symbol        string     `json:"symbol"`
	Market        Market     `json:"market"`
	AddedAt       time.Time  `json:"added_at"`
	LastQueriedAt time.Time  `json:"last_queried_at"`
	LastUpdate    *time.Time `json:"last_update,omitempty"`
}

// Stale reports whether the symbol's archive has fallen behind the threshold.
// A symbol that has never received a bar is always stale.
func (s *TrackedSymbol) Stale(now time.Time, threshold time.Duration) bool {
	if s.LastUpdate == nil {
		return true
	}
	return now.Sub(*s.LastUpdate) > threshold
}

// UpdateResult summarizes one live refresh pass.
type UpdateResult struct {
	Updated   int       `json:"updated"`
	Errors    int       `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}

// TransferResult summarizes one Stage 1 cache-to-archive promotion pass.
type TransferResult struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
	Upserted     int `json:"upserted"`
	Modified     int `json:"modified"`
}

// BackfillResult summarizes a historical backfill for a single symbol.
type BackfillResult struct {
	Status          string     `json:"status"` // "success" or "error"
	Symbol          string     `json:"symbol"`
	RecordsInserted int        `json:"records_inserted"`
	DateFrom        *time.Time `json:"date_from,omitempty"`
	DateTo          *time.Time `json:"date_to,omitempty"`
	Error           string     `json:"error,omitempty"`
}

const (
	BackfillSuccess = "success"
	BackfillError   = "error"
)

// RepairResult summarizes one Stage 2 self-healing pass over stale symbols.
type RepairResult struct {
	SuccessCount   int `json:"success_count"`
	ErrorCount     int `json:"error_count"`
	TotalProcessed int `json:"total_processed"`
}

// SyncResult is the combined outcome of one full synchronizer cycle
// (Stage 1 followed by Stage 2).
type SyncResult struct {
	Transfer  TransferResult `json:"transfer"`
	Repair    RepairResult   `json:"repair"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// CacheStats is a point-in-time summary of the live cache contents.
type CacheStats struct {
	TotalSymbols int            `json:"total_symbols"`
	Markets      map[Market]int `json:"markets"`
	OldestUpdate *time.Time     `json:"oldest_update,omitempty"`
	NewestUpdate *time.Time     `json:"newest_update,omitempty"`
}

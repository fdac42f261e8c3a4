package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	pkgch "github.com/Vestika/portfolio-sub001/pkg/clickhouse"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
)

// ErrSymbolUnknown is returned by Get for symbols never registered.
var ErrSymbolUnknown = errors.New("registry: symbol not tracked")

// CHSymbolRegistry implements SymbolRegistry backed by ClickHouse. One row per
// symbol in a ReplacingMergeTree versioned by updated_at: every registry
// mutation inserts a full fresh row and reads use FINAL, so the latest write
// wins and no row is ever partially overwritten.
type CHSymbolRegistry struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHSymbolRegistry(ch *pkgch.Client, table string) *CHSymbolRegistry {
	return &CHSymbolRegistry{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHSymbolRegistry) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.SymbolRegistry = (*CHSymbolRegistry)(nil)

// SymbolRegistrySchema returns idempotent DDL for the registry table.
func SymbolRegistrySchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol String,
			market LowCardinality(String),
			added_at DateTime64(3),
			last_queried_at DateTime64(3),
			last_update Nullable(DateTime64(3)),
			updated_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY symbol`, table),
	}
}

// Ensure registers the symbol if unknown and stamps LastQueriedAt either way.
// The bool result reports whether the symbol was newly created.
func (s *CHSymbolRegistry) Ensure(ctx context.Context, symbol string, market models.Market) (*models.TrackedSymbol, bool, error) {
	now := time.Now().UTC()

	existing, err := s.Get(ctx, symbol)
	if err != nil && !errors.Is(err, ErrSymbolUnknown) {
		return nil, false, err
	}

	created := existing == nil
	row := models.TrackedSymbol{
		Symbol:        symbol,
		Market:        market,
		AddedAt:       now,
		LastQueriedAt: now,
	}
	if existing != nil {
		row.Market = existing.Market
		row.AddedAt = existing.AddedAt
		row.LastUpdate = existing.LastUpdate
	}

	if err := s.insertRow(ctx, row); err != nil {
		return nil, false, err
	}
	if created && s.l != nil {
		s.l.Info("symbol tracked",
			applogger.String("symbol", symbol),
			applogger.String("market", string(market)),
		)
	}
	return &row, created, nil
}

func (s *CHSymbolRegistry) Get(ctx context.Context, symbol string) (*models.TrackedSymbol, error) {
	q := fmt.Sprintf(`SELECT symbol, market, added_at, last_queried_at, last_update
		FROM %s FINAL WHERE symbol = ?`, s.table)
	rows, err := s.queryRows(ctx, q, symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolUnknown, symbol)
	}
	return &rows[0], nil
}

func (s *CHSymbolRegistry) List(ctx context.Context) ([]models.TrackedSymbol, error) {
	q := fmt.Sprintf(`SELECT symbol, market, added_at, last_queried_at, last_update
		FROM %s FINAL ORDER BY symbol`, s.table)
	return s.queryRows(ctx, q)
}

// ListStale returns symbols whose LastUpdate is absent or older than cutoff.
// The registry is small (one row per tracked symbol) so FINAL plus the ORDER
// BY symbol key keeps this cheap without a secondary index.
func (s *CHSymbolRegistry) ListStale(ctx context.Context, cutoff time.Time) ([]models.TrackedSymbol, error) {
	q := fmt.Sprintf(`SELECT symbol, market, added_at, last_queried_at, last_update
		FROM %s FINAL
		WHERE last_update IS NULL OR last_update < ?
		ORDER BY symbol`, s.table)
	return s.queryRows(ctx, q, cutoff.UTC())
}

// MarkUpdated sets LastUpdate after the archive successfully received a bar.
// The new row copies every other column from the freshest merged row inside a
// single INSERT ... SELECT, so a concurrent Ensure stamping last_queried_at
// is not reverted by a stale client-side snapshot.
func (s *CHSymbolRegistry) MarkUpdated(ctx context.Context, symbol string, at time.Time) error {
	if _, err := s.Get(ctx, symbol); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (symbol, market, added_at, last_queried_at, last_update)
		SELECT symbol, market, added_at, last_queried_at, ? FROM %s FINAL WHERE symbol = ?`,
		s.table, s.table)
	if _, err := s.db.ExecContext(ctx, q, at.UTC(), symbol); err != nil {
		return fmt.Errorf("registry mark updated: %w", err)
	}
	return nil
}

func (s *CHSymbolRegistry) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSymbolRegistry) insertRow(ctx context.Context, row models.TrackedSymbol) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, market, added_at, last_queried_at, last_update)
		VALUES (?, ?, ?, ?, ?)`, s.table)
	var lastUpdate interface{}
	if row.LastUpdate != nil {
		lastUpdate = row.LastUpdate.UTC()
	}
	if _, err := s.db.ExecContext(ctx, q,
		row.Symbol,
		string(row.Market),
		row.AddedAt.UTC(),
		row.LastQueriedAt.UTC(),
		lastUpdate,
	); err != nil {
		return fmt.Errorf("registry insert: %w", err)
	}
	return nil
}

func (s *CHSymbolRegistry) queryRows(ctx context.Context, q string, args ...interface{}) ([]models.TrackedSymbol, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("registry query: %w", err)
	}
	defer rows.Close()

	out := make([]models.TrackedSymbol, 0, 64)
	for rows.Next() {
		var t models.TrackedSymbol
		var market string
		var lastUpdate sql.NullTime
		if err := rows.Scan(&t.Symbol, &market, &t.AddedAt, &t.LastQueriedAt, &lastUpdate); err != nil {
			return nil, fmt.Errorf("registry scan: %w", err)
		}
		t.Market = models.Market(market)
		if lastUpdate.Valid {
			u := lastUpdate.Time
			t.LastUpdate = &u
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

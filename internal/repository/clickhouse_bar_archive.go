package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	pkgch "github.com/Vestika/portfolio-sub001/pkg/clickhouse"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
	xutil "github.com/Vestika/portfolio-sub001/pkg/util"
)

// CHBarArchive implements BarArchive backed by ClickHouse. The table is a
// ReplacingMergeTree keyed on (symbol, day) with updated_at as version, so a
// re-insert of the same (symbol, day) replaces the previous row on merge.
// Reads use FINAL to fold not-yet-merged duplicates, which is how the
// one-bar-per-day invariant is enforced via the upsert key.
type CHBarArchive struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarArchive(ch *pkgch.Client, table string) *CHBarArchive {
	return &CHBarArchive{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHBarArchive) SetLogger(l *applogger.Logger) { s.l = l }

var _ domrepo.BarArchive = (*CHBarArchive)(nil)

// BarArchiveSchema returns idempotent DDL for the archive table.
func BarArchiveSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol LowCardinality(String),
			day Date,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Nullable(Int64),
			updated_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		PARTITION BY toYYYYMM(day)
		ORDER BY (symbol, day)`, table),
	}
}

func (s *CHBarArchive) Upsert(ctx context.Context, bar models.HistoricalBar) error {
	_, err := s.UpsertBatch(ctx, []models.HistoricalBar{bar})
	return err
}

// UpsertBatch writes bars in chunks and returns how many rows were written.
// Malformed bars (empty symbol, zero day) are skipped.
func (s *CHBarArchive) UpsertBatch(ctx context.Context, bars []models.HistoricalBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	const chunkSize = 2000
	written := 0
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, b := range bars[start:end] {
			if b.Symbol == "" || b.Day.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.Symbol,
				xutil.NormalizeDay(b.Day),
				b.Open,
				b.High,
				b.Low,
				b.Close,
				b.Volume,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, day, open, high, low, close, volume) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse bar upsert error",
					applogger.String("table", s.table),
					applogger.Int("rows", len(values)),
					applogger.Error(err),
				)
			}
			return written, fmt.Errorf("upsert bars: %w", err)
		}
		written += len(values)
	}
	return written, nil
}

func (s *CHBarArchive) LatestDay(ctx context.Context, symbol string) (*time.Time, error) {
	q := fmt.Sprintf("SELECT max(day) FROM %s FINAL WHERE symbol = ?", s.table)
	var day sql.NullTime
	if err := s.db.QueryRowContext(ctx, q, symbol).Scan(&day); err != nil {
		return nil, fmt.Errorf("latest day: %w", err)
	}
	if !day.Valid || day.Time.IsZero() {
		return nil, nil
	}
	d := xutil.NormalizeDay(day.Time)
	return &d, nil
}

func (s *CHBarArchive) Range(ctx context.Context, symbol string, from, to time.Time) ([]models.HistoricalBar, error) {
	q := fmt.Sprintf(`SELECT symbol, day, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ? AND day >= ? AND day <= ?
		ORDER BY day ASC`, s.table)
	return s.queryBars(ctx, q, symbol, xutil.NormalizeDay(from), xutil.NormalizeDay(to))
}

func (s *CHBarArchive) LastN(ctx context.Context, symbol string, n int) ([]models.HistoricalBar, error) {
	q := fmt.Sprintf(`SELECT symbol, day, open, high, low, close, volume
		FROM %s FINAL
		WHERE symbol = ?
		ORDER BY day DESC
		LIMIT ?`, s.table)
	bars, err := s.queryBars(ctx, q, symbol, n)
	if err != nil {
		return nil, err
	}
	// Callers expect ascending day order.
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

func (s *CHBarArchive) CountForSymbol(ctx context.Context, symbol string) (int, error) {
	q := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE symbol = ?", s.table)
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, symbol).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return int(n), nil
}

func (s *CHBarArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHBarArchive) queryBars(ctx context.Context, q string, args ...interface{}) ([]models.HistoricalBar, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.HistoricalBar, 0, 256)
	for rows.Next() {
		var b models.HistoricalBar
		var day time.Time
		var volume sql.NullInt64
		if err := rows.Scan(&b.Symbol, &day, &b.Open, &b.High, &b.Low, &b.Close, &volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Day = xutil.NormalizeDay(day)
		if volume.Valid {
			v := volume.Int64
			b.Volume = &v
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	quoteRefreshes *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	gateWait       prometheus.Histogram
	barsUpserted   *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		quoteRefreshes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricetracker_quote_refreshes_total",
				Help: "Total number of live quote refreshes by market",
			},
			[]string{"market", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricetracker_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricetracker_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricetracker_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		gateWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricetracker_gate_wait_seconds",
				Help:    "Time spent waiting to acquire the quote source gate",
				Buckets: prometheus.DefBuckets,
			},
		),
		barsUpserted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricetracker_bars_upserted_total",
				Help: "Total number of historical bars written to the archive",
			},
			[]string{"origin"},
		),
	}
}

// RecordQuoteRefresh records one successful live quote refresh.
func (r *Recorder) RecordQuoteRefresh(market, symbol string) {
	r.quoteRefreshes.WithLabelValues(market, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordGateWait records time spent waiting for the quote source gate.
func (r *Recorder) RecordGateWait(seconds float64) {
	r.gateWait.Observe(seconds)
}

// RecordBarsUpserted records bars written to the archive by origin
// ("transfer" or "backfill").
func (r *Recorder) RecordBarsUpserted(origin string, count int) {
	r.barsUpserted.WithLabelValues(origin).Add(float64(count))
}

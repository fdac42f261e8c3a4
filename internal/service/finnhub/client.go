// Package finnhub implements the quote source against the Finnhub REST API
// and its streaming WebSocket feed. All per-vendor response shapes are
// normalized here; downstream code only ever sees canonical LiveQuote and
// HistoricalBar values.
package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	drepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/service/ratelimit"
	xhttp "github.com/Vestika/portfolio-sub001/pkg/http"
	xutil "github.com/Vestika/portfolio-sub001/pkg/util"
)

//go:generate mockgen -source=client.go -destination=mock_http_client_test.go -package=finnhub

// HTTPClient abstracts the transport so tests can stub vendor responses.
type HTTPClient interface {
	SendRequest(ctx context.Context, opts *xhttp.RequestOptions) (*http.Response, error)
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the transport.
func WithHTTPClient(hc HTTPClient) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithRateLimit caps request rate against the vendor.
func WithRateLimit(capacity, refillPerSec float64) ClientOption {
	return func(c *Client) {
		c.rlCapacity = capacity
		c.rlRefill = refillPerSec
	}
}

// WithRetryBudget sets how many times a 429 is retried before surfacing
// ErrRateLimited.
func WithRetryBudget(n int) ClientOption {
	return func(c *Client) {
		c.retryBudget = n
	}
}

// Client implements repository.QuoteSource. It is NOT safe for concurrent
// use; callers hold the serialization gate around every method.
type Client struct {
	apiKey      string
	baseURL     string
	http        HTTPClient
	limiter     *ratelimit.Limiter
	rlCapacity  float64
	rlRefill    float64
	retryBudget int
}

// New creates a Finnhub REST quote source.
func New(apiKey string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("finnhub: api key is required")
	}
	c := &Client{
		apiKey:     apiKey,
		baseURL:    "https://finnhub.io/api/v1",
		limiter:    ratelimit.New(),
		rlCapacity: 5,
		rlRefill:   2,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(timeout))
	}
	return c, nil
}

var _ drepo.QuoteSource = (*Client)(nil)

type quoteResponse struct {
	Current       float64 `json:"c"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

type candleResponse struct {
	Status  string    `json:"s"` // "ok" or "no_data"
	Times   []int64   `json:"t"`
	Opens   []float64 `json:"o"`
	Highs   []float64 `json:"h"`
	Lows    []float64 `json:"l"`
	Closes  []float64 `json:"c"`
	Volumes []float64 `json:"v"`
}

// GetCurrent fetches the current quote for a symbol and normalizes it.
func (c *Client) GetCurrent(ctx context.Context, symbol string, market models.Market) (*models.LiveQuote, error) {
	var qr quoteResponse
	err := c.getJSON(ctx, "/quote", map[string][]string{
		"symbol": {vendorSymbol(symbol, market)},
	}, &qr)
	if err != nil {
		return nil, err
	}
	if qr.Current <= 0 {
		// Finnhub answers 200 with zeroed fields for unknown symbols.
		return nil, fmt.Errorf("%w: %s", drepo.ErrSymbolNotFound, symbol)
	}

	cp := qr.ChangePercent
	return &models.LiveQuote{
		Symbol:        symbol,
		Price:         qr.Current,
		Currency:      marketCurrency(market),
		Market:        market,
		ChangePercent: &cp,
		LastUpdate:    time.Now(),
	}, nil
}

// GetHistory fetches daily bars for [from, to] and normalizes each day to
// 00:00 UTC. The returned sequence is ordered by day ascending.
func (c *Client) GetHistory(ctx context.Context, symbol string, market models.Market, from, to time.Time) ([]models.HistoricalBar, error) {
	var cr candleResponse
	err := c.getJSON(ctx, "/stock/candle", map[string][]string{
		"symbol":     {vendorSymbol(symbol, market)},
		"resolution": {"D"},
		"from":       {strconv.FormatInt(from.Unix(), 10)},
		"to":         {strconv.FormatInt(to.Unix(), 10)},
	}, &cr)
	if err != nil {
		return nil, err
	}
	if cr.Status == "no_data" || len(cr.Times) == 0 {
		return nil, nil
	}
	if cr.Status != "ok" {
		return nil, fmt.Errorf("finnhub candles: status %q for %s", cr.Status, symbol)
	}

	n := len(cr.Times)
	if len(cr.Opens) != n || len(cr.Highs) != n || len(cr.Lows) != n || len(cr.Closes) != n {
		return nil, fmt.Errorf("finnhub candles: mismatched series lengths for %s", symbol)
	}

	bars := make([]models.HistoricalBar, 0, n)
	for i := 0; i < n; i++ {
		bar := models.HistoricalBar{
			Symbol: symbol,
			Day:    xutil.NormalizeDay(time.Unix(cr.Times[i], 0)),
			Open:   cr.Opens[i],
			High:   cr.Highs[i],
			Low:    cr.Lows[i],
			Close:  cr.Closes[i],
		}
		if i < len(cr.Volumes) {
			v := int64(cr.Volumes[i])
			bar.Volume = &v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	var err error
	for attempt := 0; attempt <= c.retryBudget; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		err = c.doRequest(ctx, path, query, dest)
		if !errors.Is(err, drepo.ErrRateLimited) {
			return err
		}
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	c.waitForSlot(ctx)

	query["token"] = []string{c.apiKey}
	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	})
	if err != nil {
		return fmt.Errorf("finnhub request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return drepo.ErrSymbolNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return drepo.ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("finnhub: unexpected status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("finnhub decode: %w", err)
	}
	return nil
}

// waitForSlot blocks until the local token bucket grants a request. This is
// pacing toward the vendor quota, distinct from the serialization gate.
func (c *Client) waitForSlot(ctx context.Context) {
	for !c.limiter.Allow("finnhub", c.rlCapacity, c.rlRefill) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// vendorSymbol maps a canonical symbol to the vendor's format per market.
func vendorSymbol(symbol string, market models.Market) string {
	switch market {
	case models.MarketTASE:
		return symbol + ".TA"
	case models.MarketForex:
		return "OANDA:" + symbol
	case models.MarketCrypto:
		return "BINANCE:" + symbol
	}
	return symbol
}

func marketCurrency(market models.Market) string {
	if market == models.MarketTASE {
		return "ILS"
	}
	return "USD"
}

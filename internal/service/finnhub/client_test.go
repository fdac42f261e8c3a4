package finnhub

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	drepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	xhttp "github.com/Vestika/portfolio-sub001/pkg/http"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, hc HTTPClient) *Client {
	t.Helper()
	c, err := New("test-key", 5*time.Second,
		WithHTTPClient(hc),
		WithRateLimit(100, 100),
	)
	require.NoError(t, err)
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := New("", 5*time.Second)
	require.Error(t, err)
}

func TestGetCurrent(t *testing.T) {
	ctrl := gomock.NewController(t)
	hc := NewMockHTTPClient(ctrl)

	hc.EXPECT().
		SendRequest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, opts *xhttp.RequestOptions) (*http.Response, error) {
			assert.Equal(t, []string{"AAPL"}, opts.QueryParams["symbol"])
			assert.Equal(t, []string{"test-key"}, opts.QueryParams["token"])
			return jsonResponse(http.StatusOK, `{"c":189.84,"dp":1.25,"h":190.2,"l":188.1,"o":188.5,"pc":187.5,"t":1700000000}`), nil
		}).
		Times(1)

	c := newTestClient(t, hc)
	quote, err := c.GetCurrent(context.Background(), "AAPL", models.MarketUS)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", quote.Symbol)
	assert.Equal(t, 189.84, quote.Price)
	assert.Equal(t, "USD", quote.Currency)
	require.NotNil(t, quote.ChangePercent)
	assert.Equal(t, 1.25, *quote.ChangePercent)
}

func TestGetCurrentVendorSymbolMapping(t *testing.T) {
	cases := []struct {
		market models.Market
		symbol string
		want   string
	}{
		{models.MarketUS, "MSFT", "MSFT"},
		{models.MarketTASE, "TEVA", "TEVA.TA"},
		{models.MarketForex, "EUR_USD", "OANDA:EUR_USD"},
		{models.MarketCrypto, "BTCUSDT", "BINANCE:BTCUSDT"},
	}
	for _, tc := range cases {
		t.Run(string(tc.market), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			hc := NewMockHTTPClient(ctrl)
			hc.EXPECT().
				SendRequest(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, opts *xhttp.RequestOptions) (*http.Response, error) {
					assert.Equal(t, []string{tc.want}, opts.QueryParams["symbol"])
					return jsonResponse(http.StatusOK, `{"c":10.5,"dp":0.1,"t":1700000000}`), nil
				})

			c := newTestClient(t, hc)
			_, err := c.GetCurrent(context.Background(), tc.symbol, tc.market)
			require.NoError(t, err)
		})
	}
}

func TestGetCurrentUnknownSymbol(t *testing.T) {
	ctrl := gomock.NewController(t)
	hc := NewMockHTTPClient(ctrl)
	// Finnhub answers 200 with zeroed fields for symbols it does not know.
	hc.EXPECT().
		SendRequest(gomock.Any(), gomock.Any()).
		Return(jsonResponse(http.StatusOK, `{"c":0,"dp":0,"h":0,"l":0,"o":0,"pc":0,"t":0}`), nil)

	c := newTestClient(t, hc)
	_, err := c.GetCurrent(context.Background(), "NOPE", models.MarketUS)
	require.ErrorIs(t, err, drepo.ErrSymbolNotFound)
}

func TestGetCurrentRateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	hc := NewMockHTTPClient(ctrl)
	hc.EXPECT().
		SendRequest(gomock.Any(), gomock.Any()).
		Return(jsonResponse(http.StatusTooManyRequests, `{}`), nil)

	c := newTestClient(t, hc)
	_, err := c.GetCurrent(context.Background(), "AAPL", models.MarketUS)
	require.ErrorIs(t, err, drepo.ErrRateLimited)
}

func TestGetCurrentRetriesRateLimit(t *testing.T) {
	ctrl := gomock.NewController(t)
	hc := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		hc.EXPECT().
			SendRequest(gomock.Any(), gomock.Any()).
			Return(jsonResponse(http.StatusTooManyRequests, `{}`), nil),
		hc.EXPECT().
			SendRequest(gomock.Any(), gomock.Any()).
			Return(jsonResponse(http.StatusOK, `{"c":42.0,"dp":0.2,"t":1700000000}`), nil),
	)

	c, err := New("test-key", 5*time.Second,
		WithHTTPClient(hc),
		WithRateLimit(100, 100),
		WithRetryBudget(2),
	)
	require.NoError(t, err)

	quote, err := c.GetCurrent(context.Background(), "AAPL", models.MarketUS)
	require.NoError(t, err)
	assert.Equal(t, 42.0, quote.Price)
}

func TestGetHistory(t *testing.T) {
	ctrl := gomock.NewController(t)
	hc := NewMockHTTPClient(ctrl)
	// Two consecutive trading days at arbitrary intraday timestamps.
	hc.EXPECT().
		SendRequest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, opts *xhttp.RequestOptions) (*http.Response, error) {
			assert.Equal(t, []string{"D"}, opts.QueryParams["resolution"])
			return jsonResponse(http.StatusOK, `{
				"s":"ok",
				"t":[1699947000,1700033400],
				"o":[187.0,188.5],
				"h":[189.0,190.2],
				"l":[186.5,188.1],
				"c":[188.4,189.84],
				"v":[51000000,48000000]
			}`), nil
		})

	c := newTestClient(t, hc)
	bars, err := c.GetHistory(context.Background(), "AAPL", models.MarketUS,
		time.Date(2023, 11, 13, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	first := bars[0]
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, 187.0, first.Open)
	assert.Equal(t, 188.4, first.Close)
	require.NotNil(t, first.Volume)
	assert.Equal(t, int64(51000000), *first.Volume)

	for _, bar := range bars {
		assert.Equal(t, 0, bar.Day.Hour())
		assert.Equal(t, 0, bar.Day.Minute())
		assert.Equal(t, time.UTC, bar.Day.Location())
	}
	assert.True(t, bars[0].Day.Before(bars[1].Day))
}

func TestGetHistoryNoData(t *testing.T) {
	ctrl := gomock.NewController(t)
	hc := NewMockHTTPClient(ctrl)
	hc.EXPECT().
		SendRequest(gomock.Any(), gomock.Any()).
		Return(jsonResponse(http.StatusOK, `{"s":"no_data"}`), nil)

	c := newTestClient(t, hc)
	bars, err := c.GetHistory(context.Background(), "EMPTY", models.MarketUS, time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	assert.Nil(t, bars)
}

func TestGetHistoryMismatchedSeries(t *testing.T) {
	ctrl := gomock.NewController(t)
	hc := NewMockHTTPClient(ctrl)
	hc.EXPECT().
		SendRequest(gomock.Any(), gomock.Any()).
		Return(jsonResponse(http.StatusOK, `{"s":"ok","t":[1700000000,1700086400],"o":[1.0],"h":[2.0],"l":[0.5],"c":[1.5]}`), nil)

	c := newTestClient(t, hc)
	_, err := c.GetHistory(context.Background(), "BAD", models.MarketUS, time.Now().AddDate(0, 0, -5), time.Now())
	require.Error(t, err)
}

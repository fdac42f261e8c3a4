package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
)

func newStreamServer(t *testing.T, handle func(*websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handle(c)
	}))
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestReadDeliversNormalizedTrades(t *testing.T) {
	frame := `{"type":"trade","data":[{"s":"AAPL","p":190.1,"v":100,"t":1700000000000}]}`
	_, url := newStreamServer(t, func(c *websocket.Conn) {
		_, _, _ = c.ReadMessage() // subscribe
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
		_, _, _ = c.ReadMessage() // hold until the client leaves
	})

	ctx := context.Background()
	s := NewStream("key", url, time.Millisecond, time.Second)
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx, []models.TrackedSymbol{{Symbol: "AAPL", Market: models.MarketUS}}))
	defer s.Close()

	quotes, _ := s.Read(ctx)
	select {
	case q := <-quotes:
		require.Equal(t, "AAPL", q.Symbol)
		require.Equal(t, 190.1, q.Price)
		require.Equal(t, "USD", q.Currency)
		require.Equal(t, models.MarketUS, q.Market)
	case <-time.After(time.Second):
		t.Fatal("no trade delivered")
	}
}

// A dead connection must take its ping loop down with it; otherwise every
// reconnect cycle strands one ticker goroutine for the life of the process.
func TestReadReleasesPingLoopOnDeadConnection(t *testing.T) {
	_, url := newStreamServer(t, func(c *websocket.Conn) {
		_ = c.Close()
	})

	ctx := context.Background()
	s := NewStream("key", url, time.Millisecond, time.Millisecond)

	before := runtime.NumGoroutine()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Connect(ctx))
		quotes, errs := s.Read(ctx)
		require.Error(t, <-errs)
		for range quotes {
		}
		_ = s.Close()
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, time.Second, 10*time.Millisecond, "ping goroutines leaked across reconnects")
}

package usecase

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	"github.com/Vestika/portfolio-sub001/internal/service/finnhub"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
)

func TestStreamFeederPushesTradesIntoCache(t *testing.T) {
	frame := `{"type":"trade","data":[{"s":"MSFT","p":380.25,"v":10,"t":1700000000000}]}`
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = c.ReadMessage() // subscribe
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
		_, _, _ = c.ReadMessage() // hold open
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	registry := newFakeRegistry()
	registry.add("MSFT", models.MarketUS, nil)
	cache := livecache.New()

	f := NewStreamFeeder(
		finnhub.NewStream("key", url, 10*time.Millisecond, time.Second),
		registry, cache, testLogger(t), 10*time.Millisecond,
	)
	f.Start()
	defer f.Stop()

	require.Eventually(t, func() bool {
		q, ok := cache.Get("MSFT")
		return ok && q.Price == 380.25
	}, time.Second, 5*time.Millisecond)
}

// Each reconnect cycle must release the previous connection before dialing a
// new one, so a flapping vendor feed cannot pile up goroutines or sockets.
func TestStreamFeederReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int64
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		_, _, _ = c.ReadMessage() // subscribe
		_ = c.Close()             // drop immediately
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	registry := newFakeRegistry()
	registry.add("MSFT", models.MarketUS, nil)

	stream := finnhub.NewStream("key", url, time.Millisecond, time.Millisecond)
	f := NewStreamFeeder(stream, registry, livecache.New(), testLogger(t), time.Millisecond)
	f.Start()

	require.Eventually(t, func() bool {
		return conns.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond, "feeder stopped reconnecting")

	f.Stop()
	require.False(t, stream.IsConnected())
}

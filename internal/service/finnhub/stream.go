package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
)

// Stream pushes live quotes from the Finnhub WebSocket feed. It is a
// one-directional push channel and does not go through the serialization
// gate, which only covers the request/response vendor API.
type Stream struct {
	apiKey         string
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
	symbols   []string
	markets   map[string]models.Market
}

// NewStream creates a Finnhub WebSocket quote stream for the given symbols.
func NewStream(apiKey, websocketURL string, reconnectDelay, pingInterval time.Duration) *Stream {
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		markets:        make(map[string]models.Market),
	}
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub stream connect: %w", err)
	}
	s.conn = conn
	s.connected = true
	return nil
}

// Subscribe subscribes to the given tracked symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []models.TrackedSymbol) error {
	if s.conn == nil || !s.connected {
		return fmt.Errorf("finnhub stream not connected")
	}
	s.symbols = s.symbols[:0]
	for _, sym := range symbols {
		s.symbols = append(s.symbols, sym.Symbol)
		s.markets[sym.Symbol] = sym.Market
		msg := map[string]string{"type": "subscribe", "symbol": vendorSymbol(sym.Symbol, sym.Market)}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym.Symbol, err)
		}
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Read streams normalized LiveQuote events and errors. The ping loop lives
// exactly as long as this connection's read loop, so a dead connection never
// strands a ticker goroutine across reconnects.
func (s *Stream) Read(ctx context.Context) (<-chan models.LiveQuote, <-chan error) {
	quotes := make(chan models.LiveQuote, 1024)
	errs := make(chan error, 1)
	conn := s.conn
	readDone := make(chan struct{})

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-readDone:
				return
			case <-ticker.C:
				if conn != nil {
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(quotes)
		defer close(errs)
		defer close(readDone)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if conn == nil {
					errs <- fmt.Errorf("finnhub stream conn nil")
					return
				}
				_, b, err := conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("finnhub stream read: %w", err)
					return
				}
				var m fhMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-trade frames
					continue
				}
				if m.Type != "trade" {
					continue
				}
				for _, d := range m.Data {
					symbol, market := s.canonical(d.S)
					q := models.LiveQuote{
						Symbol:     symbol,
						Price:      d.P,
						Currency:   marketCurrency(market),
						Market:     market,
						LastUpdate: time.Unix(0, d.T*int64(time.Millisecond)),
					}
					select {
					case quotes <- q:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return quotes, errs
}

// Reconnect closes and reconnects, then re-subscribes.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	time.Sleep(s.reconnectDelay)
	if err := s.Connect(ctx); err != nil {
		return err
	}
	if s.conn == nil || !s.connected {
		return fmt.Errorf("finnhub stream not connected")
	}
	for _, sym := range s.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": vendorSymbol(sym, s.markets[sym])}
		if err := s.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("resubscribe %s: %w", sym, err)
		}
	}
	return nil
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool { return s.connected }

// canonical strips vendor prefixes/suffixes back to the tracked symbol key.
func (s *Stream) canonical(vendor string) (string, models.Market) {
	for sym, market := range s.markets {
		if vendorSymbol(sym, market) == vendor {
			return sym, market
		}
	}
	return vendor, models.MarketUS
}

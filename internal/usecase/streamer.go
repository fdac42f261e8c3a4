package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/Vestika/portfolio-sub001/internal/domain/models"
	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/service/finnhub"
	"github.com/Vestika/portfolio-sub001/internal/service/livecache"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
)

// StreamFeeder pushes vendor WebSocket trades into the live cache between
// polling cycles. The stream is a freshness optimization only: the polling
// updater remains the source of record, so stream outages just mean quotes
// age up to one polling interval.
type StreamFeeder struct {
	stream         *finnhub.Stream
	registry       domrepo.SymbolRegistry
	cache          *livecache.Cache
	logger         *applogger.Logger
	reconnectDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewStreamFeeder(
	stream *finnhub.Stream,
	registry domrepo.SymbolRegistry,
	cache *livecache.Cache,
	logger *applogger.Logger,
	reconnectDelay time.Duration,
) *StreamFeeder {
	return &StreamFeeder{
		stream:         stream,
		registry:       registry,
		cache:          cache,
		logger:         logger,
		reconnectDelay: reconnectDelay,
	}
}

// Start connects, subscribes to all tracked symbols and consumes trades until
// Stop. Idempotent.
func (f *StreamFeeder) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)
}

func (f *StreamFeeder) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() { _ = f.stream.Close() }()

	for {
		if err := f.connect(ctx); err != nil {
			f.logger.Warn("stream connect failed", applogger.Error(err))
			select {
			case <-time.After(f.reconnectDelay):
				continue
			case <-ctx.Done():
				return
			}
		}

		quotes, errs := f.stream.Read(ctx)
		if !f.consume(ctx, quotes, errs) {
			return
		}
		// Read loop ended; drop the dead connection, back off, reconnect.
		_ = f.stream.Close()
		select {
		case <-time.After(f.reconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (f *StreamFeeder) connect(ctx context.Context) error {
	if err := f.stream.Connect(ctx); err != nil {
		return err
	}
	symbols, err := f.registry.List(ctx)
	if err != nil {
		return err
	}
	return f.stream.Subscribe(ctx, symbols)
}

// consume drains the stream channels. Returns false when ctx is done.
func (f *StreamFeeder) consume(ctx context.Context, quotes <-chan models.LiveQuote, errs <-chan error) bool {
	for {
		select {
		case q, ok := <-quotes:
			if !ok {
				return true
			}
			f.cache.UpdateBatch([]models.LiveQuote{q})
		case err, ok := <-errs:
			if !ok {
				return true
			}
			f.logger.Warn("stream read error", applogger.Error(err))
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// Stop closes the stream and waits for the consumer goroutine.
func (f *StreamFeeder) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	_ = f.stream.Close()
	<-done
}

package usecase

import (
	"context"
	"sync"
	"time"

	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
)

// Scheduler drives the two periodic jobs: the live updater runs on its own
// interval, and the full sync cycle runs on a slower one. A one-shot sync
// fires shortly after startup so a fresh process converges immediately
// instead of waiting out the first interval.
type Scheduler struct {
	updater      *LiveUpdater
	synchronizer *Synchronizer
	logger       *applogger.Logger

	syncInterval time.Duration
	startupDelay time.Duration
	stopTimeout  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(
	updater *LiveUpdater,
	synchronizer *Synchronizer,
	logger *applogger.Logger,
	syncInterval time.Duration,
	startupDelay time.Duration,
	stopTimeout time.Duration,
) *Scheduler {
	return &Scheduler{
		updater:      updater,
		synchronizer: synchronizer,
		logger:       logger,
		syncInterval: syncInterval,
		startupDelay: startupDelay,
		stopTimeout:  stopTimeout,
	}
}

// Start launches the updater and the sync loop. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.updater.Start()
	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started",
		applogger.Duration("sync_interval", s.syncInterval),
		applogger.Duration("startup_delay", s.startupDelay),
	)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	select {
	case <-time.After(s.startupDelay):
		// The cache is empty on boot and the updater's first tick is a full
		// interval away, so refresh before syncing: Stage 1 then has quotes
		// to promote even when no symbol is stale yet.
		if _, err := s.updater.UpdateOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("startup refresh failed", applogger.Error(err))
		}
		s.synchronizer.RunDailySync(ctx)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.synchronizer.RunDailySync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels both loops and waits, bounded by stopTimeout, for the sync
// loop to drain. An in-flight cycle past the deadline is abandoned.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.updater.Stop()

	select {
	case <-done:
	case <-time.After(s.stopTimeout):
		s.logger.Warn("scheduler stop timed out")
	}
}

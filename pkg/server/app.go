package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "github.com/Vestika/portfolio-sub001/internal/domain/repository"
	"github.com/Vestika/portfolio-sub001/internal/usecase"
	pkgch "github.com/Vestika/portfolio-sub001/pkg/clickhouse"
	"github.com/Vestika/portfolio-sub001/pkg/config"
	xhttp "github.com/Vestika/portfolio-sub001/pkg/http"
	applogger "github.com/Vestika/portfolio-sub001/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	scheduler  *usecase.Scheduler
	feeder     *usecase.StreamFeeder
	handler    xhttp.Handler
	publisher  domrepo.Publisher
	chClient   *pkgch.Client
	httpServer *xhttp.Server
	closers    []func() error
}

// New creates a new App instance with all dependencies. feeder may be nil
// when streaming is disabled.
func New(
	cfg *config.Config,
	logger *applogger.Logger,
	scheduler *usecase.Scheduler,
	feeder *usecase.StreamFeeder,
	handler xhttp.Handler,
	publisher domrepo.Publisher,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		scheduler: scheduler,
		feeder:    feeder,
		handler:   handler,
		publisher: publisher,
		chClient:  chClient,
	}
}

// AddCloser registers an extra resource to close on shutdown.
func (a *App) AddCloser(fn func() error) { a.closers = append(a.closers, fn) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	a.scheduler.Start()
	if a.feeder != nil {
		a.feeder.Start()
		a.logger.Info("stream feeder started")
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("application started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("environment", a.cfg.Environment),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops ingestion first so no new writes race the closing clients,
// then drains the HTTP server, then closes infrastructure.
func (a *App) shutdown() error {
	if a.feeder != nil {
		a.feeder.Stop()
	}
	a.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("publisher close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			a.logger.Warn("resource close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	return nil
}

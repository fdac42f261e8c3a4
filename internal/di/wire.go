//go:build wireinject
// +build wireinject

package di

import (
	"github.com/Vestika/portfolio-sub001/pkg/config"
	"github.com/Vestika/portfolio-sub001/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideKafkaPublisher,

		// Core services
		ProvideLiveCache,
		ProvideGate,
		ProvideQuoteSource,

		// Repositories
		ProvideSymbolRegistry,
		ProvideBarArchive,

		// Use cases
		ProvideLiveUpdater,
		ProvideSynchronizer,
		ProvideQuoteService,
		ProvideScheduler,
		ProvideStreamFeeder,

		// HTTP surface and application server
		ProvidePricesHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

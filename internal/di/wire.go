//go:build wireinject
// +build wireinject

package di

import (
	"MarketStructure/pkg/config"
	"MarketStructure/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,
		ProvideAPIMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideCache,

		// Repositories
		ProvideSignalStore,
		ProvideSignalPublisher,
		ProvideSeriesBuffer,
		ProvideCandleStore,
		ProvideLevelSnapshots,

		// Domain services
		ProvideEngine,
		ProvidePlanner,

		// Use cases
		ProvideHub,
		ProvideAnalyzeUseCase,
		ProvidePeriodReset,
		ProvidePipeline,
		ProvideBarIngestHandler,

		// Transports and jobs
		ProvideKafkaConsumer,
		ProvideScheduler,
		ProvideStructureHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

//go:build wireinject
// +build wireinject

package di

import (
	"DigitFlow/pkg/config"
	"DigitFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,

		// Repositories
		ProvideStorage,
		ProvideJournal,
		ProvideReconQueue,
		ProvideSnapshotStore,

		// Deriv stream and broker
		ProvideDerivClient,
		ProvideMarketStream,
		ProvideBroker,

		// Trading core
		ProvideStatsEngine,
		ProvideEnsemble,
		ProvideRiskManager,
		ProvideController,

		// Use cases
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideTickJournalHandler,
		ProvideTradeJournalHandler,

		// HTTP
		ProvideTradingHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

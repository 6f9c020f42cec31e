//go:build wireinject
// +build wireinject

package di

import (
	"FinWatch/pkg/config"
	"FinWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideMetrics,
		ProvideRedisCache,
		ProvideClickHouseClient,

		// Repositories and transports
		ProvideDocumentStore,
		ProvideNotifyQueue,
		ProvideNotifier,
		ProvideBinanceREST,
		ProvideBinanceStream,

		// Use cases
		ProvideSymbolUniverse,
		ProvideCandleFetcher,
		ProvideDetectors,
		ProvidePriceResolver,
		ProvideAlertRegistry,
		ProvideTickPipeline,
		ProvideCandleArchiver,
		ProvideCandleStreamer,

		// Command ingress
		ProvideAlertCommandHandler,
		ProvideKafkaConsumer,
		ProvideCommandQueue,

		// HTTP
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}

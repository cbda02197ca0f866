//go:build wireinject
// +build wireinject

package di

import (
	"RevSight/pkg/config"
	"RevSight/pkg/server"

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
		ProvideRedisCache,
		ProvideCacheService,
		ProvideQueuePublisher,

		// Repositories
		ProvideModelRegistry,
		ProvideCandleSource,
		ProvideInferenceLog,
		ProvideDriftPublisher,

		// Domain services
		ProvideEngineer,
		ProvideLabeler,
		ProvideHyperparameters,
		ProvideTrainer,
		ProvideValidationConfig,
		ProvideValidator,
		ProvideDriftMonitor,

		// Use cases
		ProvideTrainingUseCase,
		ProvideDriftUseCase,
		ProvideModelCatalog,
		ProvideInferenceEventsHandler,
		ProvideRetrainJob,
		ProvideRetrainQueue,
		ProvideDriftHandler,
		ProvideScheduler,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}

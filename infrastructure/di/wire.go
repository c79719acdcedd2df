//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"decivue/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideDomainConfig,
	ProvideEngine,
	ProvideClock,
	ProvideStorage,
	ProvideCollector,
	ProvideCloudWatchRecorder,
	ProvideBusMetrics,
	ProvideTracer,
	ProvideCache,
	ProvideLocalEventBus,
	ProvideEventPublisher,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideOutboxProcessor,
	ProvideJWTValidator,
	ProvideRateLimiter,
	ProvideErrorHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}

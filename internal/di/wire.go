//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"gameflow/internal/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideTracerProvider,
	ProvideTracer,
	ProvideCollector,
	ProvideRedisClient,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideBackendRepository,
	ProvideFlowRepository,
	ProvideFanout,
	ProvideEventPublisher,
	ProvideHub,
	ProvideFlowHandler,
	ProvideSocketHandler,
	ProvideHTTPHandler,
	ProvideHTTPServer,
	ProvideFileWatcher,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Server) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}

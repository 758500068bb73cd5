//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"postservice/infrastructure/config"
	"postservice/infrastructure/persistence/sqlite"
)

// StoreSet provides the authoritative store and its repositories
var StoreSet = wire.NewSet(
	ProvideDatabase,
	sqlite.NewPostRepository,
	sqlite.NewLikeRepository,
	sqlite.NewViewRepository,
	sqlite.NewUserRepository,
	sqlite.NewOutbox,
)

// CacheSet provides the key-value store and everything layered on it
var CacheSet = wire.NewSet(
	ProvideKeyValueStore,
	ProvideLocker,
	ProvidePostViewCache,
	ProvideLikeStatusCache,
	ProvideUserDirectory,
	ProvideLikeStatusResolver,
	ProvidePostResolver,
	ProvideRateLimiter,
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideMetrics,
	ProvideTracer,
	ProvideDomainConfig,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	StoreSet,
	CacheSet,
	ProvideCounterSynchronizer,
	ProvideTransport,
	ProvideOutboxProcessor,
	ProvideUnitOfWork,
	ProvideEventPublisher,
	ProvideCommandBus,
	ProvideQueryBus,
	ProvideConfigWatcher,
	ProvideJWTValidator,
	ProvideErrorHandler,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}

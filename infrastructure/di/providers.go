package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"postservice/application/commands"
	"postservice/application/commands/bus"
	commandhandlers "postservice/application/commands/handlers"
	"postservice/application/consumers"
	"postservice/application/ports"
	"postservice/application/queries"
	querybus "postservice/application/queries/bus"
	queryhandlers "postservice/application/queries/handlers"
	"postservice/application/services"
	domainconfig "postservice/domain/config"
	"postservice/domain/core/validators"
	"postservice/infrastructure/cache"
	"postservice/infrastructure/config"
	"postservice/infrastructure/kvstore"
	"postservice/infrastructure/lock"
	"postservice/infrastructure/messaging/eventbridge"
	"postservice/infrastructure/messaging/local"
	"postservice/infrastructure/persistence/sqlite"
	"postservice/interfaces/http/rest"
	"postservice/interfaces/http/rest/handlers"
	"postservice/interfaces/http/rest/middleware"
	"postservice/pkg/auth"
	apperrors "postservice/pkg/errors"
	"postservice/pkg/observability"
)

const serviceName = "postservice"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", serviceName)), nil
}

// ProvideMetrics creates the Prometheus collectors
func ProvideMetrics() *observability.Metrics {
	return observability.NewMetrics("postservice")
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(serviceName, cfg.EnableTracing)
}

// ProvideDomainConfig derives the domain rules from the loaded configuration
func ProvideDomainConfig(cfg *config.Config) *domainconfig.DomainConfig {
	return cfg.Domain()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideDatabase opens the authoritative store and applies migrations
func ProvideDatabase(ctx context.Context, cfg *config.Config) (*sqlite.DB, error) {
	db, err := sqlite.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ProvideKeyValueStore selects the cache backend and wraps it with a timeout
// and circuit breaker
func ProvideKeyValueStore(cfg *config.Config, client *awsdynamodb.Client, metrics *observability.Metrics, logger *zap.Logger) (ports.KeyValueStore, error) {
	var backend ports.KeyValueStore
	switch cfg.Cache.Backend {
	case "memory":
		backend = kvstore.NewMemoryStore()
	case "redis":
		backend = kvstore.NewRedisStoreFromAddr(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
	case "dynamodb":
		backend = kvstore.NewDynamoDBStore(client, cfg.Cache.DynamoDBTable)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	logger.Info("Cache backend selected", zap.String("backend", cfg.Cache.Backend))
	return kvstore.NewResilientStore(
		backend,
		cfg.Cache.StoreTimeout,
		kvstore.DefaultBreakerConfig("kvstore-"+cfg.Cache.Backend),
		metrics,
		logger,
	), nil
}

// ProvideLocker creates the distributed lock over the key-value store
func ProvideLocker(store ports.KeyValueStore, logger *zap.Logger, metrics *observability.Metrics) ports.Locker {
	return lock.NewDistributedLock(store, logger, metrics)
}

func retryPolicy(d *domainconfig.DomainConfig) ports.RetryPolicy {
	return ports.RetryPolicy{Attempts: d.LockRetryAttempts, Backoff: d.LockRetryBackoff}
}

// ProvidePostViewCache creates the post view cache
func ProvidePostViewCache(store ports.KeyValueStore, locker ports.Locker, d *domainconfig.DomainConfig, logger *zap.Logger, metrics *observability.Metrics) *cache.PostViewCache {
	return cache.NewPostViewCache(store, locker, cache.Options{
		TTL:       d.CacheTTL,
		LockLease: d.LockLease,
		Retry:     retryPolicy(d),
	}, logger, metrics)
}

// ProvideLikeStatusCache creates the like status cache
func ProvideLikeStatusCache(store ports.KeyValueStore, d *domainconfig.DomainConfig, logger *zap.Logger, metrics *observability.Metrics) *cache.LikeStatusCache {
	return cache.NewLikeStatusCache(store, d.CacheTTL, logger, metrics)
}

// ProvideUserDirectory creates the cached username and profile lookups
func ProvideUserDirectory(store ports.KeyValueStore, users *sqlite.UserRepository, d *domainconfig.DomainConfig, logger *zap.Logger, metrics *observability.Metrics) *cache.CachedUserDirectory {
	return cache.NewCachedUserDirectory(store, users, d.CacheTTL, logger, metrics)
}

// ProvideLikeStatusResolver creates the lock-guarded like lookup
func ProvideLikeStatusResolver(likes *sqlite.LikeRepository, likeCache *cache.LikeStatusCache, locker ports.Locker, d *domainconfig.DomainConfig, logger *zap.Logger) *services.LikeStatusResolver {
	return services.NewLikeStatusResolver(likes, likeCache, locker, d.LockLease, retryPolicy(d), logger)
}

// ProvidePostResolver creates the post-by-id read-through
func ProvidePostResolver(
	posts *sqlite.PostRepository,
	postCache *cache.PostViewCache,
	locker ports.Locker,
	users *cache.CachedUserDirectory,
	likes *services.LikeStatusResolver,
	d *domainconfig.DomainConfig,
	logger *zap.Logger,
	tracer *observability.Tracer,
) *services.PostResolver {
	return services.NewPostResolver(posts, postCache, locker, users, likes, services.ResolverConfig{
		LockLease:      d.LockLease,
		Retry:          retryPolicy(d),
		ExpansionDepth: d.RepostExpansionDepth,
	}, logger, tracer)
}

// ProvideCounterSynchronizer creates the event consumer that keeps cached counters current
func ProvideCounterSynchronizer(
	posts *sqlite.PostRepository,
	postCache *cache.PostViewCache,
	likeCache *cache.LikeStatusCache,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *consumers.CounterSynchronizer {
	return consumers.NewCounterSynchronizer(posts, postCache, likeCache, logger, metrics)
}

// Transport is the event transport the service publishes to
type Transport struct {
	Publisher ports.EventPublisher
	close     func()
}

// Close releases the transport. The local bus drains its queues.
func (t *Transport) Close() {
	if t.close != nil {
		t.close()
	}
}

// ProvideTransport selects the event transport. The local bus delivers to the
// in-process counter synchronizer; EventBridge delivers to the counter-sync function.
func ProvideTransport(
	cfg *config.Config,
	client *awseventbridge.Client,
	sync *consumers.CounterSynchronizer,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Transport, error) {
	switch cfg.Events.Transport {
	case "local":
		busCfg := local.DefaultConfig()
		busCfg.Workers = cfg.Events.Workers
		partitioned := local.NewPartitionedBus(sync, busCfg, logger)
		return &Transport{Publisher: partitioned, close: partitioned.Close}, nil
	case "eventbridge":
		return &Transport{Publisher: eventbridge.NewPublisher(client, cfg.Events.BusName, logger, metrics)}, nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Events.Transport)
	}
}

// ProvideOutboxProcessor relays outbox rows to the transport, or returns nil
// when commands publish directly
func ProvideOutboxProcessor(cfg *config.Config, outbox *sqlite.Outbox, transport *Transport, logger *zap.Logger) *sqlite.OutboxProcessor {
	if !cfg.Events.Outbox {
		return nil
	}
	return sqlite.NewOutboxProcessor(outbox, transport.Publisher, cfg.Events.OutboxInterval, logger)
}

// ProvideEventPublisher returns what command handlers publish to: the outbox
// when enabled, the transport otherwise
func ProvideEventPublisher(cfg *config.Config, outbox *sqlite.Outbox, transport *Transport) ports.EventPublisher {
	if cfg.Events.Outbox {
		return outbox
	}
	return transport.Publisher
}

// ProvideUnitOfWork returns the transaction boundary of command handlers. With
// the outbox the event append joins the write's SQLite transaction; a direct
// transport cannot take part in one, so each step commits on its own.
func ProvideUnitOfWork(cfg *config.Config, db *sqlite.DB) ports.UnitOfWork {
	if cfg.Events.Outbox {
		return db
	}
	return ports.Immediate{}
}

// ProvideCommandBus creates the command bus and registers every command handler
func ProvideCommandBus(
	posts *sqlite.PostRepository,
	likes *sqlite.LikeRepository,
	views *sqlite.ViewRepository,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	d *domainconfig.DomainConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*bus.CommandBus, error) {
	commandBus := bus.NewCommandBus(
		bus.LoggingMiddleware(logger),
		bus.MetricsMiddleware(metrics),
	)

	create := commandhandlers.NewCreatePostHandler(posts, uow, validators.NewPostValidator(d), publisher, logger)
	del := commandhandlers.NewDeletePostHandler(posts, uow, publisher, logger)
	engagement := commandhandlers.NewEngagementHandler(posts, likes, views, uow, publisher, logger)

	registrations := []struct {
		cmd     bus.Command
		handler bus.CommandHandler
	}{
		{commands.CreatePostCommand{}, bus.Typed(create.Handle)},
		{commands.DeletePostCommand{}, bus.Typed(del.Handle)},
		{commands.LikePostCommand{}, bus.Typed(engagement.Like)},
		{commands.UnlikePostCommand{}, bus.Typed(engagement.Unlike)},
		{commands.ViewPostCommand{}, bus.Typed(engagement.View)},
	}
	for _, r := range registrations {
		if err := commandBus.Register(r.cmd, r.handler); err != nil {
			return nil, err
		}
	}

	return commandBus, nil
}

// ProvideQueryBus creates the query bus and registers every query handler
func ProvideQueryBus(
	posts *sqlite.PostRepository,
	resolver *services.PostResolver,
	likes *services.LikeStatusResolver,
	users *cache.CachedUserDirectory,
	d *domainconfig.DomainConfig,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*querybus.QueryBus, error) {
	queryBus := querybus.NewQueryBus(
		querybus.LoggingMiddleware(logger),
		querybus.MetricsMiddleware(metrics),
	)

	h := queryhandlers.NewPostQueryHandler(posts, resolver, likes, users, d, logger)

	registrations := []struct {
		query   querybus.Query
		handler querybus.QueryHandler
	}{
		{queries.GetPostQuery{}, querybus.Typed(h.GetPost)},
		{queries.ListPostsQuery{}, querybus.Typed(h.ListPosts)},
		{queries.ListUserPostsQuery{}, querybus.Typed(h.ListUserPosts)},
		{queries.ListRepliesQuery{}, querybus.Typed(h.ListReplies)},
		{queries.GetThreadQuery{}, querybus.Typed(h.GetThread)},
		{queries.GetLikeStatusQuery{}, querybus.Typed(h.GetLikeStatus)},
		{queries.CountUserPostsQuery{}, querybus.Typed(h.CountUserPosts)},
	}
	for _, r := range registrations {
		if err := queryBus.Register(r.query, r.handler); err != nil {
			return nil, err
		}
	}

	return queryBus, nil
}

// ProvideRateLimiter creates the sliding window limiter over the key-value store
func ProvideRateLimiter(cfg *config.Config, store ports.KeyValueStore, logger *zap.Logger, metrics *observability.Metrics) *auth.DistributedRateLimiter {
	return auth.NewDistributedRateLimiter(store, cfg.RateLimits(), logger, metrics)
}

// ProvideConfigWatcher hot-reloads the overlay file into the rate limiter.
// Returns nil when no overlay file is configured.
func ProvideConfigWatcher(cfg *config.Config, limiter *auth.DistributedRateLimiter, logger *zap.Logger) (*config.Watcher, error) {
	if cfg.ConfigFile == "" || cfg.IsLambda {
		return nil, nil
	}
	w, err := config.NewWatcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(next *config.Config) {
		limiter.UpdateLimits(next.RateLimits())
	})
	return w, nil
}

// ProvideJWTValidator creates the token validator
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "development-secret-change-in-production"
	}

	var audience []string
	if cfg.Auth.JWTAudience != "" {
		audience = []string{cfg.Auth.JWTAudience}
	}

	return auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.Auth.JWTIssuer,
		Audience:      audience,
	})
}

// ProvideErrorHandler creates the HTTP error mapper
func ProvideErrorHandler(cfg *config.Config, logger *zap.Logger) *apperrors.ErrorHandler {
	return apperrors.NewErrorHandler(logger, cfg.IsDevelopment())
}

// ProvideRouter assembles the HTTP surface
func ProvideRouter(
	cfg *config.Config,
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	validator *auth.JWTValidator,
	limiter *auth.DistributedRateLimiter,
	db *sqlite.DB,
	errorHandler *apperrors.ErrorHandler,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *rest.Router {
	health := handlers.NewHealthHandler(map[string]handlers.Check{
		"database": db.Ping,
	}, logger)

	return rest.NewRouter(
		handlers.NewPostHandler(commandBus, queryBus, errorHandler, logger),
		health,
		middleware.NewAuthenticator(validator, cfg.IsLambda, errorHandler, logger),
		limiter,
		metrics,
		rest.RouterConfig{
			EnableCORS:    cfg.EnableCORS,
			EnableMetrics: cfg.EnableMetrics,
		},
		logger,
	)
}

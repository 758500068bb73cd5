package di

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"postservice/application/commands/bus"
	"postservice/application/consumers"
	"postservice/application/ports"
	querybus "postservice/application/queries/bus"
	"postservice/infrastructure/config"
	"postservice/infrastructure/persistence/sqlite"
	"postservice/interfaces/http/rest"
	"postservice/pkg/auth"
	"postservice/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	DB           *sqlite.DB
	Store        ports.KeyValueStore
	Synchronizer *consumers.CounterSynchronizer
	Transport    *Transport
	Outbox       *sqlite.OutboxProcessor // nil unless the outbox is enabled
	CommandBus   *bus.CommandBus
	QueryBus     *querybus.QueryBus
	RateLimiter  *auth.DistributedRateLimiter
	Watcher      *config.Watcher // nil without an overlay file
	Router       *rest.Router
}

// Start launches the background workers
func (c *Container) Start(ctx context.Context) {
	if c.Outbox != nil {
		c.Outbox.Start(ctx)
	}
	if c.Watcher != nil {
		c.Watcher.Start()
	}
}

// Shutdown stops the workers, drains the transport and closes the stores
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Watcher != nil {
		c.Watcher.Stop()
	}
	if c.Outbox != nil {
		c.Outbox.Stop()
	}
	c.Transport.Close()

	var errs []error
	if closer, ok := c.Store.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, c.DB.Close())
	_ = c.Logger.Sync()

	return errors.Join(errs...)
}

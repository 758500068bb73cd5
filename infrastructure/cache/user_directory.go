package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"postservice/application/ports"
	"postservice/domain/core/entities"
	"postservice/pkg/cachekeys"
	"postservice/pkg/observability"

	"go.uber.org/zap"
)

// CachedUserDirectory reads users through the user:* keys with the user
// repository as the authority. Cache failures fall through to the repository.
type CachedUserDirectory struct {
	store   ports.KeyValueStore
	users   ports.UserRepository
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewCachedUserDirectory(store ports.KeyValueStore, users ports.UserRepository, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) *CachedUserDirectory {
	return &CachedUserDirectory{
		store:   store,
		users:   users,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

func (d *CachedUserDirectory) UserIDByUsername(ctx context.Context, username string) (string, error) {
	data, err := d.store.Get(ctx, cachekeys.UserByUsernameKey(username))
	if err == nil {
		d.metrics.RecordCacheLookup("user", true)
		return string(data), nil
	}
	d.miss(err, cachekeys.UserByUsernameKey(username))

	user, err := d.users.GetByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	d.remember(ctx, user)
	return user.ID, nil
}

func (d *CachedUserDirectory) UserByID(ctx context.Context, id string) (*entities.User, error) {
	var user entities.User
	if d.lookup(ctx, cachekeys.UserByIDKey(id), &user) {
		return &user, nil
	}

	found, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.remember(ctx, found)
	return found, nil
}

func (d *CachedUserDirectory) PublicUser(ctx context.Context, id string) (*entities.PublicUser, error) {
	var public entities.PublicUser
	if d.lookup(ctx, cachekeys.UserPublicKey(id), &public) {
		return &public, nil
	}

	user, err := d.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	projected := user.Public()
	d.put(ctx, cachekeys.UserPublicKey(id), projected)
	return &projected, nil
}

func (d *CachedUserDirectory) lookup(ctx context.Context, key string, into interface{}) bool {
	data, err := d.store.Get(ctx, key)
	if err != nil {
		d.miss(err, key)
		return false
	}
	if err := json.Unmarshal(data, into); err != nil {
		d.logger.Warn("Discarding undecodable user cache entry", zap.String("key", key), zap.Error(err))
		d.metrics.RecordCacheLookup("user", false)
		return false
	}
	d.metrics.RecordCacheLookup("user", true)
	return true
}

func (d *CachedUserDirectory) miss(err error, key string) {
	d.metrics.RecordCacheLookup("user", false)
	if !errors.Is(err, ports.ErrCacheMiss) {
		d.logger.Warn("User cache read failed, falling back to repository", zap.String("key", key), zap.Error(err))
	}
}

// remember populates the username and id entries for a freshly loaded user
func (d *CachedUserDirectory) remember(ctx context.Context, user *entities.User) {
	if err := d.store.Set(ctx, cachekeys.UserByUsernameKey(user.Username), []byte(user.ID), d.ttl); err != nil {
		d.logger.Warn("User cache write failed", zap.String("userID", user.ID), zap.Error(err))
		return
	}
	d.put(ctx, cachekeys.UserByIDKey(user.ID), user)
}

func (d *CachedUserDirectory) put(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := d.store.Set(ctx, key, data, d.ttl); err != nil {
		d.logger.Warn("User cache write failed", zap.String("key", key), zap.Error(err))
	}
}

var _ ports.UserDirectory = (*CachedUserDirectory)(nil)

// Package lock provides Redis-backed mutual exclusion between service
// replicas for work that must not run twice at the same time, such as an
// aggregate rebuild or a scheduled expiry sweep.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/medlan/medlan-backend/pkg/config"
	apperrors "github.com/medlan/medlan-backend/pkg/errors"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("lock held by another instance")

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Locker hands out named leases. A nil *Locker runs every function
// unguarded, which is what a single-replica deployment without Redis wants.
type Locker struct {
	client *redislock.Client
	prefix string
	logger *logger.Logger
}

// New builds a Locker whose keys are namespaced by prefix.
func New(client *redis.Client, prefix string, log *logger.Logger) *Locker {
	return &Locker{
		client: redislock.New(client),
		prefix: prefix,
		logger: log.WithComponent("lock"),
	}
}

// Do runs fn while holding key. The lease is taken for ttl and refreshed
// every ttl/2 until fn returns, so a slow fn keeps the key. When the key is
// already held Do returns a ConcurrencyConflict that also matches
// ErrNotObtained, without calling fn.
func (l *Locker) Do(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l == nil {
		return fn(ctx)
	}

	name := l.prefix + ":" + key
	lease, err := l.client.Obtain(ctx, name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return notObtained(name)
	}
	if err != nil {
		return fmt.Errorf("failed to obtain lock %s: %w", name, err)
	}

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	refreshed := make(chan struct{})
	go func() {
		defer close(refreshed)
		l.keepAlive(refreshCtx, lease, name, ttl)
	}()

	defer func() {
		stopRefresh()
		<-refreshed

		// Release with a fresh context so a cancelled caller still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn().Err(err).Str("key", name).Msg("failed to release lock")
		}
	}()

	return fn(ctx)
}

func (l *Locker) keepAlive(ctx context.Context, lease *redislock.Lock, name string, ttl time.Duration) {
	interval := ttl / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lease.Refresh(ctx, ttl, nil); err != nil {
				if ctx.Err() == nil {
					l.logger.Warn().Err(err).Str("key", name).Msg("failed to refresh lock, lease may lapse")
				}
				return
			}
		}
	}
}

func notObtained(name string) error {
	e := apperrors.ConcurrencyConflict("lock " + name + " is held by another instance")
	e.Err = fmt.Errorf("%w: %w", ErrNotObtained, apperrors.ErrConcurrencyConflict)
	return e
}

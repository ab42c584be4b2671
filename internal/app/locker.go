/**
 * @description
 * Connection-level mutual exclusion for sync and refresh. Manual syncs, queued
 * refresh requests and the cron refresh job can all target the same connection,
 * and overlapping runs would import the same rows twice before either commits.
 *
 * @notes
 * - RedisConnectionLocker is used whenever REDIS_URL is configured so replicas share locks.
 * - LocalConnectionLocker only protects a single process.
 */
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/finmind/banksync-service/internal/domain"
)

// ConnectionLocker hands out one lease per connection at a time. Acquire returns
// domain.ErrSyncInProgress when the connection is already leased.
type ConnectionLocker interface {
	Acquire(ctx context.Context, connectionID uuid.UUID) (release func(), err error)
}

// LocalConnectionLocker is an in-process ConnectionLocker.
type LocalConnectionLocker struct {
	mu     sync.Mutex
	leased map[uuid.UUID]struct{}
}

func NewLocalConnectionLocker() *LocalConnectionLocker {
	return &LocalConnectionLocker{leased: make(map[uuid.UUID]struct{})}
}

func (l *LocalConnectionLocker) Acquire(ctx context.Context, connectionID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.leased[connectionID]; busy {
		return nil, domain.ErrSyncInProgress
	}
	l.leased[connectionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.leased, connectionID)
			l.mu.Unlock()
		})
	}, nil
}

const lockReleaseTimeout = 5 * time.Second

// RedisConnectionLocker leases connections with SET NX PX. The lease expires on its
// own if the holder dies, and release only deletes the key while the token matches.
type RedisConnectionLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisConnectionLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisConnectionLocker {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "banksync:lock"
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisConnectionLocker{client: client, prefix: trimmedPrefix, ttl: ttl}
}

func (l *RedisConnectionLocker) key(connectionID uuid.UUID) string {
	return fmt.Sprintf("%s:connection:%s", l.prefix, connectionID)
}

func (l *RedisConnectionLocker) Acquire(ctx context.Context, connectionID uuid.UUID) (func(), error) {
	key := l.key(connectionID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sync lock: %w", err)
	}
	if !acquired {
		return nil, domain.ErrSyncInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
			defer cancel()
			reply, err := releaseLockScript.Run(releaseCtx, l.client, []string{key}, token).Result()
			if err != nil {
				log.Printf("level=warn component=locker msg=\"failed to release sync lock\" connection_id=%s err=%v", connectionID, err)
				return
			}
			if deleted, err := scriptInts(reply, 1); err != nil || deleted[0] == 0 {
				log.Printf("level=warn component=locker msg=\"sync lock expired before release\" connection_id=%s ttl=%s", connectionID, l.ttl)
			}
		})
	}, nil
}

package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/andresuchdata/autopo-replenish/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const lockKeyPrefix = "replenish:lock:"

var (
	// ErrLockNotAcquired is returned when another holder owns the lock.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lock this holder no longer owns.
	ErrLockNotHeld = errors.New("lock not held")
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Locker hands out mutually exclusive leases on named keys.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lease.
type Lock interface {
	Release(ctx context.Context) error
}

// NewLocker returns a Redis-backed locker when caching is enabled and a
// process-local one otherwise.
func NewLocker(cfg config.CacheConfig) (Locker, error) {
	if !cfg.Enabled {
		return NewLocalLocker(), nil
	}
	client, _, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &redisLocker{client: client}, nil
}

type redisLocker struct {
	client *redis.Client
}

type redisLock struct {
	client *redis.Client
	key    string
	value  string
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lockKey := lockKeyPrefix + key
	value := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey, value, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	log.Debug().Str("key", lockKey).Msg("acquired lock")
	return &redisLock{client: l.client, key: lockKey, value: value}, nil
}

func (lock *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.client, []string{lock.key}, lock.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	log.Debug().Str("key", lock.key).Msg("released lock")
	return nil
}

// LocalLocker serialises holders within a single process. Leases expire
// after their ttl like the Redis variant.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localLease
}

type localLease struct {
	token   string
	expires time.Time
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  string
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]localLease)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if lease, ok := l.leases[key]; ok && now.Before(lease.expires) {
		return nil, ErrLockNotAcquired
	}
	token := uuid.NewString()
	l.leases[key] = localLease{token: token, expires: now.Add(ttl)}
	return &localLock{locker: l, key: key, token: token}, nil
}

func (lock *localLock) Release(_ context.Context) error {
	lock.locker.mu.Lock()
	defer lock.locker.mu.Unlock()

	lease, ok := lock.locker.leases[lock.key]
	if !ok || lease.token != lock.token {
		return ErrLockNotHeld
	}
	delete(lock.locker.leases, lock.key)
	return nil
}

// WithLock runs fn while holding key.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func() error) error {
	lock, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release lock")
		}
	}()
	return fn()
}

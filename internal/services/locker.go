package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("could not acquire lock")

// Locker serializes work on one key across goroutines, and across processes when
// backed by Redis.
type Locker interface {
	WithLock(ctx context.Context, key string, action func() error) error
}

const lockStripes = 64

// LocalLocker 按 key 的哈希分段加锁, 不同 key 可能共用一把锁但不会死锁
type LocalLocker struct {
	stripes [lockStripes]sync.Mutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{}
}

func (l *LocalLocker) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.stripes[h.Sum32()%lockStripes]
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, action func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := l.stripe(key)
	mu.Lock()
	defer mu.Unlock()
	return action()
}

// RedisLocker takes the local stripe first so that goroutines of one process do not
// spin on Redis against each other, then a redsync mutex for other processes.
type RedisLocker struct {
	local  *LocalLocker
	rs     *redsync.Redsync
	expiry time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	pool := goredis.NewPool(client)
	return &RedisLocker{
		local:  NewLocalLocker(),
		rs:     redsync.New(pool),
		expiry: 8 * time.Second,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, action func() error) error {
	return l.local.WithLock(ctx, key, func() error {
		mutex := l.rs.NewMutex("lock:"+key,
			redsync.WithExpiry(l.expiry),
			redsync.WithTries(32),
			redsync.WithRetryDelay(50*time.Millisecond),
			redsync.WithDriftFactor(0.01),
		)
		if err := mutex.LockContext(ctx); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, key, err)
		}
		defer func() {
			_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
		}()

		return action()
	})
}

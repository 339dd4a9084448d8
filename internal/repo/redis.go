package repo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"Go_Drop/config"
	"Go_Drop/internal/log"
)

// ErrLockBusy is returned when another holder owns the lock.
var ErrLockBusy = errors.New("lock is busy")

// Locker hands out short-lived named locks.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// InitRedis connects to Redis. It returns nil when REDIS_HOST is unset so
// the process falls back to in-memory backends.
func InitRedis() *redis.Client {
	addr := config.AppConfig.RedisAddr()
	if addr == "" {
		log.Info("redis not configured, using in-memory backends")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("init redis fail: %v", err)
	}
	log.Infof("init redis success: %s", addr)
	return client
}

type RedisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// NewRedisLock creates a Redis lock helper.
func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		rdb: rdb,
		key: key,
		ttl: ttl,
	}
}

// Lock acquires a Redis-based lock.
func (l *RedisLock) Lock(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockBusy
	}
	l.token = token
	return nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases a Redis-based lock.
func (l *RedisLock) Unlock(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	_, err := unlockScript.Run(
		ctx,
		l.rdb,
		[]string{l.key},
		l.token,
	).Result()
	return err
}

// RedisLocker implements Locker across processes.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock := NewRedisLock(l.rdb, key, ttl)
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}
	return func() {
		// the request context may already be done
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := lock.Unlock(ctx); err != nil {
			log.Warnf("unlock %s failed: %v", key, err)
		}
	}, nil
}

// LocalLocker implements Locker inside one process. TTL is ignored.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Obtain(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLockBusy
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// NewLocker picks the Redis locker when a client is available.
func NewLocker(rdb *redis.Client) Locker {
	if rdb == nil {
		return NewLocalLocker()
	}
	return NewRedisLocker(rdb)
}

package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "lifecycle:lock:"
	defaultRedisTTL    = 30 * time.Second
)

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	errLockHeld = errors.New("locks: held by another owner")
)

// RedisLocker grants leases with SET NX PX. A lease is renewed while held so
// long-running actions keep their lock, and released with a compare-and-delete.
type RedisLocker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	newBackOff func() backoff.BackOff
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithPrefix overrides the key namespace.
func WithPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithTTL sets the lease length.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithBackOff sets the retry policy used while the lock is held elsewhere.
func WithBackOff(factory func() backoff.BackOff) RedisOption {
	return func(l *RedisLocker) {
		if factory != nil {
			l.newBackOff = factory
		}
	}
}

// NewRedisLocker constructs a locker over client.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: defaultRedisPrefix,
		ttl:    defaultRedisTTL,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 10 * time.Millisecond
			b.MaxInterval = 250 * time.Millisecond
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

var _ Locker = (*RedisLocker)(nil)

// Lock retries until the lease is granted or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	acquire := func() error {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("locks: acquire %s: %w", key, err))
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}
	if err := backoff.Retry(acquire, backoff.WithContext(l.newBackOff(), ctx)); err != nil {
		return nil, errors.Join(ErrLockUnavailable, err)
	}

	renewCtx, stopRenew := context.WithCancel(context.Background())
	done := make(chan struct{})
	go l.renew(renewCtx, redisKey, token, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenew()
			<-done
			_ = releaseScript.Run(context.Background(), l.client, []string{redisKey}, token).Err()
		})
	}, nil
}

func (l *RedisLocker) renew(ctx context.Context, key, token string, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			extended, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err != nil || extended == 0 {
				return
			}
		}
	}
}

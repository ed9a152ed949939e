package fixtures

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Locker serialises fixture setup for one key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MemoryLocker locks within the current process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for fixture lock %q: %w", key, ctx.Err())
	}
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the TTL only while the key still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var errLockHeld = errors.New("lock held")

// RedisLocker locks across processes that share a Redis instance. A held
// lock is kept alive every ttl/3 until released, so fixtures that outlast
// the TTL keep it; the TTL only frees locks of crashed holders.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
	wait   time.Duration
}

// NewRedisLocker connects to the Redis instance at url (redis://host:port/db).
func NewRedisLocker(ctx context.Context, url string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	return &RedisLocker{
		client: client,
		prefix: "greenhouse:fixture:",
		ttl:    30 * time.Second,
		poll:   50 * time.Millisecond,
		wait:   2 * time.Minute,
	}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := l.prefix + key
	token := uuid.NewString()

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, name, token, l.ttl).Result()
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(l.poll)), backoff.WithMaxElapsedTime(l.wait))
	if err != nil {
		return nil, fmt.Errorf("acquiring fixture lock %q: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			if err := releaseScript.Run(context.Background(), l.client, []string{name}, token).Err(); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("failed to release fixture lock")
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(key, name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := refreshScript.Run(context.Background(), l.client, []string{name}, token, l.ttl.Milliseconds()).Int()
			switch {
			case err != nil:
				log.Warn().Err(err).Str("key", key).Msg("failed to refresh fixture lock")
			case n == 0:
				log.Warn().Str("key", key).Msg("fixture lock expired while held")
				return
			}
		}
	}
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

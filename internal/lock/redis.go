package lock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLeaseTTL     = 30 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica that talks to the same Redis.
// Locks expire after ttl so a crashed holder cannot block a key forever.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewRedisLocker builds a distributed locker storing keys as prefix:name.
// Trailing colons on prefix are dropped.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "fyp:lock"
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		poll:   defaultPollInterval,
	}
}

func (l *RedisLocker) key(name string) string {
	return fmt.Sprintf("%s:%s", l.prefix, name)
}

// TryAcquire sets the key only when absent.
func (l *RedisLocker) TryAcquire(ctx context.Context, name string) (Release, bool, error) {
	token := uuid.NewString()
	key := l.key(name)

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The caller's context may already be cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}

	return release, true, nil
}

// Acquire polls until the key is free or ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (Release, error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		release, ok, err := l.TryAcquire(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, name, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Chain acquires every locker in order and releases them in reverse.
type Chain []Locker

// Acquire takes all locks or none.
func (c Chain) Acquire(ctx context.Context, key string) (Release, error) {
	releases := make([]Release, 0, len(c))
	for _, locker := range c {
		release, err := locker.Acquire(ctx, key)
		if err != nil {
			releaseAll(releases)
			return nil, err
		}
		releases = append(releases, release)
	}
	return func() { releaseAll(releases) }, nil
}

// TryAcquire takes all locks without waiting, or none.
func (c Chain) TryAcquire(ctx context.Context, key string) (Release, bool, error) {
	releases := make([]Release, 0, len(c))
	for _, locker := range c {
		release, ok, err := locker.TryAcquire(ctx, key)
		if err != nil || !ok {
			releaseAll(releases)
			return nil, false, err
		}
		releases = append(releases, release)
	}
	return func() { releaseAll(releases) }, true, nil
}

func releaseAll(releases []Release) {
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it is still held by this token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// refreshScript extends the lock only if it is still held by this token.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// RedisConfig configures a Redis-backed Locker.
type RedisConfig struct {
	Prefix        string        // Key prefix, defaults to "keylock"
	TTL           time.Duration // Lock expiry guarding against crashed holders
	RetryInterval time.Duration // Poll interval while waiting

	// RefreshInterval is how often a held lock has its TTL extended.
	// Defaults to a third of TTL.
	RefreshInterval time.Duration
}

// Redis is a Locker shared by every instance connected to the same Redis.
type Redis struct {
	client *redis.Client
	config RedisConfig
}

// NewRedis creates a Redis-backed Locker.
func NewRedis(client *redis.Client, config RedisConfig) *Redis {
	if config.Prefix == "" {
		config.Prefix = "keylock"
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 25 * time.Millisecond
	}
	if config.RefreshInterval <= 0 || config.RefreshInterval >= config.TTL {
		config.RefreshInterval = config.TTL / 3
	}
	return &Redis{client: client, config: config}
}

// Lock polls SET NX until the key is acquired or ctx is done. The TTL is
// extended in the background until Unlock is called, so a holder that
// outlives TTL keeps the key.
func (r *Redis) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := fmt.Sprintf("%s:%s", r.config.Prefix, key)
	token := uuid.NewString()

	ticker := time.NewTicker(r.config.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.config.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("keylock: acquire %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(redisKey, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// Release with a fresh context so a cancelled request still frees the key.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
		})
	}, nil
}

// keepAlive extends the lock every RefreshInterval until stop is closed or
// the lock is found to belong to someone else.
func (r *Redis) keepAlive(redisKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.config.RefreshInterval)
	defer ticker.Stop()

	ttl := r.config.TTL.Milliseconds()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), r.config.RefreshInterval)
		held, err := refreshScript.Run(ctx, r.client, []string{redisKey}, token, ttl).Int()
		cancel()
		if err == nil && held == 0 {
			return
		}
	}
}

package instancelock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/funnelbot/core/logger"
)

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	logger.Info(ctx, logger.CompLock, "redis.connect", slog.String("addr", opts.Addr))
	return client, nil
}

// RedisLock is a key with a random token and a TTL that a background loop
// keeps extending.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// AcquireRedis sets key if absent. The TTL is refreshed every ttl/3 until
// Release.
func AcquireRedis(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*RedisLock, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (key %s)", ErrHeld, key)
	}
	l := &RedisLock{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.refresh()
	logger.Info(ctx, logger.CompLock, "lock.acquire",
		slog.String("status", "ok"),
		slog.String("backend", "redis"),
		slog.String("key", key),
	)
	return l, nil
}

func (l *RedisLock) refresh() {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				logger.Warn(logger.Background(), logger.CompLock, "lock.refresh",
					slog.String("status", "retry"),
					slog.String("err", err.Error()),
				)
			case n == 0:
				logger.Error(logger.Background(), logger.CompLock, "lock.refresh",
					slog.String("status", "fail"),
					slog.String("key", l.key),
				)
				return
			}
		}
	}
}

// Release stops the refresh loop and deletes the key if still owned.
func (l *RedisLock) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		err = releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
		if err == nil {
			logger.Info(ctx, logger.CompLock, "lock.release", slog.String("status", "ok"))
		}
	})
	return err
}

package redis

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"course-payments/internal/domain"
	"course-payments/internal/domain/ports/adapter"
	"course-payments/internal/infra/metrics"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// RedisLocker is a SET NX lock with a token so only the holder can release it.
type RedisLocker struct {
	cli      *redis.Client
	attempts int
	wait     time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, attempts: 3, wait: 50 * time.Millisecond}
}

// TryLock returns domain.ErrInProgress when the key stays held after a few short retries.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	family := lockFamily(key)
	var lastErr error
	for i := 0; i < l.attempts; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			lastErr = err
		} else if ok {
			metrics.IncLock(family, "acquired")
			return token, nil
		} else {
			lastErr = nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.wait):
		}
	}
	if lastErr != nil {
		metrics.IncLock(family, "error")
		return "", lastErr
	}
	metrics.IncLock(family, "busy")
	return "", domain.ErrInProgress
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

// lockFamily keeps metric labels bounded: "initiate:u1:c1" -> "initiate".
func lockFamily(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"course-payments/internal/domain/ports/adapter"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a fixed window counter: INCR, and set the expiry on the first hit.
type RateLimiter struct {
	cli *redis.Client
}

func NewRateLimiter(client *Client) *RateLimiter {
	return &RateLimiter{cli: client.cli}
}

// the expiry is only set by the hit that opens the window
var luaIncrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)

func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := luaIncrWindow.Run(ctx, r.cli, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

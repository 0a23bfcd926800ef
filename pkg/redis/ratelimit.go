package redis

import (
	"context"
	"fmt"
	"time"
)

// FixedWindowAllow counts one hit for scope in the current window and
// reports whether the count is still within limit. Each window gets its own
// key, so a counter whose EXPIRE was lost cannot outlive its window's limit.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.store == nil {
		return false, 0, errNotInitialized
	}
	if window <= 0 {
		return false, 0, fmt.Errorf("rate limit window must be positive, got %s", window)
	}
	key := c.RateLimitKey(fmt.Sprintf("%s:%d", scope, c.windowIndex(window)))

	count, err := c.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := c.store.Expire(ctx, key, window).Err(); err != nil {
			return false, count, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count <= limit, count, nil
}

func (c *Client) windowIndex(window time.Duration) int64 {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return now().UnixNano() / int64(window)
}

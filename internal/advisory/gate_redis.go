package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireScript returns 1 when locked, 2 when cooling down, 0 on success.
var acquireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 1
end
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 2
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], '1', 'PX', ARGV[3])
end
return 0
`)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisGate is a Gate shared by every process using the same Redis. The lock
// key expires after lockTTL so a crashed holder cannot exclude a user for
// good.
type RedisGate struct {
	client   redis.Scripter
	prefix   string
	cooldown time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewRedisGate creates a gate. lockTTL should exceed the advisory timeout. A
// nil logger uses slog.Default().
func NewRedisGate(client redis.Scripter, prefix string, cooldown, lockTTL time.Duration, logger *slog.Logger) *RedisGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGate{
		client:   client,
		prefix:   prefix,
		cooldown: cooldown,
		lockTTL:  lockTTL,
		logger:   logger,
	}
}

func (g *RedisGate) keys(key string) []string {
	return []string{g.prefix + "lock:" + key, g.prefix + "cooldown:" + key}
}

// Acquire implements Gate.
func (g *RedisGate) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	keys := g.keys(key)

	res, err := acquireScript.Run(ctx, g.client, keys,
		token, g.lockTTL.Milliseconds(), g.cooldown.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire advisory gate: %w", err)
	}
	switch res {
	case 1:
		return nil, ErrBusy
	case 2:
		return nil, ErrCoolingDown
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// The lock still expires after lockTTL if this fails.
			if err := releaseScript.Run(ctx, g.client, keys[:1], token).Err(); err != nil {
				g.logger.Warn("failed to release advisory gate", "key", key, "error", err)
			}
		})
	}, nil
}

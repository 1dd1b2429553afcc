// Package ratelimit - лимит запросов по API ключу в фиксированном окне.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Decision результат проверки одного запроса.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter считает запросы ключа в текущем окне.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int) (Decision, error)
}

// INCR и EXPIRE одним вызовом: TTL ставится только первому запросу окна.
var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisLimiter(client *redis.Client, window time.Duration, logger *zap.Logger) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client: client,
		window: window,
		prefix: "launchpad:ratelimit:",
		logger: logger.Named("ratelimit"),
	}
}

// Dial подключается к redis и проверяет соединение.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: 20,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	res, err := windowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	count, _ := res[0].(int64)
	ttl, _ := res[1].(int64)
	if ttl < 0 {
		ttl = l.window.Milliseconds()
	}

	d := Decision{
		Allowed:   count <= int64(limit),
		Remaining: max(limit-int(count), 0),
		ResetIn:   time.Duration(ttl) * time.Millisecond,
	}
	if !d.Allowed {
		l.logger.Debug("Rate limit exceeded", zap.Int64("count", count), zap.Int("limit", limit))
	}
	return d, nil
}

// Memory лимитер в памяти процесса; используется без redis и в тестах.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	windows map[string]*memWindow
}

type memWindow struct {
	count int
	until time.Time
}

func NewMemory(window time.Duration) *Memory {
	if window <= 0 {
		window = time.Minute
	}
	return &Memory{
		window:  window,
		now:     time.Now,
		windows: make(map[string]*memWindow),
	}
}

func (m *Memory) Allow(_ context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.until) {
		w = &memWindow{until: now.Add(m.window)}
		m.windows[key] = w
	}
	w.count++
	return Decision{
		Allowed:   w.count <= limit,
		Remaining: max(limit-w.count, 0),
		ResetIn:   w.until.Sub(now),
	}, nil
}

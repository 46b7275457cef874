package middleware

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"tasker/config"
	"tasker/utils"
)

// RateLimiter caps requests per caller per minute. Callers are keyed by
// telegram_id when present, by IP otherwise. A limit of zero disables it.
func RateLimiter(perMinute int, redisCfg config.RedisConfig) fiber.Handler {
	if perMinute <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id := c.Query("telegram_id"); id != "" {
				return "rl:tg:" + id
			}
			return "rl:ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			utils.LogEvent("rate_limit_hit", map[string]interface{}{
				"endpoint":    c.Path(),
				"ip":          c.IP(),
				"telegram_id": c.Query("telegram_id"),
			})
			return utils.ErrorResponse(c, fiber.StatusTooManyRequests, "Too many requests. Please slow down.")
		},
		Storage: createRateLimitStorage(redisCfg),
	})
}

// createRateLimitStorage keeps counters in redis when enabled so limits hold
// across API replicas; nil makes the limiter use its in-memory store.
func createRateLimitStorage(cfg config.RedisConfig) fiber.Storage {
	if cfg.Enabled {
		return NewRedisStorage(cfg)
	}
	return nil
}

// rateLimitKeyPrefix namespaces limiter counters so Reset leaves other
// data in the same redis database (bot sessions) alone.
const rateLimitKeyPrefix = "tasker:limiter:"

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
	prefix string
}

func NewRedisStorage(cfg config.RedisConfig) *RedisStorage {
	return &RedisStorage{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: rateLimitKeyPrefix,
	}
}

func (r *RedisStorage) key(k string) string {
	return r.prefix + k
}

func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	return r.client.Set(context.Background(), r.key(key), val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), r.key(key)).Err()
}

// Reset drops only the limiter's own keys.
func (r *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

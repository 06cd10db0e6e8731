package ratelimit

import (
	"strings"

	"github.com/kolektiva/kolektiva/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// newClient returns nil when no redis address is configured; every consumer
// treats a nil Locker or GateLimiter as single-node mode.
func newClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})
}

var Module = fx.Module("rate.limit",
	fx.Provide(newClient),
	fx.Provide(NewLocker),
	fx.Provide(func(client *redis.Client, cfg config.Config) *GateLimiter {
		return NewGateLimiter(client, cfg.Gate.AttemptRate, cfg.Gate.AttemptBurst)
	}),
)

// Package redisclient builds the Redis client shared by the quota, cache,
// ad counter and history stores.
package redisclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kruthika/companion/internal/config"
)

// DefaultPingTimeout bounds startup and health-check pings.
const DefaultPingTimeout = 3 * time.Second

// New builds a client from cfg.URL, which may be a redis:// or unix:// URL,
// a bare host:port or a socket path.
func New(cfg config.RedisConfig) *redis.Client {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL}
		if strings.HasPrefix(cfg.URL, "/") {
			opts.Network = "unix"
		}
	}
	if cfg.DB != 0 {
		opts.DB = cfg.DB
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := redis.NewClient(opts)
	client.AddHook(skipMaintHandshake{})
	return client
}

// Ping checks connectivity within DefaultPingTimeout.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("ping redis: no client")
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// HealthCheck adapts Ping to the dependency monitor's check signature.
func HealthCheck(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return Ping(ctx, client)
	}
}

// skipMaintHandshake drops the CLIENT MAINT_NOTIFICATIONS handshake, which
// managed Redis deployments and miniredis reject.
type skipMaintHandshake struct{}

func isMaintHandshake(cmd redis.Cmder) bool {
	args := cmd.Args()
	if len(args) < 2 || !strings.EqualFold(cmd.FullName(), "client") {
		return false
	}
	name, ok := args[1].(string)
	return ok && strings.EqualFold(name, "maint_notifications")
}

func (skipMaintHandshake) DialHook(next redis.DialHook) redis.DialHook { return next }

func (skipMaintHandshake) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if isMaintHandshake(cmd) {
			return nil
		}
		return next(ctx, cmd)
	}
}

func (skipMaintHandshake) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		kept := cmds[:0]
		for _, cmd := range cmds {
			if !isMaintHandshake(cmd) {
				kept = append(kept, cmd)
			}
		}
		return next(ctx, kept)
	}
}

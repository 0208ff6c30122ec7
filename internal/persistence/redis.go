package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/it-request-service/internal/config"
)

// Redis holds the client behind the ticket event log.
type Redis struct {
	client *redis.Client
}

// NewRedis builds the client and probes it once. An unreachable server is
// not fatal: events keep flowing to subscribers and appends fail until it
// comes back.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  pingTimeout,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	log := logger.With(zap.String("addr", cfg.Addr), zap.String("stream_prefix", cfg.StreamPrefix))
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable; ticket timelines unavailable", zap.Error(err))
	} else {
		log.Info("connected to redis")
	}
	return &Redis{client: client}
}

// Cmdable exposes the commands the event log needs.
func (r *Redis) Cmdable() redis.Cmdable {
	if r == nil {
		return nil
	}
	return r.client
}

func (r *Redis) Close() {
	if r != nil && r.client != nil {
		_ = r.client.Close()
	}
}

// Ping backs the readiness probe.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return errors.New("redis client not configured")
	}
	return r.client.Ping(ctx).Err()
}

// Package cache wraps the optional Redis connection.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Connect parses a redis:// URL and pings the server. An empty URL yields a nil client.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		log.Info().Msg("REDIS_URL not set, token revocation and count caching are disabled")
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().Msg("Redis connected")
	return rdb, nil
}

package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenDenylist remembers revoked JWT ids until their tokens would have expired anyway.
// The zero value and a nil client are valid and revoke nothing.
type TokenDenylist struct {
	rdb *redis.Client
}

func NewTokenDenylist(rdb *redis.Client) *TokenDenylist {
	return &TokenDenylist{rdb: rdb}
}

func denylistKey(jti string) string { return "questlog:revoked:" + jti }

// Revoke stores jti for ttl. A non-positive ttl means the token is already expired.
func (d *TokenDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if d == nil || d.rdb == nil || jti == "" || ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, denylistKey(jti), 1, ttl).Err()
}

func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if d == nil || d.rdb == nil || jti == "" {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, denylistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Enabled reports whether revocations are persisted.
func (d *TokenDenylist) Enabled() bool {
	return d != nil && d.rdb != nil
}

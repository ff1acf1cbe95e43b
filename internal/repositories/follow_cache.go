package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const followCountTTL = 5 * time.Minute

// CachedFollowRepository serves follower/following counts from Redis and
// invalidates them whenever an edge changes.
type CachedFollowRepository struct {
	FollowRepository
	rdb *redis.Client
}

// NewCachedFollowRepository wraps inner; with a nil client it returns inner unchanged.
func NewCachedFollowRepository(inner FollowRepository, rdb *redis.Client) FollowRepository {
	if rdb == nil {
		return inner
	}
	return &CachedFollowRepository{FollowRepository: inner, rdb: rdb}
}

func followersKey(userID uint) string { return fmt.Sprintf("questlog:user:%d:followers", userID) }
func followingKey(userID uint) string { return fmt.Sprintf("questlog:user:%d:following", userID) }

func (r *CachedFollowRepository) Follow(ctx context.Context, followerID, followedID uint) (bool, error) {
	created, err := r.FollowRepository.Follow(ctx, followerID, followedID)
	if err == nil && created {
		r.invalidate(ctx, followerID, followedID)
	}
	return created, err
}

func (r *CachedFollowRepository) Unfollow(ctx context.Context, followerID, followedID uint) (bool, error) {
	removed, err := r.FollowRepository.Unfollow(ctx, followerID, followedID)
	if err == nil && removed {
		r.invalidate(ctx, followerID, followedID)
	}
	return removed, err
}

func (r *CachedFollowRepository) GetFollowersCount(ctx context.Context, userID uint) (int64, error) {
	return r.cachedCount(ctx, followersKey(userID), func() (int64, error) {
		return r.FollowRepository.GetFollowersCount(ctx, userID)
	})
}

func (r *CachedFollowRepository) GetFollowingCount(ctx context.Context, userID uint) (int64, error) {
	return r.cachedCount(ctx, followingKey(userID), func() (int64, error) {
		return r.FollowRepository.GetFollowingCount(ctx, userID)
	})
}

func (r *CachedFollowRepository) cachedCount(ctx context.Context, key string, load func() (int64, error)) (int64, error) {
	n, err := r.rdb.Get(ctx, key).Int64()
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("key", key).Msg("follow count cache read failed")
	}

	n, err = load()
	if err != nil {
		return 0, err
	}
	if err := r.rdb.Set(ctx, key, n, followCountTTL).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("follow count cache write failed")
	}
	return n, nil
}

func (r *CachedFollowRepository) invalidate(ctx context.Context, followerID, followedID uint) {
	if err := r.rdb.Del(ctx, followingKey(followerID), followersKey(followedID)).Err(); err != nil {
		log.Warn().Err(err).Msg("follow count cache invalidation failed")
	}
}

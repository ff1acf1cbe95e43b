package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "seed.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSeeder_Run(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	res, err := NewSeeder(db, 42).Run(ctx, Options{
		Users:          6,
		PostsPerUser:   2,
		Quests:         3,
		FollowsPerUser: 3,
		JoinsPerUser:   2,
	})
	require.NoError(t, err)

	require.Len(t, res.Users, 6)
	assert.Len(t, res.Posts, 12)
	assert.Len(t, res.Quests, 3)
	assert.Equal(t, int64(6), count(t, db, &models.User{}))
	assert.Equal(t, int64(12), count(t, db, &models.Post{}))
	assert.Equal(t, int64(3), count(t, db, &models.Quest{}))
	assert.Equal(t, int64(res.Follows), count(t, db, &models.Follower{}))
	assert.Equal(t, int64(res.Joins), count(t, db, &models.PostUser{})+count(t, db, &models.QuestParticipant{}))

	var selfFollows int64
	require.NoError(t, db.Model(&models.Follower{}).Where("follower_id = followed_id").Count(&selfFollows).Error)
	assert.Zero(t, selfFollows)

	for _, u := range res.Users {
		assert.LessOrEqual(t, len(u.Username), 64)
		assert.True(t, auth.CheckPassword(u.PasswordHash, DefaultPassword))
	}
	for _, q := range res.Quests {
		assert.GreaterOrEqual(t, q.Progress, 0)
		assert.LessOrEqual(t, q.Progress, 100)
	}
}

func TestSeeder_Clean(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	_, err := NewSeeder(db, 1).Run(ctx, Options{Users: 4, PostsPerUser: 1, Quests: 1, FollowsPerUser: 1, JoinsPerUser: 1})
	require.NoError(t, err)

	res, err := NewSeeder(db, 2).Run(ctx, Options{Users: 2, Clean: true})
	require.NoError(t, err)
	assert.Len(t, res.Users, 2)
	assert.Equal(t, int64(2), count(t, db, &models.User{}))
	assert.Zero(t, count(t, db, &models.Post{}))
	assert.Zero(t, count(t, db, &models.Quest{}))
	assert.Zero(t, count(t, db, &models.Follower{}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "ab", truncate("ab", 3))
}

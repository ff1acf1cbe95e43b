package repositories

import (
	"context"

	"github.com/anonto42/questlog/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id uint) (*models.Post, error)
	GetFollowingFeed(ctx context.Context, userID uint, page, limit int) ([]models.Post, int64, error)
	GetExplore(ctx context.Context, page, limit int) ([]models.Post, int64, error)
	GetPostsByAuthor(ctx context.Context, userID uint, page, limit int) ([]models.Post, int64, error)
	GetJoinedPosts(ctx context.Context, userID uint) ([]models.Post, error)
	GetParticipants(ctx context.Context, postID uint) ([]models.User, error)
	AddParticipant(ctx context.Context, postID, userID uint) (bool, error)
	IsParticipant(ctx context.Context, postID, userID uint) (bool, error)
	UpdateImage(ctx context.Context, postID uint, imageFile string) error
}

// PostgresPostRepository implements PostRepository on any gorm dialect.
type PostgresPostRepository struct {
	db *gorm.DB
}

func NewPostgresPostRepository(db *gorm.DB) *PostgresPostRepository {
	return &PostgresPostRepository{db: db}
}

func newestFirst(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp DESC").Order("id DESC")
}

func (r *PostgresPostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if err := r.db.WithContext(ctx).Omit("Author").Create(post).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).First(&post.Author, post.UserID).Error
}

func (r *PostgresPostRepository) GetPostByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Author").First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

// listPosts counts and pages posts matching scope, newest first.
func (r *PostgresPostRepository) listPosts(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, limit int) ([]models.Post, int64, error) {
	var posts []models.Post
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Post{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Scopes(scope, newestFirst, paginate(page, limit)).
		Preload("Author").
		Find(&posts).Error
	return posts, total, err
}

// GetFollowingFeed returns the user's own posts plus posts by everyone they follow.
// Each post matches the predicate at most once, so no deduplication pass is needed.
func (r *PostgresPostRepository) GetFollowingFeed(ctx context.Context, userID uint, page, limit int) ([]models.Post, int64, error) {
	followed := r.db.Model(&models.Follower{}).Select("followed_id").Where("follower_id = ?", userID)
	return r.listPosts(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ? OR user_id IN (?)", userID, followed)
	}, page, limit)
}

func (r *PostgresPostRepository) GetExplore(ctx context.Context, page, limit int) ([]models.Post, int64, error) {
	return r.listPosts(ctx, func(db *gorm.DB) *gorm.DB { return db }, page, limit)
}

func (r *PostgresPostRepository) GetPostsByAuthor(ctx context.Context, userID uint, page, limit int) ([]models.Post, int64, error) {
	return r.listPosts(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}, page, limit)
}

func (r *PostgresPostRepository) GetJoinedPosts(ctx context.Context, userID uint) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.PostUser{}).Select("post_id").Where("user_id = ?", userID)).
		Scopes(newestFirst).
		Preload("Author").
		Find(&posts).Error
	return posts, err
}

func (r *PostgresPostRepository) GetParticipants(ctx context.Context, postID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.PostUser{}).Select("user_id").Where("post_id = ?", postID)).
		Order("username").
		Find(&users).Error
	return users, err
}

func (r *PostgresPostRepository) AddParticipant(ctx context.Context, postID, userID uint) (bool, error) {
	row := models.PostUser{PostID: postID, UserID: userID}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresPostRepository) IsParticipant(ctx context.Context, postID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PostUser{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *PostgresPostRepository) UpdateImage(ctx context.Context, postID uint, imageFile string) error {
	return r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Update("image_file", imageFile).Error
}

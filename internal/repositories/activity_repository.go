package repositories

import (
	"context"
	"time"

	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityRepository stores the per-user activity log.
type ActivityRepository interface {
	Record(ctx context.Context, activity *models.Activity) error
	GetByActor(ctx context.Context, actorID uint, page, limit int) ([]models.Activity, int64, error)
}

func prepareActivity(a *models.Activity) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
}

// MongoActivityRepository implements ActivityRepository for MongoDB
type MongoActivityRepository struct {
	collection *mongo.Collection
}

// NewMongoActivityRepository creates a new MongoActivityRepository
func NewMongoActivityRepository(db *mongo.Database) *MongoActivityRepository {
	return &MongoActivityRepository{collection: db.Collection("activities")}
}

// EnsureIndexes creates the (actor_id, created_at) index used by GetByActor.
func (r *MongoActivityRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// Record is idempotent on the activity id, so a redelivered event is not logged twice.
func (r *MongoActivityRepository) Record(ctx context.Context, activity *models.Activity) error {
	prepareActivity(activity)
	_, err := r.collection.InsertOne(ctx, activity)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (r *MongoActivityRepository) GetByActor(ctx context.Context, actorID uint, page, limit int) ([]models.Activity, int64, error) {
	filter := bson.M{"actor_id": actorID}
	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSkip(int64(pageOffset(page, limit))).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	activities := []models.Activity{}
	if err = cursor.All(ctx, &activities); err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}

// PostgresActivityRepository keeps the activity log in the SQL database when MongoDB is not configured.
type PostgresActivityRepository struct {
	db *gorm.DB
}

func NewPostgresActivityRepository(db *gorm.DB) *PostgresActivityRepository {
	return &PostgresActivityRepository{db: db}
}

func (r *PostgresActivityRepository) Record(ctx context.Context, activity *models.Activity) error {
	prepareActivity(activity)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(activity).Error
}

func (r *PostgresActivityRepository) GetByActor(ctx context.Context, actorID uint, page, limit int) ([]models.Activity, int64, error) {
	var activities []models.Activity
	var total int64

	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Activity{}).Where("actor_id = ?", actorID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Where("actor_id = ?", actorID).
		Order("created_at DESC").
		Scopes(paginate(page, limit)).
		Find(&activities).Error
	return activities, total, err
}

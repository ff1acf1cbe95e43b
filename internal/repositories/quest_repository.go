package repositories

import (
	"context"

	"github.com/anonto42/questlog/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuestRepository defines the interface for quest data operations
type QuestRepository interface {
	CreateQuest(ctx context.Context, quest *models.Quest) error
	GetQuestByID(ctx context.Context, id uint) (*models.Quest, error)
	ListQuests(ctx context.Context, page, limit int) ([]models.Quest, int64, error)
	GetParticipants(ctx context.Context, questID uint) ([]models.User, error)
	AddParticipant(ctx context.Context, questID, userID uint) (bool, error)
	RemoveParticipant(ctx context.Context, questID, userID uint) (bool, error)
	UpdateProgress(ctx context.Context, questID uint, progress int) error
	UpdateImage(ctx context.Context, questID uint, imageFile string) error
}

type PostgresQuestRepository struct {
	db *gorm.DB
}

func NewPostgresQuestRepository(db *gorm.DB) *PostgresQuestRepository {
	return &PostgresQuestRepository{db: db}
}

func (r *PostgresQuestRepository) CreateQuest(ctx context.Context, quest *models.Quest) error {
	if err := r.db.WithContext(ctx).Omit("Creator").Create(quest).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).First(&quest.Creator, quest.CreatorID).Error
}

func (r *PostgresQuestRepository) GetQuestByID(ctx context.Context, id uint) (*models.Quest, error) {
	var quest models.Quest
	if err := r.db.WithContext(ctx).Preload("Creator").First(&quest, id).Error; err != nil {
		return nil, err
	}
	return &quest, nil
}

func (r *PostgresQuestRepository) ListQuests(ctx context.Context, page, limit int) ([]models.Quest, int64, error) {
	var quests []models.Quest
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Quest{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.WithContext(ctx).
		Preload("Creator").
		Order("created_at DESC").Order("id DESC").
		Scopes(paginate(page, limit)).
		Find(&quests).Error
	return quests, total, err
}

func (r *PostgresQuestRepository) GetParticipants(ctx context.Context, questID uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.QuestParticipant{}).Select("user_id").Where("quest_id = ?", questID)).
		Order("username").
		Find(&users).Error
	return users, err
}

func (r *PostgresQuestRepository) AddParticipant(ctx context.Context, questID, userID uint) (bool, error) {
	row := models.QuestParticipant{QuestID: questID, UserID: userID}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresQuestRepository) RemoveParticipant(ctx context.Context, questID, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("quest_id = ? AND user_id = ?", questID, userID).
		Delete(&models.QuestParticipant{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateProgress uses UpdateColumn so a progress of 0 is written rather than skipped.
func (r *PostgresQuestRepository) UpdateProgress(ctx context.Context, questID uint, progress int) error {
	return r.db.WithContext(ctx).Model(&models.Quest{}).Where("id = ?", questID).UpdateColumn("progress", progress).Error
}

func (r *PostgresQuestRepository) UpdateImage(ctx context.Context, questID uint, imageFile string) error {
	return r.db.WithContext(ctx).Model(&models.Quest{}).Where("id = ?", questID).Update("image_file", imageFile).Error
}

package models

import "time"

type Quest struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Title       string     `json:"title" gorm:"size:140;not null"`
	Description string     `json:"description" gorm:"size:500"`
	CreatedAt   time.Time  `json:"created_at" gorm:"index"`
	Deadline    *time.Time `json:"deadline"`
	Progress    int        `json:"progress" gorm:"not null;default:0"`
	CreatorID   uint       `json:"creator_id" gorm:"index;not null"`
	Creator     User       `json:"creator" gorm:"foreignKey:CreatorID"`
	ImageFile   *string    `json:"image_file" gorm:"size:128"`
}

// QuestParticipant is a row of the quest_participants association.
type QuestParticipant struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	QuestID   uint      `json:"quest_id" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (QuestParticipant) TableName() string { return "quest_participants" }

type CreateQuestRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=140"`
	Description string `json:"description" validate:"max=500"`
	Deadline    string `json:"deadline"`
}

type UpdateProgressRequest struct {
	Progress *int `json:"progress" validate:"required,min=0,max=100"`
}

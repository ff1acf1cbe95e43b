package models

import "time"

// Notification is an in-app notice for the recipient about something the actor did.
type Notification struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	EventID     *string   `json:"-" gorm:"size:36;uniqueIndex"`
	Type        string    `json:"type" gorm:"size:30;index"` // follow, post_join, quest_join
	ActorID     uint      `json:"actor_id" gorm:"index"`
	RecipientID uint      `json:"recipient_id" gorm:"index"`
	TargetID    string    `json:"target_id"`
	TargetType  string    `json:"target_type" gorm:"size:20"` // post, quest, user
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read" gorm:"default:false;index"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

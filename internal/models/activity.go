package models

import "time"

// Activity is an append-only record of something a user did.
// The same struct is stored as a MongoDB document or a SQL row.
type Activity struct {
	ID          string    `json:"id" bson:"_id,omitempty" gorm:"primaryKey;size:36"`
	Type        string    `json:"type" bson:"type" gorm:"size:40;index"`
	ActorID     uint      `json:"actor_id" bson:"actor_id" gorm:"index"`
	SubjectID   uint      `json:"subject_id" bson:"subject_id"`
	SubjectType string    `json:"subject_type" bson:"subject_type" gorm:"size:20"`
	Summary     string    `json:"summary" bson:"summary"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at" gorm:"index"`
}

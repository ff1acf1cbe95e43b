package models

import "time"

// Follower is one edge of the follow graph: FollowerID follows FollowedID.
type Follower struct {
	FollowerID uint      `json:"follower_id" gorm:"primaryKey;autoIncrement:false"`
	FollowedID uint      `json:"followed_id" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Follower) TableName() string { return "followers" }

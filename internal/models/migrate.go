package models

import "gorm.io/gorm"

// Migrate creates or updates every SQL table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Follower{},
		&Post{},
		&PostUser{},
		&Quest{},
		&QuestParticipant{},
		&Notification{},
		&Activity{},
	)
}

package models

import "time"

type Post struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Title     string     `json:"title" gorm:"size:140;not null"`
	Body      string     `json:"body" gorm:"size:140;not null"`
	Timestamp time.Time  `json:"timestamp" gorm:"index;autoCreateTime"`
	UserID    uint       `json:"user_id" gorm:"index;not null"`
	Author    User       `json:"author" gorm:"foreignKey:UserID"`
	ImageFile *string    `json:"image_file" gorm:"size:128"`
	DueDate   *time.Time `json:"due_date"`
}

// PostUser is a row of the post_users association: a user joined or was tagged on a post.
type PostUser struct {
	UserID    uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	PostID    uint      `json:"post_id" gorm:"primaryKey;autoIncrement:false;index"`
	CreatedAt time.Time `json:"created_at"`
}

func (PostUser) TableName() string { return "post_users" }

// CreatePostRequest binds from JSON or multipart form fields.
type CreatePostRequest struct {
	Title   string `json:"title" form:"title" validate:"required,min=1,max=140"`
	Body    string `json:"body" form:"body" validate:"required,min=1,max=140"`
	DueDate string `json:"due_date" form:"due_date"`
}

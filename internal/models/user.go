package models

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultProfilePic is the placeholder every account starts with. It is never deleted on replacement.
const DefaultProfilePic = "default.jpg"

// reservedUsernames shadow fixed routes under /users/ and can never be looked up as profiles.
var reservedUsernames = map[string]bool{"me": true, "search": true}

// IsReservedUsername reports whether name, in any case, is unavailable for accounts.
func IsReservedUsername(name string) bool {
	return reservedUsernames[strings.ToLower(name)]
}

type User struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	Username     string     `json:"username" gorm:"size:64;uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"size:256"`
	AboutMe      string     `json:"about_me" gorm:"size:140"`
	LastSeen     *time.Time `json:"last_seen"`
	ProfilePic   string     `json:"profile_pic" gorm:"size:128;not null;default:default.jpg"`
	FirebaseUID  *string    `json:"-" gorm:"uniqueIndex"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Avatar returns the Gravatar identicon URL for the user's email at the given pixel size.
func (u *User) Avatar(size int) string {
	sum := md5.Sum([]byte(strings.ToLower(u.Email)))
	return fmt.Sprintf("https://www.gravatar.com/avatar/%s?d=identicon&s=%d", hex.EncodeToString(sum[:]), size)
}

// UserCompact is the minimal user representation embedded in other payloads.
type UserCompact struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	ProfilePic string `json:"profile_pic"`
	Avatar     string `json:"avatar"`
}

func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:         u.ID,
		Username:   u.Username,
		ProfilePic: u.ProfilePic,
		Avatar:     u.Avatar(36),
	}
}

type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=1,max=64"`
	Email     string `json:"email" validate:"required,email,max=120"`
	Password  string `json:"password" validate:"required"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

type LoginRequest struct {
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

type ResetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordForm struct {
	Password  string `json:"password" validate:"required"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
}

type EditProfileRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	AboutMe  string `json:"about_me" validate:"max=140"`
}

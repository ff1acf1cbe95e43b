package handlers

import (
	"time"

	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/models"
)

const avatarSize = 128

type UserView struct {
	ID            uint       `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	AboutMe       string     `json:"about_me"`
	LastSeen      *time.Time `json:"last_seen"`
	ProfilePic    string     `json:"profile_pic"`
	ProfilePicURL string     `json:"profile_pic_url"`
	Avatar        string     `json:"avatar"`
}

type AuthorView struct {
	ID            uint   `json:"id"`
	Username      string `json:"username"`
	ProfilePicURL string `json:"profile_pic_url"`
	Avatar        string `json:"avatar"`
}

type PostView struct {
	ID        uint         `json:"id"`
	Title     string       `json:"title"`
	Body      string       `json:"body"`
	Timestamp time.Time    `json:"timestamp"`
	DueDate   *time.Time   `json:"due_date"`
	ImageFile *string      `json:"image_file"`
	ImageURL  string       `json:"image_url,omitempty"`
	Author    AuthorView   `json:"author"`
	Users     []AuthorView `json:"users,omitempty"`
}

type QuestView struct {
	ID           uint         `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	CreatedAt    time.Time    `json:"created_at"`
	Deadline     *time.Time   `json:"deadline"`
	Progress     int          `json:"progress"`
	ImageFile    *string      `json:"image_file"`
	ImageURL     string       `json:"image_url,omitempty"`
	Creator      AuthorView   `json:"creator"`
	Participants []AuthorView `json:"participants,omitempty"`
}

// views renders models for clients, resolving stored image keys to URLs.
type views struct {
	uploader *media.Uploader
}

func (v views) user(u *models.User, withEmail bool) UserView {
	view := UserView{
		ID:            u.ID,
		Username:      u.Username,
		AboutMe:       u.AboutMe,
		LastSeen:      u.LastSeen,
		ProfilePic:    u.ProfilePic,
		ProfilePicURL: v.uploader.URL(u.ProfilePic),
		Avatar:        u.Avatar(avatarSize),
	}
	if withEmail {
		view.Email = u.Email
	}
	return view
}

func (v views) users(users []models.User) []UserView {
	out := make([]UserView, len(users))
	for i := range users {
		out[i] = v.user(&users[i], false)
	}
	return out
}

func (v views) author(u *models.User) AuthorView {
	return AuthorView{
		ID:            u.ID,
		Username:      u.Username,
		ProfilePicURL: v.uploader.URL(u.ProfilePic),
		Avatar:        u.Avatar(36),
	}
}

func (v views) authors(users []models.User) []AuthorView {
	out := make([]AuthorView, len(users))
	for i := range users {
		out[i] = v.author(&users[i])
	}
	return out
}

func (v views) imageURL(key *string) string {
	if key == nil {
		return ""
	}
	return v.uploader.URL(*key)
}

func (v views) post(p *models.Post) PostView {
	return PostView{
		ID:        p.ID,
		Title:     p.Title,
		Body:      p.Body,
		Timestamp: p.Timestamp,
		DueDate:   p.DueDate,
		ImageFile: p.ImageFile,
		ImageURL:  v.imageURL(p.ImageFile),
		Author:    v.author(&p.Author),
	}
}

func (v views) posts(posts []models.Post) []PostView {
	out := make([]PostView, len(posts))
	for i := range posts {
		out[i] = v.post(&posts[i])
	}
	return out
}

func (v views) quest(q *models.Quest) QuestView {
	return QuestView{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		CreatedAt:   q.CreatedAt,
		Deadline:    q.Deadline,
		Progress:    q.Progress,
		ImageFile:   q.ImageFile,
		ImageURL:    v.imageURL(q.ImageFile),
		Creator:     v.author(&q.Creator),
	}
}

func (v views) quests(quests []models.Quest) []QuestView {
	out := make([]QuestView, len(quests))
	for i := range quests {
		out[i] = v.quest(&quests[i])
	}
	return out
}

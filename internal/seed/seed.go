// Package seed fills a development database with fake users, follows, posts
// and quests. It is meant for local development and demos only.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DefaultPassword is set on every seeded account.
const DefaultPassword = "password123"

type Options struct {
	Users          int
	PostsPerUser   int
	Quests         int
	FollowsPerUser int
	JoinsPerUser   int
	Clean          bool
}

type Result struct {
	Users   []models.User
	Posts   []models.Post
	Quests  []models.Quest
	Follows int
	Joins   int
}

type Seeder struct {
	db      *gorm.DB
	faker   *gofakeit.Faker
	follows *repositories.PostgresFollowRepository
	posts   *repositories.PostgresPostRepository
	quests  *repositories.PostgresQuestRepository
}

// NewSeeder makes generated data reproducible for a non-zero seed.
func NewSeeder(db *gorm.DB, seed int64) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{
		db:      db,
		faker:   gofakeit.New(seed),
		follows: repositories.NewPostgresFollowRepository(db),
		posts:   repositories.NewPostgresPostRepository(db),
		quests:  repositories.NewPostgresQuestRepository(db),
	}
}

// Run seeds everything described by opts.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := models.Migrate(s.db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if opts.Clean {
		if err := s.ClearAll(ctx); err != nil {
			return nil, fmt.Errorf("clear: %w", err)
		}
	}

	res := &Result{}
	var err error
	if res.Users, err = s.createUsers(ctx, opts.Users); err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	if res.Follows, err = s.createFollows(ctx, res.Users, opts.FollowsPerUser); err != nil {
		return nil, fmt.Errorf("follows: %w", err)
	}
	if res.Posts, err = s.createPosts(ctx, res.Users, opts.PostsPerUser); err != nil {
		return nil, fmt.Errorf("posts: %w", err)
	}
	if res.Quests, err = s.createQuests(ctx, res.Users, opts.Quests); err != nil {
		return nil, fmt.Errorf("quests: %w", err)
	}
	if res.Joins, err = s.createJoins(ctx, res, opts.JoinsPerUser); err != nil {
		return nil, fmt.Errorf("joins: %w", err)
	}

	log.Info().
		Int("users", len(res.Users)).
		Int("follows", res.Follows).
		Int("posts", len(res.Posts)).
		Int("quests", len(res.Quests)).
		Int("joins", res.Joins).
		Msg("Seeding complete")
	return res, nil
}

// ClearAll removes every seeded row, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	db := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range []interface{}{
		&models.Notification{},
		&models.Activity{},
		&models.QuestParticipant{},
		&models.PostUser{},
		&models.Follower{},
		&models.Quest{},
		&models.Post{},
		&models.User{},
	} {
		if err := db.Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (s *Seeder) createUsers(ctx context.Context, count int) ([]models.User, error) {
	// one hash for every account
	hash, err := auth.HashPassword(DefaultPassword)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, count)
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		username := truncate(fmt.Sprintf("%s%d", s.faker.Username(), i), 64)
		seen := now.Add(-time.Duration(s.faker.Number(0, 72*60)) * time.Minute)
		users = append(users, models.User{
			Username:     username,
			Email:        fmt.Sprintf("%s@%s", username, s.faker.DomainName()),
			PasswordHash: hash,
			AboutMe:      truncate(s.faker.Sentence(8), 140),
			LastSeen:     &seen,
			ProfilePic:   models.DefaultProfilePic,
		})
	}
	if len(users) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&users, 100).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Seeder) createFollows(ctx context.Context, users []models.User, perUser int) (int, error) {
	if len(users) < 2 {
		return 0, nil
	}
	created := 0
	for _, u := range users {
		for j := 0; j < perUser; j++ {
			target := users[s.faker.Number(0, len(users)-1)]
			if target.ID == u.ID {
				continue
			}
			ok, err := s.follows.Follow(ctx, u.ID, target.ID)
			if err != nil {
				return created, err
			}
			if ok {
				created++
			}
		}
	}
	return created, nil
}

func (s *Seeder) createPosts(ctx context.Context, users []models.User, perUser int) ([]models.Post, error) {
	var posts []models.Post
	now := time.Now().UTC()
	for _, u := range users {
		for j := 0; j < perUser; j++ {
			post := models.Post{
				Title:     truncate(s.faker.Sentence(5), 140),
				Body:      truncate(s.faker.Sentence(15), 140),
				UserID:    u.ID,
				Timestamp: now.Add(-time.Duration(s.faker.Number(1, 30*24*60)) * time.Minute),
			}
			if s.faker.Bool() {
				due := now.AddDate(0, 0, s.faker.Number(1, 60)).Truncate(24 * time.Hour)
				post.DueDate = &due
			}
			posts = append(posts, post)
		}
	}
	if len(posts) == 0 {
		return posts, nil
	}
	if err := s.db.WithContext(ctx).Omit("Author").CreateInBatches(&posts, 200).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Seeder) createQuests(ctx context.Context, users []models.User, count int) ([]models.Quest, error) {
	quests := make([]models.Quest, 0, count)
	if len(users) == 0 {
		return quests, nil
	}
	now := time.Now().UTC()
	for i := 0; i < count; i++ {
		creator := users[s.faker.Number(0, len(users)-1)]
		deadline := now.AddDate(0, 0, s.faker.Number(7, 120)).Truncate(24 * time.Hour)
		quest := models.Quest{
			Title:       truncate(s.faker.HipsterSentence(4), 140),
			Description: truncate(s.faker.Paragraph(1, 3, 12, " "), 500),
			Deadline:    &deadline,
			Progress:    s.faker.Number(0, 100),
			CreatorID:   creator.ID,
		}
		if err := s.quests.CreateQuest(ctx, &quest); err != nil {
			return nil, err
		}
		quests = append(quests, quest)
	}
	return quests, nil
}

func (s *Seeder) createJoins(ctx context.Context, res *Result, perUser int) (int, error) {
	joins := 0
	for _, u := range res.Users {
		for j := 0; j < perUser; j++ {
			if len(res.Posts) > 0 {
				post := res.Posts[s.faker.Number(0, len(res.Posts)-1)]
				if post.UserID != u.ID {
					ok, err := s.posts.AddParticipant(ctx, post.ID, u.ID)
					if err != nil {
						return joins, err
					}
					if ok {
						joins++
					}
				}
			}
			if len(res.Quests) > 0 {
				quest := res.Quests[s.faker.Number(0, len(res.Quests)-1)]
				if quest.CreatorID != u.ID {
					ok, err := s.quests.AddParticipant(ctx, quest.ID, u.ID)
					if err != nil {
						return joins, err
					}
					if ok {
						joins++
					}
				}
			}
		}
	}
	return joins, nil
}

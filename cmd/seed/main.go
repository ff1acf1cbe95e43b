// Command seed populates the configured database with fake data.
package main

import (
	"context"
	"flag"

	"github.com/anonto42/questlog/backend/internal/seed"
	"github.com/anonto42/questlog/backend/pkg/config"
	"github.com/anonto42/questlog/backend/pkg/logger"
	"github.com/rs/zerolog/log"
)

func main() {
	users := flag.Int("users", 20, "Number of users to create")
	posts := flag.Int("posts", 5, "Posts per user")
	quests := flag.Int("quests", 10, "Number of quests to create")
	follows := flag.Int("follows", 5, "Follow attempts per user")
	joins := flag.Int("joins", 3, "Post and quest join attempts per user")
	seedValue := flag.Int64("seed", 0, "Random seed (0 = time based)")
	clean := flag.Bool("clean", false, "Delete existing data before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.Env)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize databases")
	}
	defer db.CloseDB()

	_, err = seed.NewSeeder(db.SQL, *seedValue).Run(context.Background(), seed.Options{
		Users:          *users,
		PostsPerUser:   *posts,
		Quests:         *quests,
		FollowsPerUser: *follows,
		JoinsPerUser:   *joins,
		Clean:          *clean,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding failed")
	}
	log.Info().Str("password", seed.DefaultPassword).Msg("All seeded users share this password")
}

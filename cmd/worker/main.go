// Command worker consumes domain events from Kafka and records activity and notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/anonto42/questlog/backend/internal/events"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/anonto42/questlog/backend/internal/router"
	"github.com/anonto42/questlog/backend/pkg/config"
	"github.com/anonto42/questlog/backend/pkg/logger"
	"github.com/anonto42/questlog/backend/pkg/metrics"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.Env)

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		log.Fatal().Msg("KAFKA_BROKERS is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize databases")
	}
	defer db.CloseDB()

	if err := models.Migrate(db.SQL); err != nil {
		log.Fatal().Err(err).Msg("Failed to auto migrate models")
	}

	activities, err := router.NewActivityRepository(ctx, cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up activity store")
	}
	processor := events.NewProcessor(activities, repositories.NewPostgresNotificationRepository(db.SQL))

	consumer := events.NewConsumer(brokers, cfg.KafkaTopic, cfg.KafkaGroupID, cfg.KafkaDLQ, processor)
	defer consumer.Close()

	go metrics.Serve(ctx, cfg.MetricsPort)

	log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Str("group", cfg.KafkaGroupID).Msg("Worker started")
	if err := consumer.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Consumer stopped")
	}
	log.Info().Msg("Worker stopped")
}

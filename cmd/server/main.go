package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/questlog/backend/internal/router"
	"github.com/anonto42/questlog/backend/pkg/cache"
	"github.com/anonto42/questlog/backend/pkg/config"
	"github.com/anonto42/questlog/backend/pkg/firebase"
	"github.com/anonto42/questlog/backend/pkg/logger"
	"github.com/anonto42/questlog/backend/pkg/metrics"
	"github.com/anonto42/questlog/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Setup(cfg.LogLevel, cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize databases")
	}
	defer db.CloseDB()

	rdb, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if rdb != nil {
		defer rdb.Close()
	}

	deps := router.Dependencies{Config: cfg, DB: db, Redis: rdb}

	// Initialize Firebase
	firebaseAuth, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Firebase")
	}
	if firebaseAuth != nil {
		deps.Firebase = firebaseAuth
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()

	// Setup global middleware
	config.SetupMiddleware(e, cfg)

	// Setup routes and dependencies
	publisher, err := router.SetupRoutes(ctx, e, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up routes")
	}
	defer publisher.Close()

	go metrics.Serve(ctx, cfg.MetricsPort)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
}

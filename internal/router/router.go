package router

import (
	"context"
	"fmt"

	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/internal/events"
	"github.com/anonto42/questlog/backend/internal/handlers"
	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/middleware"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/anonto42/questlog/backend/pkg/cache"
	"github.com/anonto42/questlog/backend/pkg/config"
	"github.com/anonto42/questlog/backend/pkg/firebase"
	"github.com/anonto42/questlog/backend/pkg/mailer"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Dependencies are the connections opened by main. Redis and Firebase may be nil.
type Dependencies struct {
	Config   *config.Config
	DB       *config.DB
	Redis    *redis.Client
	Firebase firebase.IDTokenVerifier
}

// NewActivityRepository stores activity in MongoDB when it is connected, else in SQL.
func NewActivityRepository(ctx context.Context, cfg *config.Config, db *config.DB) (repositories.ActivityRepository, error) {
	if db.Mongo == nil {
		return repositories.NewPostgresActivityRepository(db.SQL), nil
	}
	repo := repositories.NewMongoActivityRepository(db.Mongo.Database(cfg.MongoDB))
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create activity indexes: %w", err)
	}
	return repo, nil
}

// NewPublisher sends events to Kafka when brokers are configured and
// otherwise runs the processor in-process.
func NewPublisher(cfg *config.Config, processor events.Handler) events.Publisher {
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("Publishing events to Kafka")
		return events.NewKafkaPublisher(brokers, cfg.KafkaTopic)
	}
	log.Info().Msg("KAFKA_BROKERS not set, events are processed inline")
	return events.NewInlinePublisher(processor)
}

// NewUploader builds the image pipeline on the configured storage backend.
func NewUploader(cfg *config.Config) (*media.Uploader, error) {
	if cfg.StorageBackend == "cloudinary" {
		storage, err := media.NewCloudinaryStorage(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			return nil, fmt.Errorf("failed to configure cloudinary: %w", err)
		}
		if cfg.WebPSidecar {
			log.Warn().Msg("WEBP_SIDECAR is ignored with the cloudinary backend")
		}
		return media.NewUploader(storage), nil
	}
	storage := media.NewLocalStorage(cfg.UploadDir, "/static")
	return media.NewUploader(storage, media.WithWebPSidecar(cfg.WebPSidecar)), nil
}

// NewMailer sends over SMTP when SMTP_HOST is set and logs messages otherwise.
func NewMailer(cfg *config.Config) (mailer.Mailer, error) {
	if cfg.SMTPHost == "" {
		log.Info().Msg("SMTP_HOST not set, emails are logged instead of sent")
		return mailer.LogMailer{}, nil
	}
	return mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
}

// SetupRoutes migrates the schema, builds repositories and handlers, and
// registers every route. The returned publisher must be closed on shutdown.
func SetupRoutes(ctx context.Context, e *echo.Echo, deps Dependencies) (events.Publisher, error) {
	cfg := deps.Config
	db := deps.DB.SQL

	if err := models.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto migrate models: %w", err)
	}
	log.Info().Msg("Database migrations completed")

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(db)
	followRepo := repositories.NewCachedFollowRepository(repositories.NewPostgresFollowRepository(db), deps.Redis)
	postRepo := repositories.NewPostgresPostRepository(db)
	questRepo := repositories.NewPostgresQuestRepository(db)
	notificationRepo := repositories.NewPostgresNotificationRepository(db)
	activityRepo, err := NewActivityRepository(ctx, cfg, deps.DB)
	if err != nil {
		return nil, err
	}

	publisher := NewPublisher(cfg, events.NewProcessor(activityRepo, notificationRepo))

	uploader, err := NewUploader(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.StorageBackend == "local" {
		e.Static("/static", cfg.UploadDir)
	}

	mail, err := NewMailer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure mailer: %w", err)
	}

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTRememberTTL)
	denylist := cache.NewTokenDenylist(deps.Redis)
	uploadLimit := config.UploadBodyLimit(cfg)

	// Health check - always accessible
	e.GET("/health", handlers.NewHealthHandler(db, deps.Redis, deps.DB.Mongo).HealthCheck)

	// --- Unprotected routes for authentication ---
	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Users:      userRepo,
		Tokens:     tokens,
		Denylist:   denylist,
		Mailer:     mail,
		Firebase:   deps.Firebase,
		Publisher:  publisher,
		AppBaseURL: cfg.AppBaseURL,
	})
	authGroup := e.Group("/api/v1/auth", config.AuthRateLimiter(cfg))
	authHandler.RegisterAuthRoutes(authGroup)
	log.Debug().Msg("Auth routes configured")

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(tokens, denylist))
	api.Use(middleware.LastSeenMiddleware(userRepo))

	authHandler.RegisterSessionRoutes(api)

	handlers.NewFollowHandler(followRepo, userRepo, publisher).RegisterFollowRoutes(api)
	handlers.NewUserHandler(userRepo, followRepo, postRepo, uploader, cfg.PostsPerPage).RegisterProfileRoutes(api, uploadLimit)
	handlers.NewActivityHandler(activityRepo, userRepo).RegisterActivityRoutes(api)
	handlers.NewPostHandler(postRepo, uploader, publisher).RegisterPostRoutes(api, uploadLimit)
	handlers.NewFeedHandler(postRepo, uploader, cfg.PostsPerPage).RegisterFeedRoutes(api)
	handlers.NewQuestHandler(questRepo, uploader, publisher, cfg.PostsPerPage).RegisterQuestRoutes(api, uploadLimit)
	handlers.NewNotificationHandler(notificationRepo, userRepo, uploader).RegisterNotificationRoutes(api)

	log.Info().Int("routes", len(e.Routes())).Msg("All routes configured")
	return publisher, nil
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

// HealthHandler pings each configured backing store.
type HealthHandler struct {
	db    *gorm.DB
	redis *redis.Client
	mongo *mongo.Client
}

// NewHealthHandler takes nil for stores that are not configured.
func NewHealthHandler(db *gorm.DB, rdb *redis.Client, mc *mongo.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, mongo: mc}
}

func (h *HealthHandler) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			log.Warn().Err(err).Str("check", name).Msg("health check failed")
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	record("database", err)

	if h.redis != nil {
		record("redis", h.redis.Ping(ctx).Err())
	}
	if h.mongo != nil {
		record("mongo", h.mongo.Ping(ctx, nil))
	}

	if !healthy {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":  "unhealthy",
			"service": "questlog-api",
			"checks":  checks,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": "questlog-api",
		"checks":  checks,
	})
}

package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/internal/events"
	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/middleware"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func getClaims(c echo.Context) *auth.Claims {
	claims, _ := c.Get(middleware.ClaimsContextKey).(*auth.Claims)
	return claims
}

// getUserIDFromContext returns 0 when the request is unauthenticated.
func getUserIDFromContext(c echo.Context) uint {
	if claims := getClaims(c); claims != nil {
		return claims.UserID
	}
	return 0
}

// actorName prefers the stored username over the token's, which goes stale after a rename.
func actorName(c echo.Context) string {
	if user, ok := c.Get(middleware.UserContextKey).(*models.User); ok && user.Username != "" {
		return user.Username
	}
	if claims := getClaims(c); claims != nil {
		return claims.Username
	}
	return ""
}

// maxPage bounds the page query so offsets stay well inside the database's range.
const maxPage = math.MaxInt32

func parsePage(c echo.Context) int {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	return min(page, maxPage)
}

func parseLimit(c echo.Context, def, maxLimit int) int {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > maxLimit {
		limit = def
	}
	return limit
}

func parseID(c echo.Context, name, label string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+label+" ID")
	}
	return uint(id), nil
}

func paginationMeta(page, limit int, total int64) echo.Map {
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return echo.Map{
		"currentPage":     page,
		"totalPages":      totalPages,
		"totalItems":      total,
		"itemsPerPage":    limit,
		"hasNextPage":     page < totalPages,
		"hasPreviousPage": page > 1,
	}
}

func respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

func respondPage(c echo.Context, data interface{}, page, limit int, total int64) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    data,
		"meta":    paginationMeta(page, limit, total),
	})
}

// parseDate accepts YYYY-MM-DD or RFC 3339. An empty string yields nil.
func parseDate(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+field+", expected YYYY-MM-DD")
}

// dbError maps record-not-found to 404 and everything else to 500.
func dbError(err error, notFound string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, notFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return echo.NewHTTPError(http.StatusConflict, "Resource already exists")
	}
	log.Error().Err(err).Msg("database error")
	return echo.NewHTTPError(http.StatusInternalServerError, "Database error")
}

// mediaError maps pipeline errors to client errors.
func mediaError(err error) error {
	switch {
	case errors.Is(err, media.ErrFileTypeNotAllowed):
		return echo.NewHTTPError(http.StatusBadRequest, "File type not allowed")
	case errors.Is(err, media.ErrInvalidImage):
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid image")
	}
	log.Error().Err(err).Msg("image upload failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store image")
}

// saveUpload runs the multipart "image" field through the pipeline. commit
// records the new key; previous is deleted only once commit succeeds.
func saveUpload(c echo.Context, uploader *media.Uploader, target media.Target, previous string, commit func(key string) error) (string, error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "No image uploaded")
	}
	file, err := fh.Open()
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Unable to read uploaded image")
	}
	defer file.Close()

	var commitErr error
	key, err := uploader.Replace(c.Request().Context(), target, fh.Filename, file, previous, func(key string) error {
		commitErr = commit(key)
		return commitErr
	})
	if commitErr != nil {
		return "", commitErr
	}
	if err != nil {
		return "", mediaError(err)
	}
	return key, nil
}

// publish never fails the request; delivery problems are logged.
func publish(ctx context.Context, p events.Publisher, ev events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("type", ev.Type).Msg("failed to publish event")
	}
}

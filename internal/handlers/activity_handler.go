package handlers

import (
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

type ActivityHandler struct {
	activityRepository repositories.ActivityRepository
	userRepository     repositories.UserRepository
}

func NewActivityHandler(activityRepo repositories.ActivityRepository, userRepo repositories.UserRepository) *ActivityHandler {
	return &ActivityHandler{
		activityRepository: activityRepo,
		userRepository:     userRepo,
	}
}

func (h *ActivityHandler) RegisterActivityRoutes(g *echo.Group) {
	g.GET("/users/:username/activity", h.GetActivity)
}

// GetActivity returns a user's activity log, newest first.
func (h *ActivityHandler) GetActivity(c echo.Context) error {
	ctx := c.Request().Context()
	username := c.Param("username")
	user, err := h.userRepository.GetUserByUsername(ctx, username)
	if err != nil {
		return dbError(err, "User "+username+" not found.")
	}

	page := parsePage(c)
	limit := parseLimit(c, 20, 100)
	activities, total, err := h.activityRepository.GetByActor(ctx, user.ID, page, limit)
	if err != nil {
		return dbError(err, "")
	}
	return respondPage(c, activities, page, limit, total)
}

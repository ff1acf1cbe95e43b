package handlers

import (
	"net/http"

	"github.com/anonto42/questlog/backend/internal/events"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// FollowHandler handles follow/unfollow HTTP requests
type FollowHandler struct {
	followRepository repositories.FollowRepository
	userRepository   repositories.UserRepository
	publisher        events.Publisher
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(followRepo repositories.FollowRepository, userRepo repositories.UserRepository, publisher events.Publisher) *FollowHandler {
	return &FollowHandler{
		followRepository: followRepo,
		userRepository:   userRepo,
		publisher:        publisher,
	}
}

// RegisterFollowRoutes registers follow-related routes
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group) {
	g.POST("/users/:username/follow", h.FollowUser)
	g.DELETE("/users/:username/follow", h.UnfollowUser)
}

func (h *FollowHandler) target(c echo.Context, selfMsg string) (uint, *models.User, error) {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return 0, nil, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	username := c.Param("username")
	user, err := h.userRepository.GetUserByUsername(c.Request().Context(), username)
	if err != nil {
		return 0, nil, dbError(err, "User "+username+" not found.")
	}
	if user.ID == currentUserID {
		return 0, nil, echo.NewHTTPError(http.StatusBadRequest, selfMsg)
	}
	return currentUserID, user, nil
}

// FollowUser follows a user. Following twice keeps a single edge.
func (h *FollowHandler) FollowUser(c echo.Context) error {
	currentUserID, user, err := h.target(c, "You cannot follow yourself!")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	created, err := h.followRepository.Follow(ctx, currentUserID, user.ID)
	if err != nil {
		return dbError(err, "")
	}

	if created {
		name := actorName(c)
		publish(ctx, h.publisher, events.New(events.UserFollowed, currentUserID, name).
			About("user", user.ID, name+" started following you").
			For(user.ID))
	}

	return respond(c, http.StatusOK, echo.Map{
		"following": true,
		"message":   "You are following " + user.Username + "!",
	})
}

// UnfollowUser unfollows a user
func (h *FollowHandler) UnfollowUser(c echo.Context) error {
	currentUserID, user, err := h.target(c, "You cannot unfollow yourself!")
	if err != nil {
		return err
	}

	if _, err := h.followRepository.Unfollow(c.Request().Context(), currentUserID, user.ID); err != nil {
		return dbError(err, "")
	}

	return respond(c, http.StatusOK, echo.Map{
		"following": false,
		"message":   "You are not following " + user.Username + ".",
	})
}

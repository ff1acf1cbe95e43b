package handlers

import (
	"net/http"
	"time"

	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	userRepository         repositories.UserRepository
	views                  views
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifRepo repositories.NotificationRepository, userRepo repositories.UserRepository, uploader *media.Uploader) *NotificationHandler {
	return &NotificationHandler{
		notificationRepository: notifRepo,
		userRepository:         userRepo,
		views:                  views{uploader: uploader},
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/grouped", h.GetGroupedNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// EnrichedNotification includes actor info
type EnrichedNotification struct {
	models.Notification
	Actor *AuthorView `json:"actor"`
}

// enrichNotifications resolves every actor with a single lookup.
func (h *NotificationHandler) enrichNotifications(c echo.Context, notifications []models.Notification) []EnrichedNotification {
	enriched := make([]EnrichedNotification, len(notifications))
	if len(notifications) == 0 {
		return enriched
	}

	seen := make(map[uint]bool)
	var ids []uint
	for _, n := range notifications {
		if !seen[n.ActorID] {
			seen[n.ActorID] = true
			ids = append(ids, n.ActorID)
		}
	}

	actors := make(map[uint]AuthorView, len(ids))
	users, err := h.userRepository.GetUsersByIDs(c.Request().Context(), ids)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load notification actors")
	}
	for i := range users {
		actors[users[i].ID] = h.views.author(&users[i])
	}

	for i, n := range notifications {
		enriched[i] = EnrichedNotification{Notification: n}
		if actor, ok := actors[n.ActorID]; ok {
			enriched[i].Actor = &actor
		}
	}
	return enriched
}

// GetNotifications returns paginated notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	page := parsePage(c)
	limit := parseLimit(c, 20, 50)

	notifications, total, err := h.notificationRepository.GetByRecipientID(c.Request().Context(), currentUserID, page, limit)
	if err != nil {
		return dbError(err, "")
	}

	return respondPage(c, echo.Map{
		"notifications": h.enrichNotifications(c, notifications),
	}, page, limit, total)
}

// GetGroupedNotifications returns notifications grouped by time period
func (h *NotificationHandler) GetGroupedNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	ctx := c.Request().Context()

	groups, err := h.notificationRepository.GetGrouped(ctx, currentUserID, time.Now().UTC())
	if err != nil {
		return dbError(err, "")
	}

	unreadCount, err := h.notificationRepository.GetUnreadCount(ctx, currentUserID)
	if err != nil {
		return dbError(err, "")
	}

	return respond(c, http.StatusOK, echo.Map{
		"notifications": echo.Map{
			"today":     h.enrichNotifications(c, groups.Today),
			"yesterday": h.enrichNotifications(c, groups.Yesterday),
			"thisWeek":  h.enrichNotifications(c, groups.ThisWeek),
			"older":     h.enrichNotifications(c, groups.Older),
		},
		"unreadCount": unreadCount,
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	count, err := h.notificationRepository.GetUnreadCount(c.Request().Context(), currentUserID)
	if err != nil {
		return dbError(err, "")
	}

	return respond(c, http.StatusOK, echo.Map{"count": count})
}

// MarkAsRead marks one of the caller's notifications as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := parseID(c, "id", "notification")
	if err != nil {
		return err
	}

	found, err := h.notificationRepository.MarkAsRead(c.Request().Context(), currentUserID, notifID)
	if err != nil {
		return dbError(err, "")
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}

	return respond(c, http.StatusOK, echo.Map{"success": true})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	if err := h.notificationRepository.MarkAllAsRead(c.Request().Context(), currentUserID); err != nil {
		return dbError(err, "")
	}

	return respond(c, http.StatusOK, echo.Map{"success": true})
}

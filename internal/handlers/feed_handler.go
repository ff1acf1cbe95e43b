package handlers

import (
	"net/http"

	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// FeedHandler handles feed-related HTTP requests
type FeedHandler struct {
	postRepository repositories.PostRepository
	views          views
	perPage        int
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(postRepo repositories.PostRepository, uploader *media.Uploader, perPage int) *FeedHandler {
	return &FeedHandler{
		postRepository: postRepo,
		views:          views{uploader: uploader},
		perPage:        perPage,
	}
}

// RegisterFeedRoutes registers feed-related routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.GetFeed)
	g.GET("/explore", h.Explore)
}

// GetFeed returns the caller's posts and posts from everyone they follow, newest first.
func (h *FeedHandler) GetFeed(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	page := parsePage(c)
	posts, total, err := h.postRepository.GetFollowingFeed(c.Request().Context(), currentUserID, page, h.perPage)
	if err != nil {
		return dbError(err, "")
	}
	return respondPage(c, h.views.posts(posts), page, h.perPage, total)
}

// Explore returns every post, newest first.
func (h *FeedHandler) Explore(c echo.Context) error {
	page := parsePage(c)
	posts, total, err := h.postRepository.GetExplore(c.Request().Context(), page, h.perPage)
	if err != nil {
		return dbError(err, "")
	}
	return respondPage(c, h.views.posts(posts), page, h.perPage, total)
}

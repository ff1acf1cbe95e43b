package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

const searchLimit = 20

// UserHandler serves profiles, profile edits and user lookups
type UserHandler struct {
	userRepository   repositories.UserRepository
	followRepository repositories.FollowRepository
	postRepository   repositories.PostRepository
	uploader         *media.Uploader
	views            views
	perPage          int
}

func NewUserHandler(userRepo repositories.UserRepository, followRepo repositories.FollowRepository, postRepo repositories.PostRepository, uploader *media.Uploader, perPage int) *UserHandler {
	return &UserHandler{
		userRepository:   userRepo,
		followRepository: followRepo,
		postRepository:   postRepo,
		uploader:         uploader,
		views:            views{uploader: uploader},
		perPage:          perPage,
	}
}

// RegisterProfileRoutes registers user routes; uploadLimit guards the picture upload.
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group, uploadLimit echo.MiddlewareFunc) {
	g.GET("/users/me", h.GetMe)
	g.PUT("/users/me", h.EditProfile)
	g.POST("/users/me/picture", h.UploadProfilePicture, uploadLimit)
	g.GET("/users/search", h.SearchUsers)
	g.GET("/users/:username", h.GetProfile)
	g.GET("/users/:username/followers", h.GetFollowers)
	g.GET("/users/:username/following", h.GetFollowing)
}

func (h *UserHandler) currentUser(c echo.Context) (*models.User, error) {
	id := getUserIDFromContext(c)
	if id == 0 {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	user, err := h.userRepository.GetUserByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "User no longer exists")
		}
		return nil, dbError(err, "")
	}
	return user, nil
}

func (h *UserHandler) userByUsername(c echo.Context) (*models.User, error) {
	username := c.Param("username")
	user, err := h.userRepository.GetUserByUsername(c.Request().Context(), username)
	if err != nil {
		return nil, dbError(err, "User "+username+" not found.")
	}
	return user, nil
}

func (h *UserHandler) GetMe(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, h.views.user(user, true))
}

// GetProfile returns a user's profile with their posts (paginated) and joined posts.
func (h *UserHandler) GetProfile(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := h.userByUsername(c)
	if err != nil {
		return err
	}
	currentUserID := getUserIDFromContext(c)

	followers, err := h.followRepository.GetFollowersCount(ctx, user.ID)
	if err != nil {
		return dbError(err, "")
	}
	following, err := h.followRepository.GetFollowingCount(ctx, user.ID)
	if err != nil {
		return dbError(err, "")
	}
	isFollowing, err := h.followRepository.IsFollowing(ctx, currentUserID, user.ID)
	if err != nil {
		return dbError(err, "")
	}

	page := parsePage(c)
	posts, total, err := h.postRepository.GetPostsByAuthor(ctx, user.ID, page, h.perPage)
	if err != nil {
		return dbError(err, "")
	}
	joined, err := h.postRepository.GetJoinedPosts(ctx, user.ID)
	if err != nil {
		return dbError(err, "")
	}

	return respondPage(c, echo.Map{
		"user":            h.views.user(user, user.ID == currentUserID),
		"followers_count": followers,
		"following_count": following,
		"is_following":    isFollowing,
		"is_self":         user.ID == currentUserID,
		"posts":           h.views.posts(posts),
		"joined_posts":    h.views.posts(joined),
	}, page, h.perPage, total)
}

// EditProfile changes the caller's username and about-me text.
func (h *UserHandler) EditProfile(c echo.Context) error {
	var req models.EditProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := c.Validate(req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	if req.Username != user.Username {
		if models.IsReservedUsername(req.Username) {
			return errUsernameTaken
		}
		_, err := h.userRepository.GetUserByUsername(ctx, req.Username)
		if err == nil {
			return errUsernameTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return dbError(err, "")
		}
	}

	user.Username = req.Username
	user.AboutMe = req.AboutMe
	if err := h.userRepository.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errUsernameTaken
		}
		return dbError(err, "")
	}
	return respond(c, http.StatusOK, h.views.user(user, true))
}

// UploadProfilePicture replaces the caller's profile picture.
func (h *UserHandler) UploadProfilePicture(c echo.Context) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}

	previous := user.ProfilePic
	_, err = saveUpload(c, h.uploader, media.ProfilePics, previous, func(key string) error {
		user.ProfilePic = key
		if err := h.userRepository.UpdateUser(c.Request().Context(), user); err != nil {
			user.ProfilePic = previous
			return dbError(err, "")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, h.views.user(user, true))
}

// SearchUsers searches users by username or email
func (h *UserHandler) SearchUsers(c echo.Context) error {
	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Search query parameter 'q' is required")
	}

	users, err := h.userRepository.SearchUsers(c.Request().Context(), query, searchLimit)
	if err != nil {
		return dbError(err, "")
	}
	return respond(c, http.StatusOK, h.views.users(users))
}

func (h *UserHandler) GetFollowers(c echo.Context) error {
	user, err := h.userByUsername(c)
	if err != nil {
		return err
	}
	users, err := h.followRepository.GetFollowers(c.Request().Context(), user.ID)
	if err != nil {
		return dbError(err, "")
	}
	return respond(c, http.StatusOK, h.views.users(users))
}

func (h *UserHandler) GetFollowing(c echo.Context) error {
	user, err := h.userByUsername(c)
	if err != nil {
		return err
	}
	users, err := h.followRepository.GetFollowing(c.Request().Context(), user.ID)
	if err != nil {
		return dbError(err, "")
	}
	return respond(c, http.StatusOK, h.views.users(users))
}

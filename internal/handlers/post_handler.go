package handlers

import (
	"net/http"
	"strings"

	"github.com/anonto42/questlog/backend/internal/events"
	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	postRepository repositories.PostRepository
	uploader       *media.Uploader
	publisher      events.Publisher
	views          views
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(postRepo repositories.PostRepository, uploader *media.Uploader, publisher events.Publisher) *PostHandler {
	return &PostHandler{
		postRepository: postRepo,
		uploader:       uploader,
		publisher:      publisher,
		views:          views{uploader: uploader},
	}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group, uploadLimit echo.MiddlewareFunc) {
	g.POST("/posts", h.CreatePost, uploadLimit)
	g.GET("/posts/:id", h.GetPost)
	g.POST("/posts/:id/join", h.JoinPost)
	g.POST("/posts/:id/image", h.UploadPostImage, uploadLimit)
}

func (h *PostHandler) loadPost(c echo.Context) (*models.Post, error) {
	id, err := parseID(c, "id", "post")
	if err != nil {
		return nil, err
	}
	post, err := h.postRepository.GetPostByID(c.Request().Context(), id)
	if err != nil {
		return nil, dbError(err, "Post not found")
	}
	return post, nil
}

// CreatePost creates a new post from JSON or a multipart form with an optional image.
func (h *PostHandler) CreatePost(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreatePostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if err := c.Validate(req); err != nil {
		return err
	}
	dueDate, err := parseDate(req.DueDate, "due_date")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	post := &models.Post{
		Title:   req.Title,
		Body:    req.Body,
		UserID:  currentUserID,
		DueDate: dueDate,
	}

	create := func() error {
		if err := h.postRepository.CreatePost(ctx, post); err != nil {
			return dbError(err, "")
		}
		return nil
	}

	withImage := false
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		_, ferr := c.FormFile("image")
		withImage = ferr == nil
	}
	if withImage {
		_, err = saveUpload(c, h.uploader, media.PostPics, "", func(key string) error {
			post.ImageFile = &key
			return create()
		})
	} else {
		err = create()
	}
	if err != nil {
		return err
	}

	publish(ctx, h.publisher, events.New(events.PostCreated, currentUserID, post.Author.Username).
		About("post", post.ID, post.Title))

	return respond(c, http.StatusCreated, h.views.post(post))
}

// GetPost returns a post with its author and joined users.
func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.loadPost(c)
	if err != nil {
		return err
	}

	participants, err := h.postRepository.GetParticipants(c.Request().Context(), post.ID)
	if err != nil {
		return dbError(err, "")
	}

	view := h.views.post(post)
	view.Users = h.views.authors(participants)
	return respond(c, http.StatusOK, view)
}

// JoinPost adds the caller to the post's users. Authors and existing participants are left alone.
func (h *PostHandler) JoinPost(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	post, err := h.loadPost(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if post.UserID == currentUserID {
		return respond(c, http.StatusOK, echo.Map{"joined": false, "reason": "author"})
	}

	added, err := h.postRepository.AddParticipant(ctx, post.ID, currentUserID)
	if err != nil {
		return dbError(err, "")
	}
	if added {
		name := actorName(c)
		publish(ctx, h.publisher, events.New(events.PostJoined, currentUserID, name).
			About("post", post.ID, name+" joined your post "+post.Title).
			For(post.UserID))
	}

	return respond(c, http.StatusOK, echo.Map{"joined": true, "already_joined": !added})
}

// UploadPostImage replaces the image on a post owned by the caller.
func (h *PostHandler) UploadPostImage(c echo.Context) error {
	post, err := h.loadPost(c)
	if err != nil {
		return err
	}
	if post.UserID != getUserIDFromContext(c) {
		return echo.NewHTTPError(http.StatusForbidden, "You are not allowed to edit this post.")
	}

	previous := ""
	if post.ImageFile != nil {
		previous = *post.ImageFile
	}
	key, err := saveUpload(c, h.uploader, media.PostPics, previous, func(key string) error {
		if err := h.postRepository.UpdateImage(c.Request().Context(), post.ID, key); err != nil {
			return dbError(err, "")
		}
		return nil
	})
	if err != nil {
		return err
	}
	post.ImageFile = &key
	return respond(c, http.StatusOK, h.views.post(post))
}

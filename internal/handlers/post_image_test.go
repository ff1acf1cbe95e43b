package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/middleware"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenImageColumn struct {
	repositories.PostRepository
}

func (brokenImageColumn) UpdateImage(context.Context, uint, string) error {
	return errors.New("connection reset")
}

func TestUploadPostImage_KeepsPreviousImageWhenSaveFails(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	alice := &models.User{Username: "alice", Email: "alice@example.com"}
	require.NoError(t, repositories.NewPostgresUserRepository(db).CreateUser(ctx, alice))

	root := t.TempDir()
	uploader := media.NewUploader(media.NewLocalStorage(root, "/static"))

	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 40, 40))))
	previous, err := uploader.Save(ctx, media.PostPics, "old.png", bytes.NewReader(img.Bytes()))
	require.NoError(t, err)

	posts := repositories.NewPostgresPostRepository(db)
	post := &models.Post{Title: "Summit", Body: "Mt. Whitney", UserID: alice.ID, ImageFile: &previous}
	require.NoError(t, db.Omit("Author").Create(post).Error)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", "new.png")
	require.NoError(t, err)
	_, err = part.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/posts/"+strconv.Itoa(int(post.ID))+"/image", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	c := echo.New().NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(strconv.Itoa(int(post.ID)))
	c.Set(middleware.ClaimsContextKey, &auth.Claims{UserID: alice.ID, Username: "alice"})

	h := NewPostHandler(brokenImageColumn{posts}, uploader, nil)
	err = h.UploadPostImage(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusInternalServerError, he.Code)

	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(previous)))
	assert.NoError(t, err, "the stored image is still on disk")

	entries, err := os.ReadDir(filepath.Join(root, "post_pics"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "the new upload is removed")
	assert.Equal(t, filepath.Base(previous), entries[0].Name())

	stored, err := posts.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ImageFile)
	assert.Equal(t, previous, *stored.ImageFile)
}

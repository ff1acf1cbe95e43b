package router

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/pkg/config"
	"github.com/anonto42/questlog/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Message string          `json:"message"`
}

type testServer struct {
	t   *testing.T
	e   *echo.Echo
	cfg *config.Config
}

func newTestServer(t *testing.T, opts ...func(*Dependencies)) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Env:            "test",
		DBDriver:       "sqlite",
		DatabaseURL:    filepath.Join(dir, "questlog.db"),
		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,
		JWTSecret:      "router-test-secret-0123456789",
		JWTTTL:         time.Hour,
		JWTRememberTTL: 24 * time.Hour,
		AuthRateLimit:  1000,
		PostsPerPage:   2,
		StorageBackend: "local",
		UploadDir:      filepath.Join(dir, "static"),
		MaxUploadMB:    5,
		AppBaseURL:     "http://questlog.test",
		CORSOrigins:    "*",
	}
	require.NoError(t, cfg.Validate())

	sqlDB, err := config.OpenSQL(cfg)
	require.NoError(t, err)
	db := &config.DB{SQL: sqlDB}
	t.Cleanup(db.CloseDB)

	e := echo.New()
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e, cfg)

	deps := Dependencies{Config: cfg, DB: db}
	for _, opt := range opts {
		opt(&deps)
	}
	publisher, err := SetupRoutes(context.Background(), e, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })

	return &testServer{t: t, e: e, cfg: cfg}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return s.send(req, token)
}

func (s *testServer) upload(path, token, filename string, content []byte) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(s.t, err)
	_, err = part.Write(content)
	require.NoError(s.t, err)
	require.NoError(s.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return s.send(req, token)
}

func (s *testServer) send(req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func (s *testServer) register(username string) uint {
	s.t.Helper()
	rec, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":  username,
		"email":     username + "@example.com",
		"password":  "secret-" + username,
		"password2": "secret-" + username,
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[struct {
		ID uint `json:"id"`
	}](s.t, env.Data).ID
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rec, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"username": username,
		"password": password,
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[struct {
		Token string `json:"token"`
	}](s.t, env.Data).Token
}

func (s *testServer) signup(username string) (uint, string) {
	id := s.register(username)
	return id, s.login(username, "secret-"+username)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// headerOnlyPNG declares w×h pixels in its IHDR chunk and carries none of them.
func headerOnlyPNG(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	_ = binary.Write(&ihdr, binary.BigEndian, w)
	_ = binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 2, 0, 0, 0})

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&out, binary.BigEndian, uint32(ihdr.Len()-4))
	out.Write(ihdr.Bytes())
	_ = binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return out.Bytes()
}

type postView struct {
	ID     uint   `json:"id"`
	Title  string `json:"title"`
	Author struct {
		Username string `json:"username"`
	} `json:"author"`
	Users []struct {
		Username string `json:"username"`
	} `json:"users"`
	ImageFile *string `json:"image_file"`
	ImageURL  string  `json:"image_url"`
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	aliceID := s.register("alice")

	t.Run("duplicate username", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"username": "alice", "email": "other@example.com", "password": "x", "password2": "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Please use a different username.", env.Message)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"username": "alice2", "email": "alice@example.com", "password": "x", "password2": "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Please use a different email address.", env.Message)
	})

	t.Run("password mismatch", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"username": "carol", "email": "carol@example.com", "password": "x", "password2": "y",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Passwords must match", env.Message)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"username": "alice", "password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid username or password", env.Message)
	})

	t.Run("missing token", func(t *testing.T) {
		rec, _ := s.do(http.MethodGet, "/api/v1/feed", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec, _ := s.do(http.MethodGet, "/api/v1/feed", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("me and logout", func(t *testing.T) {
		token := s.login("alice", "secret-alice")
		rec, env := s.do(http.MethodGet, "/api/v1/users/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		me := decode[struct {
			ID       uint       `json:"id"`
			Email    string     `json:"email"`
			LastSeen *time.Time `json:"last_seen"`
		}](t, env.Data)
		assert.Equal(t, aliceID, me.ID)
		assert.Equal(t, "alice@example.com", me.Email)
		assert.NotNil(t, me.LastSeen)

		rec, env = s.do(http.MethodPost, "/api/v1/auth/logout", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode[map[string]bool](t, env.Data)
		assert.True(t, out["logged_out"])
		assert.False(t, out["revoked"], "no redis configured")
	})

	t.Run("reset request never reveals accounts", func(t *testing.T) {
		for _, email := range []string{"alice@example.com", "ghost@example.com"} {
			rec, env := s.do(http.MethodPost, "/api/v1/auth/reset-password/request", "", map[string]string{"email": email})
			assert.Equal(t, http.StatusAccepted, rec.Code)
			assert.Contains(t, string(env.Data), "Check your email")
		}
	})

	t.Run("reset password", func(t *testing.T) {
		tokens := auth.NewTokenManager(s.cfg.JWTSecret, s.cfg.JWTTTL, s.cfg.JWTRememberTTL)
		reset, err := tokens.IssueReset(aliceID)
		require.NoError(t, err)

		rec, env := s.do(http.MethodPost, "/api/v1/auth/reset-password/"+reset, "", map[string]string{
			"password": "brand-new", "password2": "brand-new",
		})
		require.Equal(t, http.StatusOK, rec.Code, env.Message)
		s.login("alice", "brand-new")

		rec, env = s.do(http.MethodPost, "/api/v1/auth/reset-password/bogus", "", map[string]string{
			"password": "x", "password2": "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid or expired reset token", env.Message)
	})
}

func TestFollowAndFeed(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	_, bob := s.signup("bob")
	_, carol := s.signup("carol")

	for i, title := range []string{"b1", "b2"} {
		rec, _ := s.do(http.MethodPost, "/api/v1/posts", bob, map[string]string{
			"title": title, "body": fmt.Sprintf("bob post %d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	rec, _ := s.do(http.MethodPost, "/api/v1/posts", carol, map[string]string{"title": "c1", "body": "carol"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = s.do(http.MethodPost, "/api/v1/posts", alice, map[string]string{"title": "a1", "body": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("follow rules", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/v1/users/alice/follow", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "You cannot follow yourself!", env.Message)

		rec, env = s.do(http.MethodDelete, "/api/v1/users/alice/follow", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "You cannot unfollow yourself!", env.Message)

		rec, env = s.do(http.MethodPost, "/api/v1/users/ghost/follow", alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "User ghost not found.", env.Message)

		for i := 0; i < 2; i++ {
			rec, _ = s.do(http.MethodPost, "/api/v1/users/bob/follow", alice, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("feed holds own and followed posts", func(t *testing.T) {
		rec, env := s.do(http.MethodGet, "/api/v1/feed", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		posts := decode[[]postView](t, env.Data)
		require.Len(t, posts, 2, "POSTS_PER_PAGE is 2")
		assert.EqualValues(t, 3, env.Meta["totalItems"])
		assert.EqualValues(t, 2, env.Meta["totalPages"])
		assert.Equal(t, true, env.Meta["hasNextPage"])

		rec, env = s.do(http.MethodGet, "/api/v1/feed?page=2", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rest := decode[[]postView](t, env.Data)
		require.Len(t, rest, 1)

		var titles []string
		for _, p := range append(posts, rest...) {
			titles = append(titles, p.Title)
		}
		assert.ElementsMatch(t, []string{"a1", "b1", "b2"}, titles)
		assert.NotContains(t, titles, "c1")

		rec, env = s.do(http.MethodGet, "/api/v1/feed?page=9", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decode[[]postView](t, env.Data))
	})

	t.Run("explore holds everything", func(t *testing.T) {
		rec, env := s.do(http.MethodGet, "/api/v1/explore", carol, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 4, env.Meta["totalItems"])
	})

	t.Run("profile counts and follow notification", func(t *testing.T) {
		rec, env := s.do(http.MethodGet, "/api/v1/users/bob", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		profile := decode[struct {
			Followers   int64 `json:"followers_count"`
			Following   int64 `json:"following_count"`
			IsFollowing bool  `json:"is_following"`
			User        struct {
				Email string `json:"email"`
			} `json:"user"`
		}](t, env.Data)
		assert.Equal(t, int64(1), profile.Followers)
		assert.Zero(t, profile.Following)
		assert.True(t, profile.IsFollowing)
		assert.Empty(t, profile.User.Email, "email is only shown to its owner")

		rec, env = s.do(http.MethodGet, "/api/v1/notifications/unread-count", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 1, decode[map[string]int64](t, env.Data)["count"], "following twice notifies once")

		rec, env = s.do(http.MethodGet, "/api/v1/users/bob/followers", carol, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		followers := decode[[]struct {
			Username string `json:"username"`
		}](t, env.Data)
		require.Len(t, followers, 1)
		assert.Equal(t, "alice", followers[0].Username)
	})

	t.Run("unfollow", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec, _ := s.do(http.MethodDelete, "/api/v1/users/bob/follow", alice, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
		_, env := s.do(http.MethodGet, "/api/v1/feed", alice, nil)
		assert.EqualValues(t, 1, env.Meta["totalItems"])
	})

	t.Run("activity log", func(t *testing.T) {
		rec, env := s.do(http.MethodGet, "/api/v1/users/alice/activity", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		activities := decode[[]struct {
			Type string `json:"type"`
		}](t, env.Data)
		var types []string
		for _, a := range activities {
			types = append(types, a.Type)
		}
		assert.Contains(t, types, "user.registered")
		assert.Contains(t, types, "user.followed")
		assert.Contains(t, types, "post.created")
	})
}

func TestPosts(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	_, bob := s.signup("bob")

	rec, env := s.do(http.MethodPost, "/api/v1/posts", bob, map[string]string{
		"title": "Summit", "body": "Mt. Whitney", "due_date": "2026-08-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[postView](t, env.Data)
	assert.Equal(t, "bob", post.Author.Username)
	path := fmt.Sprintf("/api/v1/posts/%d", post.ID)

	t.Run("validation", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, "/api/v1/posts", bob, map[string]string{"title": "", "body": "x"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "title is required", env.Message)

		rec, env = s.do(http.MethodPost, "/api/v1/posts", bob, map[string]string{"title": "t", "body": "x", "due_date": "next week"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid due_date, expected YYYY-MM-DD", env.Message)

		long := make([]byte, 141)
		for i := range long {
			long[i] = 'a'
		}
		rec, _ = s.do(http.MethodPost, "/api/v1/posts", bob, map[string]string{"title": "t", "body": string(long)})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing post", func(t *testing.T) {
		rec, _ := s.do(http.MethodGet, "/api/v1/posts/999", alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec, _ = s.do(http.MethodPost, "/api/v1/posts/999/join", alice, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec, _ = s.do(http.MethodGet, "/api/v1/posts/abc", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("join", func(t *testing.T) {
		rec, env := s.do(http.MethodPost, path+"/join", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, decode[map[string]any](t, env.Data)["joined"], "authors do not join their own post")

		for i := 0; i < 2; i++ {
			rec, _ = s.do(http.MethodPost, path+"/join", alice, nil)
			require.Equal(t, http.StatusOK, rec.Code)
		}

		rec, env = s.do(http.MethodGet, path, alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[postView](t, env.Data)
		require.Len(t, got.Users, 1)
		assert.Equal(t, "alice", got.Users[0].Username)

		rec, env = s.do(http.MethodGet, "/api/v1/notifications", bob, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		notes := decode[struct {
			Notifications []struct {
				Type  string `json:"type"`
				Actor struct {
					Username string `json:"username"`
				} `json:"actor"`
			} `json:"notifications"`
		}](t, env.Data).Notifications
		require.Len(t, notes, 1)
		assert.Equal(t, "post_join", notes[0].Type)
		assert.Equal(t, "alice", notes[0].Actor.Username)

		rec, env = s.do(http.MethodGet, "/api/v1/users/alice", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		profile := decode[struct {
			JoinedPosts []postView `json:"joined_posts"`
		}](t, env.Data)
		require.Len(t, profile.JoinedPosts, 1)
		assert.Equal(t, post.ID, profile.JoinedPosts[0].ID)
	})

	t.Run("image upload", func(t *testing.T) {
		rec, env := s.upload(path+"/image", alice, "pic.png", pngBytes(t, 800, 400))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "You are not allowed to edit this post.", env.Message)

		rec, env = s.upload(path+"/image", bob, "pic.bmp", pngBytes(t, 10, 10))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File type not allowed", env.Message)

		rec, env = s.upload(path+"/image", bob, "pic.png", []byte("not an image"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid image", env.Message)

		rec, env = s.upload(path+"/image", bob, "huge.png", headerOnlyPNG(20000, 20000))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid image", env.Message)

		rec, env = s.upload(path+"/image", bob, "pic.png", pngBytes(t, 800, 400))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		first := decode[postView](t, env.Data)
		require.NotNil(t, first.ImageFile)
		assert.Equal(t, "/static/"+*first.ImageFile, first.ImageURL)

		stored, err := os.Open(filepath.Join(s.cfg.UploadDir, *first.ImageFile))
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(stored)
		_ = stored.Close()
		require.NoError(t, err)
		assert.Equal(t, 400, cfg.Width)
		assert.Equal(t, 200, cfg.Height)

		rec, env = s.upload(path+"/image", bob, "again.png", pngBytes(t, 50, 50))
		require.Equal(t, http.StatusOK, rec.Code)
		second := decode[postView](t, env.Data)
		assert.NotEqual(t, *first.ImageFile, *second.ImageFile)
		_, err = os.Stat(filepath.Join(s.cfg.UploadDir, *first.ImageFile))
		assert.True(t, os.IsNotExist(err), "replaced image is deleted")
	})
}

func TestQuests(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	_, bob := s.signup("bob")

	rec, env := s.do(http.MethodPost, "/api/v1/quests", alice, map[string]string{
		"title": "Read 12 books", "description": "one a month", "deadline": "2026-12-31",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	quest := decode[struct {
		ID       uint `json:"id"`
		Progress int  `json:"progress"`
	}](t, env.Data)
	assert.Zero(t, quest.Progress)
	path := fmt.Sprintf("/api/v1/quests/%d", quest.ID)

	rec, _ = s.do(http.MethodPost, path+"/join", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(http.MethodGet, path, bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[struct {
		Creator struct {
			Username string `json:"username"`
		} `json:"creator"`
		Participants []struct {
			Username string `json:"username"`
		} `json:"participants"`
	}](t, env.Data)
	assert.Equal(t, "alice", view.Creator.Username)
	require.Len(t, view.Participants, 1)
	assert.Equal(t, "bob", view.Participants[0].Username)

	rec, _ = s.do(http.MethodPatch, path+"/progress", bob, map[string]int{"progress": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, env = s.do(http.MethodPatch, path+"/progress", alice, map[string]int{"progress": 101})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "progress must be at most 100", env.Message)

	rec, env = s.do(http.MethodPatch, path+"/progress", alice, map[string]int{"progress": 0})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	rec, env = s.do(http.MethodPatch, path+"/progress", alice, map[string]int{"progress": 50})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, decode[struct {
		Progress int `json:"progress"`
	}](t, env.Data).Progress)

	rec, _ = s.upload(path+"/image", bob, "q.png", pngBytes(t, 20, 20))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for i := 0; i < 2; i++ {
		rec, _ = s.do(http.MethodDelete, path+"/join", bob, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec, env = s.do(http.MethodGet, "/api/v1/quests", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Meta["totalItems"])

	rec, env = s.do(http.MethodGet, "/api/v1/notifications/grouped", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grouped := decode[struct {
		UnreadCount int64 `json:"unreadCount"`
	}](t, env.Data)
	assert.Equal(t, int64(1), grouped.UnreadCount, "bob joining notifies alice")
}

func TestProfileEditing(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	s.register("bob")

	rec, env := s.do(http.MethodPut, "/api/v1/users/me", alice, map[string]string{"username": "bob", "about_me": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please use a different username.", env.Message)

	rec, _ = s.do(http.MethodPut, "/api/v1/users/me", alice, map[string]string{"username": "alice", "about_me": "climber"})
	assert.Equal(t, http.StatusOK, rec.Code, "keeping the same username is allowed")

	rec, env = s.do(http.MethodPut, "/api/v1/users/me", alice, map[string]string{"username": "alicia", "about_me": "climber"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alicia", decode[struct {
		Username string `json:"username"`
	}](t, env.Data).Username)

	rec, env = s.upload("/api/v1/users/me/picture", alice, "me.PNG", pngBytes(t, 600, 300))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[struct {
		ProfilePic    string `json:"profile_pic"`
		ProfilePicURL string `json:"profile_pic_url"`
	}](t, env.Data)
	assert.Regexp(t, `^profile_pics/[0-9a-f]{16}\.png$`, me.ProfilePic)
	assert.Equal(t, "/static/"+me.ProfilePic, me.ProfilePicURL)

	rec, env = s.do(http.MethodGet, "/api/v1/users/search?q=ALI", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decode[[]struct {
		Username string `json:"username"`
	}](t, env.Data)
	require.Len(t, found, 1)
	assert.Equal(t, "alicia", found[0].Username)

	rec, _ = s.do(http.MethodGet, "/api/v1/users/search", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

// stubVerifier accepts only the ID tokens it was given.
type stubVerifier map[string]*fbauth.Token

func (v stubVerifier) VerifyIDToken(_ context.Context, idToken string) (*fbauth.Token, error) {
	if tok, ok := v[idToken]; ok {
		return tok, nil
	}
	return nil, errors.New("id token has invalid signature")
}

func firebaseToken(uid, email string) *fbauth.Token {
	claims := map[string]interface{}{}
	if email != "" {
		claims["email"] = email
	}
	return &fbauth.Token{UID: uid, Claims: claims}
}

type sessionView struct {
	Token string `json:"token"`
	User  struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

func TestFirebaseLogin(t *testing.T) {
	verifier := stubVerifier{
		"alice-google":  firebaseToken("uid-alice", "alice@example.com"),
		"alice-renamed": firebaseToken("uid-alice", "alice@new.example.com"),
		"other-alice":   firebaseToken("uid-other", "Alice@elsewhere.test"),
		"me":            firebaseToken("uid-me", "me@example.com"),
		"no-email":      firebaseToken("uid-anon", ""),
	}
	s := newTestServer(t, func(d *Dependencies) { d.Firebase = verifier })
	aliceID := s.register("alice")

	firebaseLogin := func(idToken string) (*httptest.ResponseRecorder, envelope) {
		return s.do(http.MethodPost, "/api/v1/auth/firebase-login", "", map[string]string{"idToken": idToken})
	}

	t.Run("links an existing account by email", func(t *testing.T) {
		rec, env := firebaseLogin("alice-google")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		session := decode[sessionView](t, env.Data)
		assert.Equal(t, aliceID, session.User.ID)
		assert.Equal(t, "alice", session.User.Username)

		rec, env = s.do(http.MethodGet, "/api/v1/users/me", session.Token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "alice@example.com", decode[struct {
			Email string `json:"email"`
		}](t, env.Data).Email)
	})

	t.Run("finds a linked account by uid", func(t *testing.T) {
		rec, env := firebaseLogin("alice-renamed")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		session := decode[sessionView](t, env.Data)
		assert.Equal(t, aliceID, session.User.ID)
		assert.Equal(t, "alice@example.com", session.User.Email, "a linked account keeps its email")
	})

	t.Run("creates an account with a free username", func(t *testing.T) {
		rec, env := firebaseLogin("other-alice")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		session := decode[sessionView](t, env.Data)
		assert.NotEqual(t, aliceID, session.User.ID)
		assert.Equal(t, "alice1", session.User.Username)
		assert.Equal(t, "Alice@elsewhere.test", session.User.Email)

		rec, env = firebaseLogin("me")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "me1", decode[sessionView](t, env.Data).User.Username)
	})

	t.Run("rejects bad tokens", func(t *testing.T) {
		rec, env := firebaseLogin("forged")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid Firebase ID token", env.Message)

		rec, env = firebaseLogin("no-email")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Firebase account has no email address", env.Message)

		rec, env = firebaseLogin("")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "idToken is required", env.Message)
	})
}

func TestFirebaseLoginDisabledWithoutCredentials(t *testing.T) {
	s := newTestServer(t)
	rec, _ := s.do(http.MethodPost, "/api/v1/auth/firebase-login", "", map[string]string{"idToken": "x"})
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, rec.Code)
}

func TestRenamedUserEventsUseNewName(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	_, bob := s.signup("bob")

	rec, _ := s.do(http.MethodPut, "/api/v1/users/me", alice, map[string]string{"username": "alicia", "about_me": ""})
	require.Equal(t, http.StatusOK, rec.Code)

	// alice's token still carries the old username
	rec, _ = s.do(http.MethodPost, "/api/v1/users/bob/follow", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env := s.do(http.MethodGet, "/api/v1/notifications", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[struct {
		Notifications []struct {
			Message string `json:"message"`
		} `json:"notifications"`
	}](t, env.Data).Notifications
	require.Len(t, notes, 1)
	assert.Equal(t, "alicia started following you", notes[0].Message)
}

func TestReservedUsernames(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")

	for _, name := range []string{"me", "Search"} {
		rec, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"username": name, "email": strings.ToLower(name) + "@example.com", "password": "x", "password2": "x",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, "Please use a different username.", env.Message, name)

		rec, env = s.do(http.MethodPut, "/api/v1/users/me", alice, map[string]string{"username": name, "about_me": ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Equal(t, "Please use a different username.", env.Message, name)
	}
}

func TestHugePageIsEmpty(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	rec, _ := s.do(http.MethodPost, "/api/v1/posts", alice, map[string]string{"title": "a1", "body": "alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, path := range []string{"/api/v1/explore", "/api/v1/feed", "/api/v1/users/alice/activity"} {
		rec, env := s.do(http.MethodGet, path+"?page=9223372036854775807", alice, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, decode[[]json.RawMessage](t, env.Data), path)
	}
}

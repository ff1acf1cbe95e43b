package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/internal/events"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/anonto42/questlog/backend/pkg/cache"
	"github.com/anonto42/questlog/backend/pkg/firebase"
	"github.com/anonto42/questlog/backend/pkg/mailer"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const resetRequestMessage = "Check your email for the instructions to reset your password"

var (
	errUsernameTaken = echo.NewHTTPError(http.StatusBadRequest, "Please use a different username.")
	errEmailTaken    = echo.NewHTTPError(http.StatusBadRequest, "Please use a different email address.")
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	userRepository repositories.UserRepository
	tokens         *auth.TokenManager
	denylist       *cache.TokenDenylist
	mailer         mailer.Mailer
	firebaseAuth   firebase.IDTokenVerifier
	publisher      events.Publisher
	appBaseURL     string
}

type AuthHandlerConfig struct {
	Users      repositories.UserRepository
	Tokens     *auth.TokenManager
	Denylist   *cache.TokenDenylist
	Mailer     mailer.Mailer
	Firebase   firebase.IDTokenVerifier
	Publisher  events.Publisher
	AppBaseURL string
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	m := cfg.Mailer
	if m == nil {
		m = mailer.LogMailer{}
	}
	return &AuthHandler{
		userRepository: cfg.Users,
		tokens:         cfg.Tokens,
		denylist:       cfg.Denylist,
		mailer:         m,
		firebaseAuth:   cfg.Firebase,
		publisher:      cfg.Publisher,
		appBaseURL:     strings.TrimSuffix(cfg.AppBaseURL, "/"),
	}
}

// RegisterAuthRoutes registers the unauthenticated auth routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/reset-password/request", h.RequestPasswordReset)
	g.POST("/reset-password/:token", h.ResetPassword)
	if h.firebaseAuth != nil {
		g.POST("/firebase-login", h.FirebaseLogin)
	}
}

// RegisterSessionRoutes registers auth routes that need a valid token
func (h *AuthHandler) RegisterSessionRoutes(g *echo.Group) {
	g.POST("/auth/logout", h.Logout)
}

// Register creates a local account with a username and password.
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	if models.IsReservedUsername(req.Username) {
		return errUsernameTaken
	}
	if taken, err := h.exists(h.userRepository.GetUserByUsername(ctx, req.Username)); err != nil {
		return err
	} else if taken {
		return errUsernameTaken
	}
	if taken, err := h.exists(h.userRepository.GetUserByEmail(ctx, req.Email)); err != nil {
		return err
	} else if taken {
		return errEmailTaken
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := h.userRepository.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return h.duplicateAccountError(ctx, req.Username)
		}
		return dbError(err, "")
	}

	publish(ctx, h.publisher, events.New(events.UserRegistered, user.ID, user.Username).
		About("user", user.ID, user.Username+" joined"))

	return respond(c, http.StatusCreated, user)
}

// Login checks the username and password and issues a session token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	user, err := h.userRepository.GetUserByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return dbError(err, "")
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid username or password")
	}

	return h.issueSession(c, user, req.RememberMe)
}

// Logout revokes the presented token until it would have expired.
func (h *AuthHandler) Logout(c echo.Context) error {
	claims := getClaims(c)
	if claims == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := h.denylist.Revoke(c.Request().Context(), claims.ID, ttl); err != nil {
		log.Error().Err(err).Msg("failed to revoke token")
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to log out")
	}

	return respond(c, http.StatusOK, echo.Map{"logged_out": true, "revoked": h.denylist.Enabled()})
}

// RequestPasswordReset emails a reset link. The response is identical whether or not the address is known.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req models.ResetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	user, err := h.userRepository.GetUserByEmail(ctx, req.Email)
	switch {
	case err == nil:
		if err := h.sendResetEmail(c, user); err != nil {
			log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to send password reset email")
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return dbError(err, "")
	}

	return respond(c, http.StatusAccepted, echo.Map{"message": resetRequestMessage})
}

func (h *AuthHandler) sendResetEmail(c echo.Context, user *models.User) error {
	token, err := h.tokens.IssueReset(user.ID)
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password/%s", h.appBaseURL, token)
	return h.mailer.Send(c.Request().Context(), mailer.Message{
		To:      user.Email,
		Subject: "[QuestLog] Reset Your Password",
		Body: fmt.Sprintf("Dear %s,\n\nTo reset your password open the following link:\n\n%s\n\n"+
			"If you have not requested a password reset simply ignore this message.\n", user.Username, link),
	})
}

// ResetPassword sets a new password for the account named by a valid reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	ctx := c.Request().Context()
	userID, err := h.tokens.VerifyReset(c.Param("token"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired reset token")
	}
	user, err := h.userRepository.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid or expired reset token")
		}
		return dbError(err, "")
	}

	var req models.ResetPasswordForm
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to hash password")
	}
	user.PasswordHash = hash
	if err := h.userRepository.UpdateUser(ctx, user); err != nil {
		return dbError(err, "")
	}

	return respond(c, http.StatusOK, echo.Map{"message": "Your password has been reset."})
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// FirebaseLogin exchanges a Firebase ID token for a local session token,
// linking or creating the local account as needed.
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req FirebaseLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	token, err := h.firebaseAuth.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}
	uid := token.UID
	email, _ := token.Claims["email"].(string)
	if email == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Firebase account has no email address")
	}

	user, err := h.userRepository.GetUserByFirebaseUID(ctx, uid)
	if err == nil {
		return h.issueSession(c, user, false)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dbError(err, "")
	}

	user, err = h.userRepository.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		user.FirebaseUID = &uid
		if err := h.userRepository.UpdateUser(ctx, user); err != nil {
			return dbError(err, "")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		username, err := h.availableUsername(c, email)
		if err != nil {
			return err
		}
		user = &models.User{Username: username, Email: email, FirebaseUID: &uid}
		if err := h.userRepository.CreateUser(ctx, user); err != nil {
			return dbError(err, "")
		}
		publish(ctx, h.publisher, events.New(events.UserRegistered, user.ID, user.Username).
			About("user", user.ID, user.Username+" joined"))
	default:
		return dbError(err, "")
	}

	return h.issueSession(c, user, false)
}

// availableUsername derives a username from the email's local part, adding a numeric suffix until it is free.
func (h *AuthHandler) availableUsername(c echo.Context, email string) (string, error) {
	base := strings.ToLower(strings.SplitN(email, "@", 2)[0])
	if base == "" {
		base = "user"
	}
	if len(base) > 56 {
		base = base[:56]
	}
	candidate := base
	for i := 1; i < 1000; i++ {
		if !models.IsReservedUsername(candidate) {
			taken, err := h.exists(h.userRepository.GetUserByUsername(c.Request().Context(), candidate))
			if err != nil {
				return "", err
			}
			if !taken {
				return candidate, nil
			}
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", echo.NewHTTPError(http.StatusConflict, "Unable to allocate a username")
}

func (h *AuthHandler) issueSession(c echo.Context, user *models.User, remember bool) error {
	token, claims, err := h.tokens.Issue(user.ID, user.Username, remember)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}

	now := time.Now().UTC()
	if err := h.userRepository.TouchLastSeen(c.Request().Context(), user.ID, now); err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("failed to update last_seen")
	}
	user.LastSeen = &now

	return respond(c, http.StatusOK, echo.Map{
		"token":      token,
		"expires_at": claims.ExpiresAt.Time,
		"user":       user,
	})
}

// duplicateAccountError names the field that lost a concurrent registration race.
func (h *AuthHandler) duplicateAccountError(ctx context.Context, username string) error {
	if taken, err := h.exists(h.userRepository.GetUserByUsername(ctx, username)); err == nil && !taken {
		return errEmailTaken
	}
	return errUsernameTaken
}

// exists turns a lookup result into found / not found, surfacing other errors as 500.
func (h *AuthHandler) exists(_ *models.User, err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, dbError(err, "")
}

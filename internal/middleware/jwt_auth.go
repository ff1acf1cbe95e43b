package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/anonto42/questlog/backend/internal/auth"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/anonto42/questlog/backend/pkg/cache"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	tokenContextKey = "token"
	// ClaimsContextKey holds the caller's *auth.Claims.
	ClaimsContextKey = "user"
	// UserContextKey holds the caller's current *models.User, loaded by LastSeenMiddleware.
	UserContextKey = "currentUser"
)

// JWTAuthMiddleware verifies the bearer token, rejects revoked tokens and
// stores the claims under ClaimsContextKey.
func JWTAuthMiddleware(tokens *auth.TokenManager, denylist *cache.TokenDenylist) echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey:    tokens.Secret(),
		SigningMethod: echojwt.AlgorithmHS256,
		ContextKey:    tokenContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return new(auth.Claims) },
		ErrorHandler: func(c echo.Context, err error) error {
			if errors.Is(err, echojwt.ErrJWTMissing) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(func(c echo.Context) error {
			token, ok := c.Get(tokenContextKey).(*jwt.Token)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}
			claims, ok := token.Claims.(*auth.Claims)
			if !ok || claims.UserID == 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			revoked, err := denylist.IsRevoked(c.Request().Context(), claims.ID)
			if err != nil {
				log.Error().Err(err).Msg("token denylist lookup failed")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "Unable to verify token")
			}
			if revoked {
				return echo.NewHTTPError(http.StatusUnauthorized, "Token has been revoked")
			}

			c.Set(ClaimsContextKey, claims)
			return next(c)
		})
	}
}

// LastSeenMiddleware stamps the caller's last_seen on every authenticated request
// and stores the caller's current record under UserContextKey, so a username
// changed after the token was issued is still reported correctly.
func LastSeenMiddleware(users repositories.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := c.Get(ClaimsContextKey).(*auth.Claims)
			if !ok {
				return next(c)
			}
			ctx := c.Request().Context()
			if err := users.TouchLastSeen(ctx, claims.UserID, time.Now().UTC()); err != nil {
				log.Warn().Err(err).Uint("user_id", claims.UserID).Msg("failed to update last_seen")
			}
			if user, err := users.GetUserByID(ctx, claims.UserID); err == nil {
				c.Set(UserContextKey, user)
			} else {
				log.Warn().Err(err).Uint("user_id", claims.UserID).Msg("failed to load current user")
			}
			return next(c)
		}
	}
}

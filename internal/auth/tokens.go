// Package auth issues and verifies the service's JWTs.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid or expired token")

const resetTokenTTL = 600 * time.Second

// Claims are the session token claims carried on every authenticated request.
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ResetClaims carry the id of the account whose password may be reset.
type ResetClaims struct {
	ResetPassword uint `json:"reset_password"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret      []byte
	ttl         time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

func NewTokenManager(secret string, ttl, rememberTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:      []byte(secret),
		ttl:         ttl,
		rememberTTL: rememberTTL,
		now:         time.Now,
	}
}

// Secret is the HMAC key, shared with the echo-jwt middleware.
func (m *TokenManager) Secret() []byte {
	return m.secret
}

// Issue signs a session token. remember selects the long-lived TTL.
func (m *TokenManager) Issue(userID uint, username string, remember bool) (string, *Claims, error) {
	ttl := m.ttl
	if remember {
		ttl = m.rememberTTL
	}
	now := m.now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies a session token.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueReset signs a ten-minute password reset token for userID.
func (m *TokenManager) IssueReset(userID uint) (string, error) {
	claims := &ResetClaims{
		ResetPassword: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.now().Add(resetTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// VerifyReset returns the user id a reset token was issued for.
func (m *TokenManager) VerifyReset(token string) (uint, error) {
	claims := &ResetClaims{}
	if err := m.parse(token, claims); err != nil {
		return 0, err
	}
	if claims.ResetPassword == 0 {
		return 0, ErrInvalidToken
	}
	return claims.ResetPassword, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) bool {
	return hash != "" && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/chatlinkhq/chatlink/server/apperr"
	"github.com/chatlinkhq/chatlink/server/cache"
	"github.com/chatlinkhq/chatlink/server/config"
	"github.com/chatlinkhq/chatlink/server/middleware"
	"github.com/chatlinkhq/chatlink/server/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 12

// Service owns credential verification and identity token issuance. Tokens
// are HS256 JWTs backed by a session entry in the cache, so signout and
// cache expiry both invalidate a token before its JWT expiry.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewService creates an auth Service.
func NewService(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Service {
	return &Service{db: db, cache: c, sec: sec, logger: logger}
}

// Signup creates a new user with a bcrypt-hashed password.
func (s *Service) Signup(ctx context.Context, email, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return apperr.Internal("failed to hash password", err)
	}

	user := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("email or username already taken")
		}
		return apperr.Internal("failed to create user", err)
	}
	return nil
}

// Signin verifies credentials and issues a token with a session cache entry.
// A missing signing secret is a fatal misconfiguration, not a user error.
func (s *Service) Signin(ctx context.Context, email, password string) (string, *model.User, error) {
	if s.sec.JWTSecret == "" {
		return "", nil, apperr.Internal("signing secret not configured", errors.New("security.jwt_secret is empty"))
	}

	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, apperr.Unauthenticated("invalid credentials")
	}
	if err != nil {
		return "", nil, apperr.Internal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.Unauthenticated("invalid credentials")
	}

	token, err := middleware.GenerateToken(user.ID, s.sec.JWTSecret, s.sec.JWTTTL)
	if err != nil {
		return "", nil, apperr.Internal("failed to sign token", err)
	}

	// Store session as a simple KV entry keyed by the token itself.
	_ = s.cache.Set(ctx, sessionKey(token), strconv.FormatInt(user.ID, 10), s.sec.JWTTTL)
	return token, &user, nil
}

// Signout invalidates the session entry for the given token.
func (s *Service) Signout(ctx context.Context, token string) error {
	if token == "" {
		return apperr.Validation("missing token")
	}
	_ = s.cache.Del(ctx, sessionKey(token))
	return nil
}

// SessionUserID validates a bearer token and returns its subject's user ID.
// Both the JWT signature and the session cache entry must check out; this is
// the shared gate for the WS and SSE handshakes.
func (s *Service) SessionUserID(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, apperr.Unauthenticated("missing token")
	}
	claims, err := middleware.ParseToken(token, s.sec.JWTSecret)
	if err != nil {
		return 0, apperr.Unauthenticated("invalid token")
	}
	if _, err := s.cache.Get(ctx, sessionKey(token)); err != nil {
		return 0, apperr.Unauthenticated("session expired")
	}
	return claims.UserID, nil
}

func sessionKey(token string) string {
	return "session:" + token
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/openboard/openboard/auth/db"
	"github.com/openboard/openboard/internal/config"
	"github.com/openboard/openboard/internal/slogging"
)

// ErrInvalidCredentials is returned when a login attempt fails
var ErrInvalidCredentials = errors.New("invalid username or password")

const refreshTokenDuration = 30 * 24 * time.Hour

// Claims represents the JWT claims carried by an access token
type Claims struct {
	Username string `json:"username"`
	UserID   uint64 `json:"uid"`
	jwt.RegisteredClaims
}

// TokenPair holds an access token and its refresh token
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Service issues and validates credential tokens and manages accounts
type Service struct {
	cfg    *config.Config
	users  UserStore
	redis  *db.RedisDB
	hasher *Hasher
}

// NewService creates the authentication service
func NewService(cfg *config.Config, users UserStore, redis *db.RedisDB) *Service {
	return &Service{
		cfg:    cfg,
		users:  users,
		redis:  redis,
		hasher: NewHasher(cfg.Auth.Pepper, cfg.Auth.UsernameSalt),
	}
}

// Hasher exposes the hashing scheme for tests and the user store
func (s *Service) Hasher() *Hasher {
	return s.hasher
}

// Register creates a new account and returns it. The username is stored as a
// lookup hash with the display name alongside; the password hash uses a
// per-user random salt.
func (s *Service) Register(ctx context.Context, username, password, email string) (*User, error) {
	usernameHash, err := s.hasher.HashUsername(username)
	if err != nil {
		return nil, fmt.Errorf("failed to hash username: %w", err)
	}

	if _, err := s.users.GetByUsernameHash(ctx, usernameHash); err == nil {
		return nil, ErrDuplicateUsername
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if email != "" {
		exists, err := s.users.ExistsByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateEmail
		}
	}

	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return nil, err
	}
	passwordHash, err := s.hasher.Hash(password, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		Username:     usernameHash,
		DisplayName:  username,
		PasswordHash: passwordHash,
		Salt:         salt,
		Email:        email,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	slogging.Get().Info("Registered user id=%d", user.ID)
	return user, nil
}

// Login verifies credentials and returns the matching user
func (s *Service) Login(ctx context.Context, username, password string) (*User, error) {
	user, err := s.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.Salt, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// FindByUsername resolves a display username to its account via the lookup hash
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	usernameHash, err := s.hasher.HashUsername(username)
	if err != nil {
		return nil, fmt.Errorf("failed to hash username: %w", err)
	}
	return s.users.GetByUsernameHash(ctx, usernameHash)
}

// GenerateTokens creates a signed access token and a Redis-backed refresh token
func (s *Service) GenerateTokens(ctx context.Context, user *User) (TokenPair, error) {
	now := time.Now()
	expirationTime := now.Add(s.cfg.JWTDuration())
	claims := &Claims{
		Username: user.DisplayName,
		UserID:   user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Auth.JWT.Issuer,
			Subject:   user.DisplayName,
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.Auth.JWT.Secret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to sign token: %w", err)
	}

	refreshToken := uuid.New().String()
	if s.redis != nil {
		refreshKey := fmt.Sprintf("refresh_token:%s", refreshToken)
		if err := s.redis.Set(ctx, refreshKey, fmt.Sprintf("%d", user.ID), refreshTokenDuration); err != nil {
			return TokenPair{}, fmt.Errorf("failed to store refresh token: %w", err)
		}
	}

	return TokenPair{
		AccessToken:  tokenString,
		RefreshToken: refreshToken,
		ExpiresIn:    s.cfg.Auth.JWT.ExpirationSeconds,
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken validates a JWT access token and returns its claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Auth.JWT.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if s.cfg.Auth.JWT.Issuer != "" && claims.Issuer != s.cfg.Auth.JWT.Issuer {
		return nil, fmt.Errorf("invalid token issuer: %s", claims.Issuer)
	}
	if claims.Username == "" {
		return nil, errors.New("token has no subject identity")
	}
	return claims, nil
}

// ExtractUsername returns the subject identity of a token, or an error if
// the token cannot be verified. Signature and expiry are both checked.
func (s *Service) ExtractUsername(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Username, nil
}

// RefreshToken exchanges a refresh token for a new token pair
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	if s.redis == nil {
		return TokenPair{}, errors.New("refresh tokens are not enabled")
	}

	refreshKey := fmt.Sprintf("refresh_token:%s", refreshToken)
	userID, err := s.redis.Get(ctx, refreshKey)
	if err != nil {
		return TokenPair{}, fmt.Errorf("invalid refresh token: %w", err)
	}

	// Single-use: the old refresh token is revoked before a new pair is issued
	if err := s.redis.Del(ctx, refreshKey); err != nil {
		return TokenPair{}, fmt.Errorf("failed to revoke refresh token: %w", err)
	}

	var id uint64
	if _, err := fmt.Sscanf(userID, "%d", &id); err != nil {
		return TokenPair{}, fmt.Errorf("corrupt refresh token mapping: %w", err)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to load user: %w", err)
	}
	return s.GenerateTokens(ctx, user)
}

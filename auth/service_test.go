package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openboard/openboard/auth/db"
	"github.com/openboard/openboard/internal/config"
)

// memoryUserStore is an in-memory UserStore for service tests
type memoryUserStore struct {
	mu     sync.Mutex
	nextID uint64
	byHash map[string]*User
	byID   map[uint64]*User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{
		byHash: make(map[string]*User),
		byID:   make(map[uint64]*User),
	}
}

func (s *memoryUserStore) Create(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[user.Username]; ok {
		return ErrDuplicateUsername
	}
	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = time.Now().UTC()
	stored := *user
	s.byHash[user.Username] = &stored
	s.byID[user.ID] = &stored
	return nil
}

func (s *memoryUserStore) GetByUsernameHash(_ context.Context, usernameHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byHash[usernameHash]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (s *memoryUserStore) GetByID(_ context.Context, id uint64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *user
	return &out, nil
}

func (s *memoryUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.byHash {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.JWT.Secret = "test-secret"
	cfg.Auth.JWT.Issuer = "openboard-test"
	cfg.Auth.JWT.ExpirationSeconds = 3600
	cfg.Auth.Pepper = "test-pepper"
	cfg.Auth.UsernameSalt = "test-username-salt"
	return cfg
}

func newTestService(t *testing.T) (*Service, *memoryUserStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisDB := db.NewRedisDBFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := newMemoryUserStore()
	return NewService(testConfig(), store, redisDB), store, mr
}

func TestRegisterStoresHashedIdentity(t *testing.T) {
	svc, store, _ := newTestService(t)

	user, err := svc.Register(context.Background(), "alice", "s3cret", "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, "alice", user.DisplayName)
	assert.NotEqual(t, "alice", user.Username, "stored username must be the lookup hash")
	assert.NotEqual(t, "s3cret", user.PasswordHash)
	assert.NotEmpty(t, user.Salt)

	stored, err := store.GetByUsernameHash(context.Background(), user.Username)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.ID)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "alice", "s3cret", "alice@example.com")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "alice", "other", "other@example.com")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	_, err = svc.Register(context.Background(), "bob", "s3cret", "alice@example.com")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLogin(t *testing.T) {
	svc, _, _ := newTestService(t)

	registered, err := svc.Register(context.Background(), "alice", "s3cret", "")
	require.NoError(t, err)

	user, err := svc.Login(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	user, err := svc.Register(context.Background(), "alice", "s3cret", "")
	require.NoError(t, err)

	tokens, err := svc.GenerateTokens(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, 3600, tokens.ExpiresIn)
	assert.NotEmpty(t, tokens.RefreshToken)

	claims, err := svc.ValidateToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "openboard-test", claims.Issuer)

	username, err := svc.ExtractUsername(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestValidateTokenRejectsForgeries(t *testing.T) {
	svc, _, _ := newTestService(t)

	user, err := svc.Register(context.Background(), "alice", "s3cret", "")
	require.NoError(t, err)
	tokens, err := svc.GenerateTokens(context.Background(), user)
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		otherCfg := testConfig()
		otherCfg.Auth.JWT.Secret = "different-secret"
		other := NewService(otherCfg, newMemoryUserStore(), nil)

		_, err := other.ValidateToken(tokens.AccessToken)
		assert.Error(t, err)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		otherCfg := testConfig()
		otherCfg.Auth.JWT.Issuer = "someone-else"
		other := NewService(otherCfg, newMemoryUserStore(), nil)

		_, err := other.ValidateToken(tokens.AccessToken)
		assert.Error(t, err)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "alice"})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateToken(raw)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		shortCfg := testConfig()
		shortCfg.Auth.JWT.ExpirationSeconds = -60
		short := NewService(shortCfg, newMemoryUserStore(), nil)

		expired, err := short.GenerateTokens(context.Background(), user)
		require.NoError(t, err)

		_, err = svc.ValidateToken(expired.AccessToken)
		assert.Error(t, err)
	})
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	svc, _, mr := newTestService(t)

	user, err := svc.Register(context.Background(), "alice", "s3cret", "")
	require.NoError(t, err)
	tokens, err := svc.GenerateTokens(context.Background(), user)
	require.NoError(t, err)

	assert.True(t, mr.Exists("refresh_token:"+tokens.RefreshToken))

	refreshed, err := svc.RefreshToken(context.Background(), tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, tokens.RefreshToken, refreshed.RefreshToken)

	claims, err := svc.ValidateToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	// The old refresh token was revoked when it was redeemed
	_, err = svc.RefreshToken(context.Background(), tokens.RefreshToken)
	assert.Error(t, err)
}

func TestRefreshTokenUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RefreshToken(context.Background(), "no-such-token")
	assert.Error(t, err)
}

func TestFindByUsername(t *testing.T) {
	svc, _, _ := newTestService(t)

	registered, err := svc.Register(context.Background(), "alice", "s3cret", "")
	require.NoError(t, err)

	user, err := svc.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.FindByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

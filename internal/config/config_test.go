package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
	assert.Equal(t, "6379", cfg.Database.Redis.Port)
	assert.Equal(t, 3600, cfg.Auth.JWT.ExpirationSeconds)
	assert.Equal(t, time.Hour, cfg.JWTDuration())
	assert.Equal(t, int64(64*1024), cfg.WebSocket.ReadLimitBytes)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
auth:
  jwt:
    secret: file-secret
    expiration_seconds: 600
  pepper: file-pepper
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWT.Secret)
	assert.Equal(t, 600, cfg.Auth.JWT.ExpirationSeconds)
	assert.Equal(t, "file-pepper", cfg.Auth.Pepper)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields keep their defaults
	assert.Equal(t, "localhost", cfg.Database.Postgres.Host)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
auth:
  jwt:
    secret: file-secret
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOG_DEV", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Database.Redis.DB)
	assert.True(t, cfg.Logging.IsDev)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt.secret")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWT.Secret = "secret"
	require.NoError(t, cfg.Validate())

	cfg.Auth.JWT.ExpirationSeconds = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.JWT.Secret = "secret"
	cfg.Server.Port = ""
	assert.Error(t, cfg.Validate())
}

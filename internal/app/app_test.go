package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/config"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
)

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body += "\ndatabase:\n  file_path: " + filepath.Join(dir, "app.db") + "\n  log_level: silent\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestNew_LocalBackend(t *testing.T) {
	cfg := loadConfig(t, "backend: local\nauth:\n  secret: s3cret\n  bcrypt_cost: 4\n")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Cache)
	ctx := context.Background()
	ana, err := a.Auth.Register(ctx, &domain.RegisterRequest{Email: "ana@example.com", Username: "ana", Password: "secret123"})
	require.NoError(t, err)
	bruno, err := a.Auth.Register(ctx, &domain.RegisterRequest{Email: "bruno@example.com", Username: "bruno", Password: "secret123"})
	require.NoError(t, err)

	conv, err := a.Chat.CreateConversation(ctx, ana.UserID, bruno.UserID)
	require.NoError(t, err)
	assert.True(t, conv.HasParticipant(ana.UserID))

	claims, err := a.Auth.ValidateToken(ana.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, ana.UserID, claims.UserID)
}

func TestNew_CacheUnreachableIsOptional(t *testing.T) {
	cfg := loadConfig(t, "cache:\n  enabled: true\nredis:\n  address: 127.0.0.1:1\n")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.Cache)
}

func TestNew_UnsupportedPubSub(t *testing.T) {
	cfg := loadConfig(t, "pubsub:\n  driver: carrier-pigeon\n")

	a, err := New(cfg)
	assert.Error(t, err)
	assert.Nil(t, a)
}

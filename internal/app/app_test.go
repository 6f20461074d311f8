package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"luggo/internal/config"
	"luggo/internal/domain"
	"luggo/internal/engine"
)

func TestLoadConfigAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "luggo.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 0.0.0.0:9000\nlog:\n  level: debug\n"), 0o644))

	v := viper.New()
	v.Set(KeyDatabase, filepath.Join(dir, "override.db"))
	v.Set(KeyJWTSecret, "s3cret")

	cfg, err := LoadConfig(path, v)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, "override.db"), cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
}

func TestLoadConfigRejectsBadOverride(t *testing.T) {
	v := viper.New()
	v.Set(KeyLogLevel, "loud")
	_, err := LoadConfig("", v)
	require.Error(t, err)
}

func TestLoadEnvMissingFileIsFine(t *testing.T) {
	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadEnvSetsVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LUGGO_TEST_ENV_VALUE=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LUGGO_TEST_ENV_VALUE") })
	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("LUGGO_TEST_ENV_VALUE"))
}

func TestNewLoggerHonoursFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "text"
	cfg.Log.Level = "warn"
	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "k=v")

	cfg.Log.Format = "json"
	buf.Reset()
	NewLogger(cfg, &buf).Warn("shown")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
}

func TestOpenStoresNotificationsSynchronously(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "data", "luggo.db")
	ctx := context.Background()
	a, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	admin, err := a.Engine.RegisterUser(ctx, engine.RegisterOptions{
		Email: "admin@example.com", Password: "password-admin", Name: "admin", Role: domain.RoleAdmin, AllowAdmin: true,
	})
	require.NoError(t, err)
	mover, err := a.Engine.RegisterUser(ctx, engine.RegisterOptions{
		Email: "mover@example.com", Password: "password-mover", Name: "mover", Role: domain.RoleExecutor,
	})
	require.NoError(t, err)
	_, err = a.Engine.GrantSubscription(ctx, admin.ID, mover.ID, "basic")
	require.NoError(t, err)

	inbox, err := a.Engine.ListNotifications(ctx, mover.ID, true, 10)
	require.NoError(t, err)
	require.Len(t, inbox.Items, 1)
	assert.Equal(t, domain.NotificationSystem, inbox.Items[0].Type)
}

func TestHandlerRequiresSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "luggo.db")
	a, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Handler(a.Engine)
	require.Error(t, err)

	cfg.Auth.JWTSecret = "s3cret"
	h, err := a.Handler(a.Engine)
	require.NoError(t, err)
	assert.NotNil(t, h)
}

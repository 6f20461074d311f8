package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.False(t, cfg.Marketplace.RequireSubscription)
	assert.Contains(t, cfg.Subscriptions.Plans, "basic")
	ttl, err := cfg.TokenTTL()
	require.NoError(t, err)
	assert.Equal(t, 72*time.Hour, ttl)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "luggo.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
marketplace:
  require_subscription: true
webhooks:
  - url: http://bot.local/hook
    rate_per_minute: 30
`))
	require.NoError(t, err)
	assert.True(t, cfg.Marketplace.RequireSubscription)
	assert.Equal(t, 1000, cfg.Marketplace.MaxCommentLength)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, 30, cfg.Webhooks[0].RatePerMinute)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"bad ttl":       "auth:\n  token_ttl: soon\n",
		"negative ttl":  "auth:\n  token_ttl: -1h\n",
		"base path":     "server:\n  base_path: v1\n",
		"log level":     "log:\n  level: loud\n",
		"plan days":     "subscriptions:\n  plans:\n    free:\n      days: 0\n",
		"empty webhook": "webhooks:\n  - url: \"\"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luggo.yml")
	require.NoError(t, os.WriteFile(path, []byte(GenerateDefault()), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

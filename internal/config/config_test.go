package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 8*time.Hour, cfg.AuthTTL)
	assert.True(t, cfg.DevLogin)
	assert.Equal(t, devSecret, cfg.AuthSecret, "dev login falls back to the dev secret")
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, "local", cfg.SiteID)
	assert.False(t, cfg.Gradebook.Enabled)
	assert.Empty(t, cfg.Gradebook.Scopes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LESSON_HTTP_ADDR", ":9090")
	t.Setenv("LESSON_DB_DRIVER", "postgres")
	t.Setenv("LESSON_AUTH_TTL", "30m")
	t.Setenv("LESSON_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LESSON_GRADEBOOK_ENABLED", "true")
	t.Setenv("LESSON_GRADEBOOK_TOKEN_URL", "https://lms.example/token")
	t.Setenv("LESSON_GRADEBOOK_CLIENT_ID", "tool")
	t.Setenv("LESSON_GRADEBOOK_LINEITEMS_URL", "https://lms.example/lineitems")
	t.Setenv("LESSON_GRADEBOOK_SCOPES", "lineitem,score")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 30*time.Minute, cfg.AuthTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Gradebook.Enabled)
	assert.Equal(t, []string{"lineitem", "score"}, cfg.Gradebook.Scopes)
	assert.Equal(t, 4, cfg.Gradebook.Concurrency)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":7000"
cors:
  origins: ["https://x.example"]
log:
  format: json
`), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://x.example"}, cfg.CORSOrigins)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestValidate(t *testing.T) {
	base, err := Load(viper.New())
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no secret", func(c *Config) { c.AuthSecret = "" }},
		{"bad ttl", func(c *Config) { c.AuthTTL = 0 }},
		{"negative rps", func(c *Config) { c.RateLimitRPS = -1 }},
		{"gradebook without token url", func(c *Config) { c.Gradebook = Gradebook{Enabled: true, ClientID: "x", LineItemsURL: "u", Concurrency: 1} }},
		{"gradebook without lineitems", func(c *Config) {
			c.Gradebook = Gradebook{Enabled: true, TokenURL: "t", ClientID: "x", Concurrency: 1}
		}},
		{"gradebook zero concurrency", func(c *Config) {
			c.Gradebook = Gradebook{Enabled: true, TokenURL: "t", ClientID: "x", LineItemsURL: "u"}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("LESSON_DEV_LOGIN", "false")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv("LESSON_AUTH_SECRET", "prod-secret")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "prod-secret", cfg.AuthSecret)
	assert.False(t, cfg.DevLogin)
}

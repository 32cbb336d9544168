package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.JWT.Expiration)
	assert.False(t, cfg.Cache.Enabled, "cache requires redis")
	assert.Equal(t, int64(10*1024*1024), cfg.Documents.MaxFileSizeBytes)
	assert.Contains(t, cfg.Documents.AllowedMIMEs, "application/pdf")
	assert.Equal(t, 2, cfg.Audit.Workers)
	assert.Equal(t, 5, cfg.RateLimit.LoginBurst)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "PGX")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("CACHE_TTL", "not-a-duration")
	t.Setenv("AUDIT_WORKERS", "0")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPgx, cfg.Database.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 1, cfg.Audit.Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

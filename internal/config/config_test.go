package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/eseye/auth"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://esi.evetech.net", cfg.API.BaseURL)
	assert.Equal(t, "tranquility", cfg.API.Datasource)
	assert.Equal(t, "/latest", cfg.API.Version)
	assert.Equal(t, auth.DefaultTokenURL, cfg.API.TokenURL)
	assert.Equal(t, 30*time.Second, cfg.API.HTTPTimeout)
	assert.Equal(t, 24*time.Hour, cfg.API.StaleRetention)
	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.False(t, cfg.HasSSO())

	_, ok := cfg.Authentication()
	assert.False(t, ok)
}

func TestLoadFromEnvironment(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"ESI_BASE_URL":        "http://localhost:9000",
		"ESI_DATASOURCE":      "singularity",
		"ESI_VERSION":         "v2",
		"ESI_HTTP_TIMEOUT":    "5s",
		"ESI_STALE_RETENTION": "1h",
		"ESI_CACHE":           "redis",
		"REDIS_ADDR":          "localhost:6379",
		"ESI_LOG_LEVEL":       "debug",
		"ESI_CLIENT_ID":       "id",
		"ESI_SECRET":          "secret",
		"ESI_REFRESH_TOKEN":   "refresh",
		"ESI_SCOPES":          "esi-skills.read_skills.v1 esi-assets.read_assets.v1",
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	ec := cfg.ESI()
	assert.Equal(t, "http://localhost:9000", ec.BaseURL)
	assert.Equal(t, "singularity", ec.Datasource)
	assert.Equal(t, "v2", ec.Version)
	assert.Equal(t, 5*time.Second, ec.HTTPTimeout)
	assert.Equal(t, time.Hour, ec.StaleRetention)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.True(t, cfg.HasSSO())

	data, ok := cfg.Authentication()
	require.True(t, ok)
	a, err := auth.NewAuthentication(data)
	require.NoError(t, err)
	assert.Equal(t, "id", a.ClientID)
	assert.Equal(t, []string{"esi-skills.read_skills.v1", "esi-assets.read_assets.v1"}, a.Scopes)
}

func TestLoadBadDuration(t *testing.T) {
	_, err := LoadFrom(map[string]string{"ESI_HTTP_TIMEOUT": "soon"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{"unknown backend", map[string]string{"ESI_CACHE": "memcached"}, "Backend"},
		{"redis without address", map[string]string{"ESI_CACHE": "redis"}, "RedisAddr"},
		{"postgres without url", map[string]string{"ESI_CACHE": "postgres"}, "DatabaseURL"},
		{"bad log level", map[string]string{"ESI_LOG_LEVEL": "loud"}, "LogLevel"},
		{"bad base url", map[string]string{"ESI_BASE_URL": "not a url"}, "BaseURL"},
		{"zero timeout", map[string]string{"ESI_HTTP_TIMEOUT": "0s"}, "HTTPTimeout"},
		{"partial sso", map[string]string{"ESI_CLIENT_ID": "id"}, "must be set together"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(tt.environ)
			require.NoError(t, err)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("ESI_DATASOURCE", "singularity")
	t.Setenv("ESI_CACHE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "singularity", cfg.API.Datasource)
	assert.Equal(t, "memory", cfg.Cache.Backend)
}

func TestZeroStaleRetentionDisablesRetention(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"ESI_STALE_RETENTION": "0s"})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Negative(t, cfg.ESI().StaleRetention)
}

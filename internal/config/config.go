// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/briangreenhill/eseye/esi"
)

var validate = validator.New()

// Config holds all application configuration
type Config struct {
	API   APIConfig
	Cache CacheConfig
	SSO   SSOConfig

	LogLevel string `env:"ESI_LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error disabled"`
	// Listen is the proxy bind address
	Listen string `env:"ESI_LISTEN" envDefault:":8080" validate:"required"`
}

// APIConfig holds the ESI endpoint settings
type APIConfig struct {
	BaseURL          string        `env:"ESI_BASE_URL" envDefault:"https://esi.evetech.net" validate:"required,url"`
	Datasource       string        `env:"ESI_DATASOURCE" envDefault:"tranquility" validate:"required"`
	Version          string        `env:"ESI_VERSION" envDefault:"/latest"`
	TokenURL         string        `env:"ESI_SSO_TOKEN_URL" envDefault:"https://login.eveonline.com/v2/oauth/token" validate:"required,url"`
	UserAgent        string        `env:"ESI_USER_AGENT" envDefault:"eseye-go/0.1.0"`
	HTTPTimeout      time.Duration `env:"ESI_HTTP_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	StaleRetention   time.Duration `env:"ESI_STALE_RETENTION" envDefault:"24h" validate:"gte=0"`
	RequirementsFile string        `env:"ESI_REQUIREMENTS_FILE"`
}

// CacheConfig selects and configures the cache backend
type CacheConfig struct {
	Backend     string `env:"ESI_CACHE" envDefault:"file" validate:"oneof=null memory file redis postgres"`
	Dir         string `env:"ESI_CACHE_DIR"`
	RedisAddr   string `env:"REDIS_ADDR" validate:"required_if=Backend redis"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=Backend postgres"`
}

// SSOConfig holds the optional character credentials
type SSOConfig struct {
	ClientID     string   `env:"ESI_CLIENT_ID"`
	Secret       string   `env:"ESI_SECRET"`
	RefreshToken string   `env:"ESI_REFRESH_TOKEN"`
	Scopes       []string `env:"ESI_SCOPES" envSeparator:" "`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from environ instead of the process environment
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints and that SSO credentials are either
// complete or absent
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.hasAnySSO() && !c.HasSSO() {
		return errors.New("ESI_CLIENT_ID, ESI_SECRET and ESI_REFRESH_TOKEN must be set together")
	}
	return nil
}

// HasSSO returns true if character credentials are complete
func (c *Config) HasSSO() bool {
	return c.SSO.ClientID != "" && c.SSO.Secret != "" && c.SSO.RefreshToken != ""
}

func (c *Config) hasAnySSO() bool {
	return c.SSO.ClientID != "" || c.SSO.Secret != "" || c.SSO.RefreshToken != ""
}

// ESI returns the client configuration. ESI_STALE_RETENTION=0 turns
// retention off, which esi.Configuration spells as a negative duration.
func (c *Config) ESI() esi.Configuration {
	retention := c.API.StaleRetention
	if retention == 0 {
		retention = -1
	}
	return esi.Configuration{
		BaseURL:        c.API.BaseURL,
		Datasource:     c.API.Datasource,
		Version:        c.API.Version,
		TokenURL:       c.API.TokenURL,
		UserAgent:      c.API.UserAgent,
		HTTPTimeout:    c.API.HTTPTimeout,
		StaleRetention: retention,
	}
}

// Authentication returns the credential data for auth.NewAuthentication,
// or false when no credentials are configured
func (c *Config) Authentication() (map[string]any, bool) {
	if !c.HasSSO() {
		return nil, false
	}
	data := map[string]any{
		"client_id":     c.SSO.ClientID,
		"secret":        c.SSO.Secret,
		"refresh_token": c.SSO.RefreshToken,
	}
	if len(c.SSO.Scopes) > 0 {
		data["scopes"] = append([]string(nil), c.SSO.Scopes...)
	}
	return data, true
}

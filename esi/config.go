package esi

import (
	"time"

	"github.com/briangreenhill/eseye/auth"
)

const (
	DefaultBaseURL        = "https://esi.evetech.net"
	DefaultDatasource     = "tranquility"
	DefaultVersion        = "/latest"
	DefaultUserAgent      = "eseye-go/0.1.0"
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultStaleRetention = 24 * time.Hour
)

// Configuration is read-only once handed to New
type Configuration struct {
	BaseURL    string
	Datasource string
	Version    string
	TokenURL   string
	UserAgent  string

	HTTPTimeout time.Duration
	// StaleRetention is how long an entry outlives its Expires so it can
	// still be revalidated with If-None-Match. Zero means the default, a
	// negative value keeps nothing past Expires.
	StaleRetention time.Duration
}

func DefaultConfiguration() Configuration {
	return Configuration{
		BaseURL:        DefaultBaseURL,
		Datasource:     DefaultDatasource,
		Version:        DefaultVersion,
		TokenURL:       auth.DefaultTokenURL,
		UserAgent:      DefaultUserAgent,
		HTTPTimeout:    DefaultHTTPTimeout,
		StaleRetention: DefaultStaleRetention,
	}
}

// withDefaults fills every zero field from DefaultConfiguration. A negative
// StaleRetention is kept as is.
func (c Configuration) withDefaults() Configuration {
	d := DefaultConfiguration()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.Datasource == "" {
		c.Datasource = d.Datasource
	}
	if c.Version == "" {
		c.Version = d.Version
	}
	c.Version = normalizeVersion(c.Version)
	if c.TokenURL == "" {
		c.TokenURL = d.TokenURL
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = d.HTTPTimeout
	}
	if c.StaleRetention == 0 {
		c.StaleRetention = d.StaleRetention
	}
	return c
}

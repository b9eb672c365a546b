// Package esi invokes EVE Online ESI endpoints: it expands path templates,
// gates calls on SSO scopes, refreshes access tokens and honours the
// Expires/ETag caching the API advertises.
package esi

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/eseye/access"
	"github.com/briangreenhill/eseye/auth"
	"github.com/briangreenhill/eseye/cache"
)

type Client struct {
	cfg          Configuration
	log          zerolog.Logger
	store        cache.Store
	requirements access.Requirements
	refresher    auth.Refresher
	http         *http.Client
	now          func() time.Time

	stateMu sync.RWMutex
	version string
	query   map[string]any
	body    any
	fetcher Fetcher
	checker access.Checker

	authMu sync.Mutex
	authn  *auth.Authentication

	// cacheMu serialises cache writes so a 304 merge never clobbers a newer 200
	cacheMu sync.Mutex
}

type Option func(*Client)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithCache(s cache.Store) Option {
	return func(c *Client) { c.store = s }
}

func WithFetcher(f Fetcher) Option {
	return func(c *Client) { c.fetcher = f }
}

func WithAccessChecker(ch access.Checker) Option {
	return func(c *Client) { c.checker = ch }
}

// WithRequirements replaces the endpoint scope table
func WithRequirements(r access.Requirements) Option {
	return func(c *Client) { c.requirements = r }
}

func WithRefresher(r auth.Refresher) Option {
	return func(c *Client) { c.refresher = r }
}

// WithHTTPClient sets the client used by the default fetcher and refresher
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithAuthentication(a auth.Authentication) Option {
	return func(c *Client) {
		a = a.Clone()
		c.authn = &a
	}
}

// New creates a client. Zero fields in cfg take their defaults.
func New(cfg Configuration, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	c := &Client{
		cfg:          cfg,
		log:          zerolog.Nop(),
		store:        cache.NullCache{},
		requirements: access.DefaultRequirements,
		now:          time.Now,
		version:      cfg.Version,
		query:        map[string]any{},
		checker:      access.ScopeChecker{},
	}
	for _, o := range opts {
		o(c)
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if c.fetcher == nil {
		c.fetcher = NewHTTPFetcher(c.http, cfg.UserAgent)
	}
	if c.refresher == nil {
		c.refresher = auth.NewSSORefresher(cfg.TokenURL, c.http)
	}
	if c.store == nil {
		c.store = cache.NullCache{}
	}
	if c.checker == nil {
		c.checker = access.ScopeChecker{}
	}
	return c, nil
}

// SetAuthentication replaces the credentials. nil clears them. The value
// is validated when a call needs it.
func (c *Client) SetAuthentication(a *auth.Authentication) *Client {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if a == nil {
		c.authn = nil
		return c
	}
	cp := a.Clone()
	c.authn = &cp
	return c
}

// GetAuthentication returns a copy of the credentials, or
// ErrInvalidAuthentication when none are set
func (c *Client) GetAuthentication() (auth.Authentication, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.authn == nil {
		return auth.Authentication{}, fmt.Errorf("%w: no authentication set", ErrInvalidAuthentication)
	}
	return c.authn.Clone(), nil
}

// SetRefreshToken swaps only the refresh token. It does nothing when no
// authentication is set.
func (c *Client) SetRefreshToken(token string) *Client {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.authn == nil {
		c.log.Warn().Msg("refresh token set without authentication, ignoring")
		return c
	}
	c.authn.RefreshToken = token
	return c
}

func (c *Client) SetVersion(v string) *Client {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.version = normalizeVersion(v)
	return c
}

func (c *Client) GetVersion() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.version
}

// SetQueryString replaces the query sent with Invoke. Values are strings,
// or string/number lists that are sent comma separated.
func (c *Client) SetQueryString(q map[string]any) *Client {
	cp := make(map[string]any, len(q))
	for k, v := range q {
		cp[k] = v
	}
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.query = cp
	return c
}

func (c *Client) GetQueryString() map[string]string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return flattenQuery(c.query)
}

// SetBody sets the value JSON encoded as the body of non-GET calls
func (c *Client) SetBody(b any) *Client {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.body = b
	return c
}

func (c *Client) GetBody() any {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.body
}

func (c *Client) SetAccessChecker(ch access.Checker) *Client {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.checker = ch
	return c
}

func (c *Client) GetAccessChecker() access.Checker {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.checker
}

func (c *Client) SetFetcher(f Fetcher) *Client {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.fetcher = f
	return c
}

func (c *Client) GetFetcher() Fetcher {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.fetcher
}

func (c *Client) GetConfiguration() Configuration { return c.cfg }

func (c *Client) GetLogger() zerolog.Logger { return c.log }

func (c *Client) GetCache() cache.Store { return c.store }

// GetRequirements returns the endpoint scope table
func (c *Client) GetRequirements() access.Requirements { return c.requirements }

// BuildDataURI expands template against the client's base URL, version,
// query string and datasource
func (c *Client) BuildDataURI(template string, pathParams map[string]string) (*url.URL, error) {
	c.stateMu.RLock()
	version, query := c.version, c.query
	c.stateMu.RUnlock()
	return BuildDataURI(c.cfg.BaseURL, template, pathParams, query, version, c.cfg.Datasource)
}

package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/eseye/access"
	"github.com/briangreenhill/eseye/cache"
)

// Request describes one call. Empty Version and Datasource take the
// client's values.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      map[string]any
	Body       any
	Version    string
	Datasource string
}

// Invoke calls method on the path template using the query string, body
// and version set on the client
func (c *Client) Invoke(ctx context.Context, method, path string, params map[string]string) (*Response, error) {
	c.stateMu.RLock()
	req := Request{
		Method:     method,
		Path:       path,
		PathParams: params,
		Query:      c.query,
		Body:       c.body,
		Version:    c.version,
	}
	c.stateMu.RUnlock()
	return c.Do(ctx, req)
}

// Do runs a single request through scope gating, token refresh and the
// cache. Nothing is retried.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	version := req.Version
	if version == "" {
		version = c.cfg.Version
	}
	datasource := req.Datasource
	if datasource == "" {
		datasource = c.cfg.Datasource
	}

	u, err := BuildDataURI(c.cfg.BaseURL, req.Path, req.PathParams, req.Query, version, datasource)
	if err != nil {
		return nil, err
	}
	target := u.String()

	log := c.log.With().
		Str("invocation_id", uuid.NewString()).
		Str("method", method).
		Str("url", target).
		Logger()

	if err := c.checkAccess(log, method, req.Path); err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.hasAuthentication() {
		token, err := c.validAccessToken(ctx, log)
		if err != nil {
			return nil, err
		}
		header.Set("Authorization", "Bearer "+token)
	}

	var body []byte
	if method != http.MethodGet && req.Body != nil {
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}

	key := cache.Fingerprint(method, target, body)
	now := c.now()

	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheNotFound) {
			log.Warn().Err(err).Msg("cache read failed, treating as miss")
		}
		entry = nil
	}

	if entry != nil && entry.Fresh(now) {
		log.Debug().Str("cache", "hit").Int("status", entry.StatusCode).Msg("esi invoke")
		return newResponse(entry.StatusCode, entry.Header, entry.Body, entry.Expires, true, c.now), nil
	}

	var sentETag string
	if entry != nil && entry.ETag != "" {
		sentETag = entry.ETag
		header.Set("If-None-Match", sentETag)
	}

	raw, err := c.GetFetcher().Fetch(ctx, method, target, header, body)
	if err != nil {
		log.Error().Err(err).Msg("esi request failed")
		return nil, &RequestFailedError{Method: method, URL: target, Err: err}
	}

	switch {
	case raw.StatusCode == http.StatusOK:
		fresh := &cache.Entry{
			Body:       raw.Body,
			StatusCode: raw.StatusCode,
			Header:     raw.Header.Clone(),
			Expires:    parseExpires(raw.Header),
			ETag:       raw.Header.Get("ETag"),
			FetchedAt:  now,
		}
		c.cacheMu.Lock()
		c.storeEntry(ctx, log, key, fresh)
		c.cacheMu.Unlock()

		log.Debug().Str("cache", "miss").Int("status", raw.StatusCode).Msg("esi invoke")
		resp := newResponse(fresh.StatusCode, fresh.Header, fresh.Body, fresh.Expires, false, c.now)
		if err := resp.DecodeError(); err != nil {
			log.Debug().Err(err).Int("bytes", len(raw.Body)).Msg("esi response is not JSON")
		}
		return resp, nil

	case raw.StatusCode == http.StatusNotModified:
		if entry == nil || sentETag == "" {
			return nil, &RequestFailedError{
				Method: method, URL: target, StatusCode: raw.StatusCode, Header: raw.Header,
				Err: errors.New("not modified without a cached entry"),
			}
		}
		merged := c.revalidate(ctx, log, key, entry, sentETag, raw.Header)

		log.Debug().Str("cache", "revalidated").Int("status", raw.StatusCode).Msg("esi invoke")
		return newResponse(merged.StatusCode, merged.Header, merged.Body, merged.Expires, false, c.now), nil

	case raw.StatusCode == http.StatusUnauthorized || raw.StatusCode == http.StatusForbidden:
		log.Warn().Int("status", raw.StatusCode).Msg("esi denied access")
		return nil, fmt.Errorf("%w: %w", ErrScopeAccessDenied, &RequestFailedError{
			Method: method, URL: target, StatusCode: raw.StatusCode, Body: raw.Body, Header: raw.Header,
		})

	case raw.StatusCode >= 200 && raw.StatusCode < 300:
		log.Debug().Str("cache", "bypass").Int("status", raw.StatusCode).Msg("esi invoke")
		return newResponse(raw.StatusCode, raw.Header, raw.Body, parseExpires(raw.Header), false, c.now), nil
	}

	log.Warn().Int("status", raw.StatusCode).Msg("esi request failed")
	return nil, &RequestFailedError{
		Method: method, URL: target, StatusCode: raw.StatusCode, Body: raw.Body, Header: raw.Header,
	}
}

func (c *Client) checkAccess(log zerolog.Logger, method, template string) error {
	required, known := c.requirements.For(method, template)
	if !known {
		log.Warn().Str("template", template).Msg("endpoint not in scope table, treating as public")
		return nil
	}

	granted := []string{access.PublicScope}
	c.authMu.Lock()
	if c.authn != nil {
		granted = append(granted, c.authn.Scopes...)
	}
	c.authMu.Unlock()

	if !c.GetAccessChecker().Check(required, granted) {
		return fmt.Errorf("%w: %s %s requires %s", ErrScopeAccessDenied,
			strings.ToLower(method), template, strings.Join(required, " "))
	}
	return nil
}

func (c *Client) hasAuthentication() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.authn != nil
}

// validAccessToken returns a usable access token, refreshing it first when
// missing or expired. Holding authMu across the refresh means concurrent
// callers wait for one refresh and then reuse its token.
func (c *Client) validAccessToken(ctx context.Context, log zerolog.Logger) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if c.authn == nil {
		return "", fmt.Errorf("%w: no authentication set", ErrInvalidAuthentication)
	}
	if err := c.authn.Validate(); err != nil {
		return "", err
	}
	if !c.authn.Expired(c.now()) {
		return c.authn.AccessToken, nil
	}

	log.Debug().Msg("refreshing access token")
	refreshed, err := c.refresher.Refresh(ctx, *c.authn)
	if err != nil {
		log.Error().Err(err).Msg("token refresh failed")
		if !errors.Is(err, ErrInvalidAuthentication) {
			err = fmt.Errorf("%w: %w", ErrInvalidAuthentication, err)
		}
		return "", err
	}
	c.authn = &refreshed
	return refreshed.AccessToken, nil
}

// revalidate merges the headers of a 304 into the cached entry. When the
// stored entry no longer carries sentETag a newer response already
// replaced it and that entry wins.
func (c *Client) revalidate(ctx context.Context, log zerolog.Logger, key string, prior *cache.Entry, sentETag string, h http.Header) *cache.Entry {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	current, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheNotFound) {
			log.Warn().Err(err).Msg("cache read failed during revalidation")
		}
		current = prior
	}
	if current.ETag != sentETag {
		return current
	}

	merged := current.Clone()
	if merged.Header == nil {
		merged.Header = http.Header{}
	}
	for k, vs := range h {
		merged.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	merged.Expires = parseExpires(merged.Header)
	if etag := h.Get("ETag"); etag != "" {
		merged.ETag = etag
	}
	merged.FetchedAt = c.now()

	c.storeEntry(ctx, log, key, merged)
	return merged
}

// storeEntry writes e, logging failures. Callers hold cacheMu.
func (c *Client) storeEntry(ctx context.Context, log zerolog.Logger, key string, e *cache.Entry) {
	if err := c.store.Set(ctx, key, e, c.ttlHint(e.Expires)); err != nil {
		log.Warn().Err(err).Msg("cache write failed")
	}
}

// ttlHint keeps entries around for StaleRetention past their expiry so an
// ETag is still available to revalidate with
func (c *Client) ttlHint(expires time.Time) time.Duration {
	ttl := time.Duration(0)
	if !expires.IsZero() {
		if d := expires.Sub(c.now()); d > 0 {
			ttl = min(d, maxTTLHint)
		}
	}
	return ttl + max(c.cfg.StaleRetention, 0)
}

// maxTTLHint bounds far-future Expires values so the sum can't overflow
const maxTTLHint = 365 * 24 * time.Hour

func parseExpires(h http.Header) time.Time {
	t, err := http.ParseTime(h.Get("Expires"))
	if err != nil {
		return time.Time{}
	}
	return t
}

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const (
	AuthorizeURL    = "https://login.eveonline.com/v2/oauth/authorize"
	DefaultTokenURL = "https://login.eveonline.com/v2/oauth/token"
)

// Refresher exchanges a refresh token for a new access token
type Refresher interface {
	// Refresh returns a copy of a carrying the new access token, its expiry,
	// the granted scopes and, when the server rotated it, the new refresh token.
	Refresh(ctx context.Context, a Authentication) (Authentication, error)
}

// SSORefresher refreshes tokens against the EVE SSO token endpoint
type SSORefresher struct {
	TokenURL   string
	HTTPClient *http.Client
}

// NewSSORefresher creates a refresher for tokenURL. An empty tokenURL uses
// DefaultTokenURL; a nil httpClient uses http.DefaultClient.
func NewSSORefresher(tokenURL string, httpClient *http.Client) *SSORefresher {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &SSORefresher{TokenURL: tokenURL, HTTPClient: httpClient}
}

// Refresh implements Refresher
func (r *SSORefresher) Refresh(ctx context.Context, a Authentication) (Authentication, error) {
	if err := a.Validate(); err != nil {
		return a, fmt.Errorf("%w: %w", ErrInvalidAuthentication, err)
	}

	conf := &oauth2.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.Secret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   AuthorizeURL,
			TokenURL:  r.TokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	if r.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.HTTPClient)
	}

	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: a.RefreshToken}).Token()
	if err != nil {
		return a, fmt.Errorf("%w: refresh token: %w", ErrInvalidAuthentication, err)
	}

	out := a.Clone()
	out.AccessToken = tok.AccessToken
	out.TokenExpires = tok.Expiry
	// x/oauth2 keeps the old refresh token when the server doesn't rotate it
	if tok.RefreshToken != "" {
		out.RefreshToken = tok.RefreshToken
	}
	if scopes := scopesFromToken(tok); len(scopes) > 0 {
		out.Scopes = scopes
	}
	return out, nil
}

// scopesFromToken reads the scp claim of a JWT access token, falling back to
// the scope field of the token response
func scopesFromToken(tok *oauth2.Token) []string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		switch scp := claims["scp"].(type) {
		case string:
			return strings.Fields(scp)
		case []any:
			scopes := make([]string, 0, len(scp))
			for _, s := range scp {
				if str, ok := s.(string); ok {
					scopes = append(scopes, str)
				}
			}
			return scopes
		}
	}

	if scope, ok := tok.Extra("scope").(string); ok {
		return strings.Fields(scope)
	}
	return nil
}

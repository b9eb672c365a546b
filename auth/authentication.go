// Package auth holds ESI SSO credentials and refreshes their access tokens.
package auth

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
)

// TokenExpiresLayout is the textual form accepted for token_expires
const TokenExpiresLayout = "2006-01-02 15:04:05"

var (
	// ErrInvalidContainerData is returned when credentials are missing required
	// keys or carry keys the container does not know about
	ErrInvalidContainerData = errors.New("invalid container data")

	// ErrInvalidAuthentication is returned when credentials are required but
	// unset, or when refreshing the access token fails
	ErrInvalidAuthentication = errors.New("invalid authentication")
)

// Authentication holds the SSO application credentials and the character's tokens
type Authentication struct {
	ClientID     string    `mapstructure:"client_id" json:"client_id"`
	Secret       string    `mapstructure:"secret" json:"secret"`
	AccessToken  string    `mapstructure:"access_token" json:"access_token,omitempty"`
	RefreshToken string    `mapstructure:"refresh_token" json:"refresh_token"`
	TokenExpires time.Time `mapstructure:"token_expires" json:"token_expires"`
	Scopes       []string  `mapstructure:"scopes" json:"scopes,omitempty"`
}

// NewAuthentication builds an Authentication from untyped key/value data.
// Unknown keys and missing client_id, secret or refresh_token fail with
// ErrInvalidContainerData.
func NewAuthentication(data map[string]any) (*Authentication, error) {
	var a Authentication
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			tokenExpiresHook,
			mapstructure.StringToSliceHookFunc(" "),
		),
		ErrorUnused: true,
		Result:      &a,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainerData, err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate checks that the fields needed to refresh a token are present
func (a Authentication) Validate() error {
	var result *multierror.Error
	if a.ClientID == "" {
		result = multierror.Append(result, errors.New("client_id is required"))
	}
	if a.Secret == "" {
		result = multierror.Append(result, errors.New("secret is required"))
	}
	if a.RefreshToken == "" {
		result = multierror.Append(result, errors.New("refresh_token is required"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContainerData, err)
	}
	return nil
}

// Expired reports whether the access token is missing or expires at or before now
func (a Authentication) Expired(now time.Time) bool {
	return a.AccessToken == "" || !a.TokenExpires.After(now)
}

// Clone returns a copy that shares no memory with a
func (a Authentication) Clone() Authentication {
	if a.Scopes != nil {
		a.Scopes = append([]string(nil), a.Scopes...)
	}
	return a
}

var timeType = reflect.TypeOf(time.Time{})

func tokenExpiresHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}

	switch v := data.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(TokenExpiresLayout, s); err == nil {
			return t, nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("token_expires: unrecognised time %q", v)
		}
		return t, nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	}
	return data, nil
}

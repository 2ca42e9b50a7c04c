package gigachat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hairizuanbinnoorazman/ui-sentinel/internal/uuidutil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// fallbackTTL is assumed when the token response and the token itself carry no expiry.
	fallbackTTL = 25 * time.Minute
	// refreshSkew renews the token this long before it actually expires.
	refreshSkew = 60 * time.Second
)

// ErrStaticToken is returned when a refresh is requested for a preconfigured access token.
var ErrStaticToken = errors.New("gigachat: static access token cannot be refreshed")

// AuthMode selects how the access token is obtained.
type AuthMode string

const (
	// AuthBasic exchanges a base64 "client_id:client_secret" authorization key with the
	// client-credentials grant.
	AuthBasic AuthMode = "basic"
	// AuthPassword uses the resource-owner password grant against a Keycloak realm.
	AuthPassword AuthMode = "password"
	// AuthToken uses a preissued access token as is.
	AuthToken AuthMode = "token"
)

func (b *Backend) exchange(ctx context.Context) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.authClient)

	var (
		tok *oauth2.Token
		err error
	)
	switch b.cfg.AuthMode {
	case AuthToken:
		raw := strings.TrimSpace(strings.TrimPrefix(b.cfg.AccessToken, "Bearer "))
		if raw == "" {
			return nil, fmt.Errorf("gigachat: access token is empty")
		}
		tok = &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	case AuthPassword:
		cfg := oauth2.Config{
			ClientID:     b.cfg.ClientID,
			ClientSecret: b.cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  b.cfg.AuthURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes(b.cfg.Scope),
		}
		tok, err = cfg.PasswordCredentialsToken(ctx, b.cfg.Username, b.cfg.Password)
	default:
		clientID, clientSecret, kerr := b.cfg.clientCredentials()
		if kerr != nil {
			return nil, kerr
		}
		cfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     b.cfg.AuthURL,
			Scopes:       scopes(b.cfg.Scope),
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		tok, err = cfg.Token(ctx)
	}
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, fmt.Errorf("gigachat: token exchange failed with status %d: %w", rerr.Response.StatusCode, err)
		}
		return nil, fmt.Errorf("gigachat: token exchange failed: %w", err)
	}

	tok.Expiry = tokenExpiry(tok, b.now())
	return tok, nil
}

// clientCredentials returns the client id and secret, decoding the authorization key when set.
func (c Config) clientCredentials() (string, string, error) {
	if c.AuthorizationKey == "" {
		if c.ClientID == "" || c.ClientSecret == "" {
			return "", "", fmt.Errorf("gigachat: authorization key or client id and secret are required")
		}
		return c.ClientID, c.ClientSecret, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.AuthorizationKey))
	if err != nil {
		return "", "", fmt.Errorf("gigachat: authorization key is not base64: %w", err)
	}
	id, secret, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", fmt.Errorf("gigachat: authorization key must encode client_id:client_secret")
	}
	return id, secret, nil
}

// tokenExpiry picks the first expiry it can find: expires_in from the response, the gateway's
// expires_at in epoch milliseconds, the JWT exp claim, and finally a fixed lifetime.
func tokenExpiry(tok *oauth2.Token, now time.Time) time.Time {
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	if v, ok := numeric(tok.Extra("expires_at")); ok && v > 0 {
		if v > 1e12 {
			return time.UnixMilli(int64(v))
		}
		return time.Unix(int64(v), 0)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(fallbackTTL)
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func scopes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

// rqUIDTransport stamps every request with a fresh RqUID, which the token endpoint requires.
type rqUIDTransport struct {
	base http.RoundTripper
}

func (t rqUIDTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("RqUID", uuidutil.New().String())
	return t.base.RoundTrip(r)
}

package security

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Token request outcomes reported to the TokenObserver.
const (
	TokenCacheHit  = "cache_hit"
	TokenPreIssued = "pre_issued"
	TokenAcquired  = "acquired"
	TokenFailed    = "failed"
)

// TokenObserver receives one event per OAuth2 token resolution.
type TokenObserver interface {
	ObserveTokenRequest(scheme, result string)
}

// tokenURL prefers the client-credentials flow and falls back to the password flow.
func tokenURL(scheme *openapi3.SecurityScheme) string {
	if scheme == nil || scheme.Flows == nil {
		return ""
	}
	if f := scheme.Flows.ClientCredentials; f != nil && strings.TrimSpace(f.TokenURL) != "" {
		return strings.TrimSpace(f.TokenURL)
	}
	if f := scheme.Flows.Password; f != nil && strings.TrimSpace(f.TokenURL) != "" {
		return strings.TrimSpace(f.TokenURL)
	}
	return ""
}

// oauthScopes resolves requested scopes: OAUTH_SCOPES_<NAME> first, then the
// requirement's scopes, then every scope the flow declares.
func (n *Negotiator) oauthScopes(name string, required []string, scheme *openapi3.SecurityScheme) []string {
	if raw, ok := n.creds.Get(EnvOAuthScopes, name); ok {
		return strings.Fields(raw)
	}
	if len(required) > 0 {
		return append([]string(nil), required...)
	}
	if scheme.Flows == nil {
		return nil
	}
	flow := scheme.Flows.ClientCredentials
	if flow == nil {
		flow = scheme.Flows.Password
	}
	if flow == nil {
		return nil
	}
	out := make([]string, 0, len(flow.Scopes))
	for s := range flow.Scopes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// oauthToken returns an access token for the scheme or "" when none can be had.
func (n *Negotiator) oauthToken(ctx context.Context, name string, required []string, scheme *openapi3.SecurityScheme) string {
	clientID, _ := n.creds.Get(EnvOAuthClientID, name)
	if tok, ok := n.tokens.Get(name, clientID); ok {
		n.observe(name, TokenCacheHit)
		return tok
	}
	if tok, ok := n.creds.Get(EnvOAuthToken, name); ok {
		n.observe(name, TokenPreIssued)
		return tok
	}
	secret, hasSecret := n.creds.Get(EnvOAuthClientSecret, name)
	if clientID == "" || !hasSecret {
		return ""
	}
	endpoint := tokenURL(scheme)
	if endpoint == "" {
		n.log.Warn().Str("scheme", name).Msg("oauth2 scheme declares no token url")
		n.observe(name, TokenFailed)
		return ""
	}
	scopes := n.oauthScopes(name, required, scheme)
	tok, lifetime, err := n.acquire(ctx, endpoint, clientID, secret, scopes)
	if err != nil {
		n.log.Warn().Err(err).Str("scheme", name).Str("token_url", endpoint).Msg("oauth2 token acquisition failed")
		n.observe(name, TokenFailed)
		return ""
	}
	n.tokens.Put(name, clientID, tok, ExpiresAt(n.now(), lifetime))
	n.observe(name, TokenAcquired)
	n.log.Debug().Str("scheme", name).Dur("lifetime", lifetime).Msg("oauth2 token acquired")
	return tok
}

// acquire runs a client-credentials grant with HTTP Basic client authentication.
func (n *Negotiator) acquire(ctx context.Context, endpoint, clientID, secret string, scopes []string) (string, time.Duration, error) {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: secret,
		TokenURL:     endpoint,
		Scopes:       scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	client := n.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	tok, err := cfg.Token(ctx)
	if err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", 0, fmt.Errorf("token response has no access_token")
	}
	return tok.AccessToken, expiresIn(tok), nil
}

func expiresIn(tok *oauth2.Token) time.Duration {
	var seconds float64
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		seconds = v
	case int64:
		seconds = float64(v)
	case json.Number:
		seconds, _ = v.Float64()
	case string:
		seconds, _ = strconv.ParseFloat(v, 64)
	}
	if seconds <= 0 {
		return DefaultTokenLifetime
	}
	return time.Duration(seconds * float64(time.Second))
}

func (n *Negotiator) observe(scheme, result string) {
	if n.observer != nil {
		n.observer.ObserveTokenRequest(scheme, result)
	}
}

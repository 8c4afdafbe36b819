package security

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
)

func mapLookup(values map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func testSchemes(tokenURL string) map[string]*openapi3.SecurityScheme {
	return map[string]*openapi3.SecurityScheme{
		"insightsApiKey": {Type: "apiKey", In: "header", Name: "x-api-key"},
		"queryKey":       {Type: "apiKey", In: "query", Name: "api_key"},
		"cookieKey":      {Type: "apiKey", In: "cookie", Name: "session"},
		"basicAuth":      {Type: "http", Scheme: "basic"},
		"bearerAuth":     {Type: "http", Scheme: "bearer"},
		"oidc":           {Type: "openIdConnect", OpenIdConnectUrl: "https://auth.example.test/.well-known/openid-configuration"},
		"partnerOAuth": {Type: "oauth2", Flows: &openapi3.OAuthFlows{
			ClientCredentials: &openapi3.OAuthFlow{TokenURL: tokenURL, Scopes: map[string]string{"status:read": "read"}},
		}},
	}
}

func req(names ...string) catalog.SecurityRequirement {
	group := catalog.SecurityRequirement{}
	for _, n := range names {
		group = append(group, catalog.SchemeRef{Name: n})
	}
	return group
}

type countingObserver struct {
	mu     sync.Mutex
	events map[string]int
}

func (o *countingObserver) ObserveTokenRequest(scheme, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = map[string]int{}
	}
	o.events[scheme+"/"+result]++
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "INSIGHTSAPIKEY", EnvName("insightsApiKey"))
	assert.Equal(t, "PARTNER_OAUTH_V2", EnvName("partner-oauth.v2"))
}

func TestNegotiateNoRequirements(t *testing.T) {
	n := NewNegotiator(testSchemes(""), Options{Lookup: mapLookup(nil), Logger: zerolog.Nop()})
	d := n.Negotiate(context.Background(), nil)
	assert.True(t, d.Satisfied)
	assert.False(t, d.Unauthenticated())
	assert.True(t, d.Decoration.IsZero())
}

func TestNegotiateFirstSatisfiableRequirementWins(t *testing.T) {
	n := NewNegotiator(testSchemes(""), Options{
		Lookup: mapLookup(map[string]string{
			"API_KEY_INSIGHTSAPIKEY":  "k1",
			"BEARER_TOKEN_BEARERAUTH": "b1",
		}),
		Logger: zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{
		req("oidc"),
		req("insightsApiKey"),
		req("bearerAuth"),
	})
	require.True(t, d.Satisfied)
	assert.Equal(t, "insightsApiKey", d.Requirement)
	assert.Equal(t, map[string]string{"x-api-key": "k1"}, d.Decoration.Headers)
	assert.Equal(t, []string{"oidc", "insightsApiKey"}, d.Tried)
}

func TestNegotiateAndGroupNeedsEveryScheme(t *testing.T) {
	n := NewNegotiator(testSchemes(""), Options{
		Lookup: mapLookup(map[string]string{
			"API_KEY_QUERYKEY":  "q1",
			"API_KEY_COOKIEKEY": "c1",
			"OPENID_TOKEN_OIDC": "id-token",
		}),
		Logger: zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{
		req("basicAuth", "queryKey"),
		req("cookieKey", "oidc", "queryKey"),
	})
	require.True(t, d.Satisfied)
	assert.Equal(t, "cookieKey+oidc+queryKey", d.Requirement)
	assert.Equal(t, "Bearer id-token", d.Decoration.Headers["Authorization"])
	assert.Equal(t, "q1", d.Decoration.Query["api_key"])
	assert.Equal(t, "c1", d.Decoration.Cookies["session"])

	r := httptest.NewRequest(http.MethodGet, "https://api.example.test/x?a=1", nil)
	d.Decoration.Apply(r)
	assert.Equal(t, "q1", r.URL.Query().Get("api_key"))
	assert.Equal(t, "1", r.URL.Query().Get("a"))
	assert.Equal(t, "session=c1", r.Header.Get("Cookie"))
}

func TestNegotiateEmptyGroupIsSatisfiedWithoutCredentials(t *testing.T) {
	n := NewNegotiator(testSchemes(""), Options{Lookup: mapLookup(nil), Logger: zerolog.Nop()})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{req("bearerAuth"), {}})
	assert.True(t, d.Satisfied)
	assert.Equal(t, "{}", d.Requirement)
	assert.True(t, d.Decoration.IsZero())
}

func TestNegotiateBasicAuth(t *testing.T) {
	n := NewNegotiator(testSchemes(""), Options{
		Lookup: mapLookup(map[string]string{
			"BASIC_USERNAME_BASICAUTH": "alice",
			"BASIC_PASSWORD_BASICAUTH": "s3cret",
		}),
		Logger: zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{req("basicAuth")})
	require.True(t, d.Satisfied)
	assert.Equal(t, "Basic YWxpY2U6czNjcmV0", d.Decoration.Headers["Authorization"])
}

func TestNegotiateFallsBackToUnauthenticated(t *testing.T) {
	n := NewNegotiator(testSchemes(""), Options{
		Lookup: mapLookup(map[string]string{"BASIC_USERNAME_BASICAUTH": "alice", "BEARER_TOKEN_BEARERAUTH": "  "}),
		Logger: zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{req("basicAuth"), req("bearerAuth")})
	assert.False(t, d.Satisfied)
	assert.True(t, d.Unauthenticated())
	assert.True(t, d.Decoration.IsZero())
	assert.Equal(t, []string{"basicAuth", "bearerAuth"}, d.Tried)
}

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newTokenServer(t *testing.T, expiresIn any) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		n := ts.calls.Add(1)
		body := map[string]any{
			"access_token": "token-" + string(rune('0'+n)),
			"token_type":   "bearer",
			"scope":        r.Form.Get("scope"),
		}
		if expiresIn != nil {
			body["expires_in"] = expiresIn
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func oauthEnv() Lookup {
	return mapLookup(map[string]string{
		"OAUTH_CLIENT_ID_PARTNEROAUTH":     "client",
		"OAUTH_CLIENT_SECRET_PARTNEROAUTH": "secret",
	})
}

func TestOAuthTokenIsCachedUntilExpiry(t *testing.T) {
	server := newTokenServer(t, 120)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	observer := &countingObserver{}
	n := NewNegotiator(testSchemes(server.URL), Options{
		HTTPClient: server.Client(),
		Lookup:     oauthEnv(),
		Observer:   observer,
		Logger:     zerolog.Nop(),
		Now:        clock.Now,
	})
	reqs := []catalog.SecurityRequirement{{{Name: "partnerOAuth", Scopes: []string{"status:read"}}}}

	first := n.Negotiate(context.Background(), reqs)
	require.True(t, first.Satisfied)
	assert.Equal(t, "Bearer token-1", first.Decoration.Headers["Authorization"])

	clock.Advance(59 * time.Second)
	second := n.Negotiate(context.Background(), reqs)
	assert.Equal(t, "Bearer token-1", second.Decoration.Headers["Authorization"])
	assert.EqualValues(t, 1, server.calls.Load())

	// 120s lifetime minus the 60s margin.
	clock.Advance(time.Second)
	third := n.Negotiate(context.Background(), reqs)
	assert.Equal(t, "Bearer token-2", third.Decoration.Headers["Authorization"])
	assert.EqualValues(t, 2, server.calls.Load())

	assert.Equal(t, 2, observer.events["partnerOAuth/"+TokenAcquired])
	assert.Equal(t, 1, observer.events["partnerOAuth/"+TokenCacheHit])
}

func TestOAuthDefaultLifetime(t *testing.T) {
	server := newTokenServer(t, nil)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := NewNegotiator(testSchemes(server.URL), Options{
		HTTPClient: server.Client(), Lookup: oauthEnv(), Logger: zerolog.Nop(), Now: clock.Now,
	})
	reqs := []catalog.SecurityRequirement{req("partnerOAuth")}

	n.Negotiate(context.Background(), reqs)
	clock.Advance(3539 * time.Second)
	n.Negotiate(context.Background(), reqs)
	assert.EqualValues(t, 1, server.calls.Load())
	clock.Advance(time.Second)
	n.Negotiate(context.Background(), reqs)
	assert.EqualValues(t, 2, server.calls.Load())
}

func TestOAuthPreIssuedTokenSkipsAcquisition(t *testing.T) {
	server := newTokenServer(t, 120)
	n := NewNegotiator(testSchemes(server.URL), Options{
		HTTPClient: server.Client(),
		Lookup:     mapLookup(map[string]string{"OAUTH_TOKEN_PARTNEROAUTH": "static-token"}),
		Logger:     zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{req("partnerOAuth")})
	require.True(t, d.Satisfied)
	assert.Equal(t, "Bearer static-token", d.Decoration.Headers["Authorization"])
	assert.EqualValues(t, 0, server.calls.Load())
}

func TestOAuthFailureKeepsSelectedRequirement(t *testing.T) {
	server := newTokenServer(t, 120)
	observer := &countingObserver{}
	n := NewNegotiator(testSchemes(server.URL), Options{
		HTTPClient: server.Client(),
		Lookup: mapLookup(map[string]string{
			"OAUTH_CLIENT_ID_PARTNEROAUTH":     "client",
			"OAUTH_CLIENT_SECRET_PARTNEROAUTH": "wrong",
			"API_KEY_INSIGHTSAPIKEY":           "k",
		}),
		Observer: observer,
		Logger:   zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{req("partnerOAuth"), req("insightsApiKey")})
	assert.Equal(t, "partnerOAuth", d.Requirement)
	assert.False(t, d.Satisfied)
	assert.True(t, d.Unauthenticated())
	assert.True(t, d.Decoration.IsZero())
	assert.Equal(t, []string{"partnerOAuth"}, d.Tried)
	assert.Equal(t, 1, observer.events["partnerOAuth/"+TokenFailed])
}

func TestOAuthFailureInAndGroupKeepsOtherSchemes(t *testing.T) {
	server := newTokenServer(t, 120)
	n := NewNegotiator(testSchemes(server.URL), Options{
		HTTPClient: server.Client(),
		Lookup: mapLookup(map[string]string{
			"OAUTH_CLIENT_ID_PARTNEROAUTH":     "client",
			"OAUTH_CLIENT_SECRET_PARTNEROAUTH": "wrong",
			"API_KEY_INSIGHTSAPIKEY":           "k",
		}),
		Logger: zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{req("partnerOAuth", "insightsApiKey")})
	assert.Equal(t, "partnerOAuth+insightsApiKey", d.Requirement)
	assert.True(t, d.Unauthenticated())
	assert.Equal(t, map[string]string{"x-api-key": "k"}, d.Decoration.Headers)
}

func TestUnsatisfiableGroupRequestsNoToken(t *testing.T) {
	server := newTokenServer(t, 120)
	observer := &countingObserver{}
	n := NewNegotiator(testSchemes(server.URL), Options{
		HTTPClient: server.Client(),
		Lookup: mapLookup(map[string]string{
			"OAUTH_CLIENT_ID_PARTNEROAUTH":     "client",
			"OAUTH_CLIENT_SECRET_PARTNEROAUTH": "secret",
			"BEARER_TOKEN_BEARERAUTH":          "b1",
		}),
		Observer: observer,
		Logger:   zerolog.Nop(),
	})
	d := n.Negotiate(context.Background(), []catalog.SecurityRequirement{
		req("partnerOAuth", "insightsApiKey"),
		req("bearerAuth"),
	})
	require.True(t, d.Satisfied)
	assert.Equal(t, "bearerAuth", d.Requirement)
	assert.Equal(t, "Bearer b1", d.Decoration.Headers["Authorization"])
	assert.EqualValues(t, 0, server.calls.Load())
	assert.Empty(t, observer.events)
}

func TestOAuthSatisfiableNeedsClientCredentialsOrPasswordFlow(t *testing.T) {
	schemes := map[string]*openapi3.SecurityScheme{
		"codeOnly": {Type: "oauth2", Flows: &openapi3.OAuthFlows{
			AuthorizationCode: &openapi3.OAuthFlow{AuthorizationURL: "https://auth.example.test/authorize", TokenURL: "https://auth.example.test/token"},
		}},
		"passwordFlow": {Type: "oauth2", Flows: &openapi3.OAuthFlows{
			Password: &openapi3.OAuthFlow{TokenURL: "https://auth.example.test/token"},
		}},
		"noFlows": {Type: "oauth2"},
	}
	n := NewNegotiator(schemes, Options{
		Lookup: mapLookup(map[string]string{
			"OAUTH_CLIENT_ID_CODEONLY":         "c",
			"OAUTH_CLIENT_SECRET_CODEONLY":     "s",
			"OAUTH_CLIENT_ID_PASSWORDFLOW":     "c",
			"OAUTH_CLIENT_SECRET_PASSWORDFLOW": "s",
			"OAUTH_TOKEN_NOFLOWS":              "static",
		}),
		Logger: zerolog.Nop(),
	})
	assert.False(t, n.satisfiable(catalog.SchemeRef{Name: "codeOnly"}))
	assert.True(t, n.satisfiable(catalog.SchemeRef{Name: "passwordFlow"}))
	assert.True(t, n.satisfiable(catalog.SchemeRef{Name: "noFlows"}))
	assert.False(t, n.satisfiable(catalog.SchemeRef{Name: "missing"}))
}

func TestOAuthConcurrentNegotiation(t *testing.T) {
	server := newTokenServer(t, 3600)
	n := NewNegotiator(testSchemes(server.URL), Options{
		HTTPClient: server.Client(), Lookup: oauthEnv(), Logger: zerolog.Nop(),
	})
	reqs := []catalog.SecurityRequirement{req("partnerOAuth")}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := n.Negotiate(context.Background(), reqs)
			assert.True(t, d.Satisfied)
		}()
	}
	wg.Wait()
	tok, ok := n.tokens.Get("partnerOAuth", "client")
	require.True(t, ok)
	assert.NotEmpty(t, tok)
}

func TestTokenCache(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewTokenCache(clock.Now)

	cache.Put("s", "a", "expired", clock.Now().Add(-time.Second))
	_, ok := cache.Get("s", "a")
	assert.False(t, ok)

	cache.Put("s", "a", "t1", ExpiresAt(clock.Now(), 90*time.Second))
	cache.Put("s", "b", "t2", ExpiresAt(clock.Now(), 0))
	got, ok := cache.Get("s", "a")
	require.True(t, ok)
	assert.Equal(t, "t1", got)

	clock.Advance(30 * time.Second)
	_, ok = cache.Get("s", "a")
	assert.False(t, ok)
	got, ok = cache.Get("s", "b")
	require.True(t, ok)
	assert.Equal(t, "t2", got)
}

func TestTokenCacheStaleReadKeepsEntry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewTokenCache(clock.Now)

	cache.Put("s", "a", "old", ExpiresAt(clock.Now(), 90*time.Second))
	clock.Advance(time.Minute)
	_, ok := cache.Get("s", "a")
	require.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	cache.Put("s", "a", "fresh", ExpiresAt(clock.Now(), 90*time.Second))
	_, _ = cache.Get("s", "b")
	got, ok := cache.Get("s", "a")
	require.True(t, ok)
	assert.Equal(t, "fresh", got)
}

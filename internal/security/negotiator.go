// Package security picks credentials for an outgoing call from the endpoint's
// alternative security requirements and turns them into request decorations.
package security

import (
	"context"
	"encoding/base64"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
)

// Decoration is the authentication material applied to one outgoing request.
type Decoration struct {
	Headers map[string]string
	Query   map[string]string
	Cookies map[string]string
}

func (d Decoration) IsZero() bool {
	return len(d.Headers) == 0 && len(d.Query) == 0 && len(d.Cookies) == 0
}

func (d *Decoration) merge(other Decoration) {
	for k, v := range other.Headers {
		if d.Headers == nil {
			d.Headers = map[string]string{}
		}
		d.Headers[k] = v
	}
	for k, v := range other.Query {
		if d.Query == nil {
			d.Query = map[string]string{}
		}
		d.Query[k] = v
	}
	for k, v := range other.Cookies {
		if d.Cookies == nil {
			d.Cookies = map[string]string{}
		}
		d.Cookies[k] = v
	}
}

// Apply sets headers, query parameters and a combined Cookie header on req.
func (d Decoration) Apply(req *http.Request) {
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	if len(d.Query) > 0 {
		q := req.URL.Query()
		for k, v := range d.Query {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	if len(d.Cookies) > 0 {
		names := make([]string, 0, len(d.Cookies))
		for k := range d.Cookies {
			names = append(names, k)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		if existing := req.Header.Get("Cookie"); existing != "" {
			parts = append(parts, existing)
		}
		for _, k := range names {
			parts = append(parts, k+"="+d.Cookies[k])
		}
		req.Header.Set("Cookie", strings.Join(parts, "; "))
	}
}

// Decision is the outcome of negotiating one endpoint's requirements.
type Decision struct {
	Decoration Decoration
	// Requirement is the selected AND-group, empty when none was satisfiable.
	Requirement string
	// Required is false when the endpoint declares no security at all.
	Required bool
	// Satisfied is false when nothing was selectable or a selected scheme
	// failed to produce its credential.
	Satisfied bool
	Tried     []string
}

// Unauthenticated reports whether the call proceeds without credentials it asked for.
func (d Decision) Unauthenticated() bool {
	return d.Required && !d.Satisfied
}

type Options struct {
	HTTPClient *http.Client
	Lookup     Lookup
	Tokens     *TokenCache
	Observer   TokenObserver
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Negotiator is safe for concurrent use; the token cache is its only mutable state.
type Negotiator struct {
	schemes    map[string]*openapi3.SecurityScheme
	creds      *Credentials
	tokens     *TokenCache
	httpClient *http.Client
	observer   TokenObserver
	log        zerolog.Logger
	now        func() time.Time
}

func NewNegotiator(schemes map[string]*openapi3.SecurityScheme, opts Options) *Negotiator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = NewTokenCache(now)
	}
	return &Negotiator{
		schemes:    schemes,
		creds:      NewCredentials(opts.Lookup),
		tokens:     tokens,
		httpClient: opts.HTTPClient,
		observer:   opts.Observer,
		log:        opts.Logger,
		now:        now,
	}
}

// Negotiate selects the first AND-group, in declared order, whose every
// scheme is satisfiable from configuration alone, then applies that group
// only. An empty group is satisfied without credentials. Selection never
// touches the network: a token fetch that fails while applying leaves the
// call unauthenticated for that scheme instead of moving to a later group.
func (n *Negotiator) Negotiate(ctx context.Context, reqs []catalog.SecurityRequirement) Decision {
	if len(reqs) == 0 {
		return Decision{Satisfied: true}
	}
	decision := Decision{Required: true}
	for _, group := range reqs {
		decision.Tried = append(decision.Tried, group.String())
		if !n.selectable(group) {
			continue
		}
		decision.Requirement = group.String()
		decision.Satisfied = true
		for _, ref := range group {
			deco, ok := n.apply(ctx, ref)
			if !ok {
				decision.Satisfied = false
				n.log.Warn().
					Str("requirement", decision.Requirement).
					Str("scheme", ref.Name).
					Msg("selected security scheme produced no credential; calling upstream without it")
				continue
			}
			decision.Decoration.merge(deco)
		}
		return decision
	}
	n.log.Warn().
		Strs("requirements", decision.Tried).
		Msg("no security requirement could be satisfied; calling upstream unauthenticated")
	return decision
}

func (n *Negotiator) selectable(group catalog.SecurityRequirement) bool {
	for _, ref := range group {
		if !n.satisfiable(ref) {
			return false
		}
	}
	return true
}

// satisfiable reports whether the configured credentials cover the scheme.
// It reads only the environment and the scheme declaration.
func (n *Negotiator) satisfiable(ref catalog.SchemeRef) bool {
	scheme := n.schemes[ref.Name]
	if scheme == nil {
		return false
	}
	switch strings.ToLower(scheme.Type) {
	case "apikey":
		if !n.creds.Has(EnvAPIKey, ref.Name) || scheme.Name == "" {
			return false
		}
		switch strings.ToLower(scheme.In) {
		case "header", "query", "cookie":
			return true
		}
		return false
	case "http":
		switch strings.ToLower(scheme.Scheme) {
		case "basic":
			return n.creds.Has(EnvBasicUsername, ref.Name) && n.creds.Has(EnvBasicPassword, ref.Name)
		case "bearer":
			return n.creds.Has(EnvBearerToken, ref.Name)
		}
		return false
	case "oauth2":
		if n.creds.Has(EnvOAuthToken, ref.Name) {
			return true
		}
		return n.creds.Has(EnvOAuthClientID, ref.Name) &&
			n.creds.Has(EnvOAuthClientSecret, ref.Name) &&
			scheme.Flows != nil &&
			(scheme.Flows.ClientCredentials != nil || scheme.Flows.Password != nil)
	case "openidconnect":
		return n.creds.Has(EnvOpenIDToken, ref.Name)
	}
	return false
}

// apply builds the decoration for a satisfiable scheme. Only oauth2 can fail
// here, when no token could be had.
func (n *Negotiator) apply(ctx context.Context, ref catalog.SchemeRef) (Decoration, bool) {
	scheme := n.schemes[ref.Name]
	switch strings.ToLower(scheme.Type) {
	case "apikey":
		key, _ := n.creds.Get(EnvAPIKey, ref.Name)
		switch strings.ToLower(scheme.In) {
		case "query":
			return Decoration{Query: map[string]string{scheme.Name: key}}, true
		case "cookie":
			return Decoration{Cookies: map[string]string{scheme.Name: key}}, true
		}
		return Decoration{Headers: map[string]string{scheme.Name: key}}, true
	case "http":
		if strings.EqualFold(scheme.Scheme, "basic") {
			user, _ := n.creds.Get(EnvBasicUsername, ref.Name)
			pass, _ := n.creds.Get(EnvBasicPassword, ref.Name)
			raw := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
			return bearerLike("Basic " + raw), true
		}
		tok, _ := n.creds.Get(EnvBearerToken, ref.Name)
		return bearerLike("Bearer " + tok), true
	case "oauth2":
		tok := n.oauthToken(ctx, ref.Name, ref.Scopes, scheme)
		if tok == "" {
			return Decoration{}, false
		}
		return bearerLike("Bearer " + tok), true
	}
	tok, _ := n.creds.Get(EnvOpenIDToken, ref.Name)
	return bearerLike("Bearer " + tok), true
}

func bearerLike(value string) Decoration {
	return Decoration{Headers: map[string]string{"Authorization": value}}
}

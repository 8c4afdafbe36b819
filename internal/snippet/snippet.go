// Package snippet renders illustrative client code for catalog actions.
// Snippets are a convenience: they show the request shape with credential
// placeholders and are never executed.
package snippet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
	"github.com/ggonzalez94/insights-mcp/internal/security"
)

const (
	NotSupported       = "SNIPPET_GENERATION_NOT_SUPPORTED"
	UnsupportedMessage = "Unsupported or missing language"
)

const (
	LangCurl       = "curl"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangGo         = "go"
)

var aliases = map[string]string{
	"curl":       LangCurl,
	"shell":      LangCurl,
	"python":     LangPython,
	"py":         LangPython,
	"javascript": LangJavaScript,
	"js":         LangJavaScript,
	"typescript": LangJavaScript,
	"ts":         LangJavaScript,
	"go":         LangGo,
	"golang":     LangGo,
}

// Languages returns the canonical language names.
func Languages() []string {
	return []string{LangCurl, LangGo, LangJavaScript, LangPython}
}

// NormalizeLanguage maps a caller-supplied language or alias to its canonical name.
func NormalizeLanguage(lang string) (string, bool) {
	canonical, ok := aliases[strings.ToLower(strings.TrimSpace(lang))]
	return canonical, ok
}

// Header is one request header in render order.
type Header struct {
	Name  string
	Value string
}

// Request is the language-neutral shape every template renders.
type Request struct {
	Method string
	URL    string
	Header []Header
	Body   string
}

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// Build derives the illustrative request for one endpoint. Missing path values
// stay as {name} placeholders and credentials appear as <ENV_NAME> markers.
func Build(ep *catalog.Endpoint, schemes map[string]*openapi3.SecurityScheme, baseURL string, chains *registry.Registry, payload map[string]any) (Request, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	switch strings.ToLower(ep.Executor) {
	case "", "api":
		return buildAPI(ep, schemes, baseURL, payload)
	case "rpc":
		return buildRPC(ep, chains, payload)
	case "lcd":
		return buildLCD(chains, payload)
	case "gateway":
		return buildGateway(ep, chains, payload)
	default:
		return Request{}, clierr.New(clierr.CodeInput, NotSupported)
	}
}

func buildAPI(ep *catalog.Endpoint, schemes map[string]*openapi3.SecurityScheme, baseURL string, payload map[string]any) (Request, error) {
	used := map[string]bool{}
	path := fillPath(ep.Path, payload, used)
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = registry.JoinPath(baseURL, path)
	}
	query := url.Values{}
	var headers []Header
	for _, p := range ep.Params {
		used[p.Name] = true
		v, ok := payload[p.Name]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case catalog.InQuery:
			addQuery(query, p.Name, v)
		case catalog.InHeader:
			headers = append(headers, Header{Name: p.Name, Value: stringify(v)})
		}
	}
	creds, credQuery := credentialPlaceholders(ep, schemes)
	headers = append(headers, creds...)
	for k, v := range credQuery {
		query.Set(k, v)
	}
	req := Request{Method: ep.Method, URL: withQuery(target, query), Header: headers}

	if ep.Method == "POST" || ep.Method == "PUT" || ep.Method == "PATCH" || ep.BodyContentType != "" {
		body, ok := payload["requestBody"]
		if !ok {
			rest := map[string]any{}
			for k, v := range payload {
				if !used[k] {
					rest[k] = v
				}
			}
			body = rest
		}
		text, err := indent(body)
		if err != nil {
			return Request{}, err
		}
		contentType := ep.BodyContentType
		if contentType == "" {
			contentType = "application/json"
		}
		req.Header = append(req.Header, Header{Name: "Content-Type", Value: contentType})
		req.Body = text
	}
	sortHeaders(req.Header)
	return req, nil
}

func buildRPC(ep *catalog.Endpoint, chains *registry.Registry, payload map[string]any) (Request, error) {
	lower := strings.ToLower(ep.Name)
	cosmos := strings.Contains(lower, "cosmos") || strings.Contains(lower, "tendermint")
	target := chainEndpoint(chains, payload, func(c registry.Chain) []string {
		if cosmos {
			return c.CosmosRPC
		}
		return c.EVMRPC
	})
	method, _ := payload["rpc_method"].(string)
	if method == "" {
		method = "{rpc_method}"
	}
	params, ok := payload["params"]
	if !ok || params == nil {
		params = []any{}
	}
	body, err := indent(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	if err != nil {
		return Request{}, err
	}
	return Request{
		Method: "POST",
		URL:    target,
		Header: []Header{{Name: "Content-Type", Value: "application/json"}},
		Body:   body,
	}, nil
}

func buildLCD(chains *registry.Registry, payload map[string]any) (Request, error) {
	base := chainEndpoint(chains, payload, func(c registry.Chain) []string { return c.CosmosLCD })
	path, _ := payload["path"].(string)
	if path == "" {
		path = "{path}"
	}
	method, _ := payload["method"].(string)
	method = strings.ToUpper(method)
	if method == "" {
		method = "GET"
	}
	query := url.Values{}
	if q, ok := payload["query"].(map[string]any); ok {
		for k, v := range q {
			addQuery(query, k, v)
		}
	}
	req := Request{Method: method, URL: withQuery(registry.JoinPath(base, path), query)}
	if body, ok := payload["body"]; ok && method == "POST" {
		text, err := indent(body)
		if err != nil {
			return Request{}, err
		}
		req.Header = []Header{{Name: "Content-Type", Value: "application/json"}}
		req.Body = text
	}
	return req, nil
}

func buildGateway(ep *catalog.Endpoint, chains *registry.Registry, payload map[string]any) (Request, error) {
	base := chainEndpoint(chains, payload, func(c registry.Chain) []string {
		if c.Gateway == "" {
			return nil
		}
		return []string{c.Gateway}
	})
	path := fillPath(ep.Path, payload, map[string]bool{})
	query := url.Values{}
	var headers []Header
	for _, p := range ep.Params {
		v, ok := payload[p.Name]
		if !ok || v == nil {
			continue
		}
		switch p.In {
		case catalog.InQuery:
			addQuery(query, p.Name, v)
		case catalog.InHeader:
			headers = append(headers, Header{Name: p.Name, Value: stringify(v)})
		}
	}
	sortHeaders(headers)
	return Request{Method: "GET", URL: withQuery(registry.JoinPath(base, path), query), Header: headers}, nil
}

// chainEndpoint mirrors the executors' routing rule but never fails: it falls
// back to an {endpoint} placeholder.
func chainEndpoint(chains *registry.Registry, payload map[string]any, list func(registry.Chain) []string) string {
	if raw, ok := payload["endpoint"].(string); ok && strings.TrimSpace(raw) != "" {
		return strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	if chains != nil {
		if id, ok := payload["chain_id"]; ok && id != nil {
			if chain, ok := chains.Lookup(id); ok {
				if entries := list(chain); len(entries) > 0 {
					return strings.TrimRight(entries[0], "/")
				}
			}
		}
	}
	return "{endpoint}"
}

// credentialPlaceholders describes the first declared security requirement.
func credentialPlaceholders(ep *catalog.Endpoint, schemes map[string]*openapi3.SecurityScheme) ([]Header, map[string]string) {
	var headers []Header
	query := map[string]string{}
	if len(ep.Security) == 0 {
		return nil, query
	}
	for _, ref := range ep.Security[0] {
		scheme := schemes[ref.Name]
		if scheme == nil {
			continue
		}
		name := security.EnvName(ref.Name)
		switch strings.ToLower(scheme.Type) {
		case "apikey":
			marker := "<" + security.EnvAPIKey + name + ">"
			switch strings.ToLower(scheme.In) {
			case "query":
				query[scheme.Name] = marker
			case "cookie":
				headers = append(headers, Header{Name: "Cookie", Value: scheme.Name + "=" + marker})
			default:
				headers = append(headers, Header{Name: scheme.Name, Value: marker})
			}
		case "http":
			if strings.EqualFold(scheme.Scheme, "basic") {
				headers = append(headers, Header{Name: "Authorization",
					Value: "Basic <base64 " + security.EnvBasicUsername + name + ":" + security.EnvBasicPassword + name + ">"})
			} else {
				headers = append(headers, Header{Name: "Authorization", Value: "Bearer <" + security.EnvBearerToken + name + ">"})
			}
		case "oauth2":
			headers = append(headers, Header{Name: "Authorization", Value: "Bearer <" + security.EnvOAuthToken + name + ">"})
		case "openidconnect":
			headers = append(headers, Header{Name: "Authorization", Value: "Bearer <" + security.EnvOpenIDToken + name + ">"})
		}
	}
	return headers, query
}

func fillPath(path string, payload map[string]any, used map[string]bool) string {
	return placeholder.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := payload[name]
		if !ok || v == nil {
			return m
		}
		used[name] = true
		return url.PathEscape(stringify(v))
	})
}

func addQuery(q url.Values, name string, v any) {
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			q.Add(name, stringify(item))
		}
	default:
		q.Add(name, stringify(v))
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any, []any:
		buf, _ := json.Marshal(val)
		return string(buf)
	default:
		return fmt.Sprint(val)
	}
}

func withQuery(target string, q url.Values) string {
	if len(q) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	// Keep placeholders readable.
	encoded := strings.NewReplacer("%3C", "<", "%3E", ">").Replace(q.Encode())
	return target + sep + encoded
}

func indent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", clierr.Wrap(clierr.CodeInput, "encode snippet body", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func sortHeaders(headers []Header) {
	sort.SliceStable(headers, func(i, j int) bool { return headers[i].Name < headers[j].Name })
}

// Render produces the snippet text for one canonical or aliased language.
func Render(lang string, req Request) (string, error) {
	canonical, ok := NormalizeLanguage(lang)
	if !ok {
		return "", clierr.New(clierr.CodeInput,
			fmt.Sprintf("%s %q. Supported languages: %s", UnsupportedMessage, lang, strings.Join(Languages(), ", ")))
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, canonical, req); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "render snippet", err)
	}
	return buf.String(), nil
}

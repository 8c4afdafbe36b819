package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

// RequestBodyField carries an explicit request body inside a payload.
const RequestBodyField = "requestBody"

const formContentType = "application/x-www-form-urlencoded"

// API calls REST endpoints described by method, path template and execution params.
type API struct {
	http *httpx.Client
}

func NewAPI(client *httpx.Client) *API {
	return &API{http: client}
}

func (e *API) Name() string { return "api" }

func (e *API) Execute(ctx context.Context, req Request) (Result, error) {
	ep := req.Endpoint
	path, used, err := substitutePath(ep.Path, req.Payload)
	if err != nil {
		return Result{}, err
	}
	target := path
	if !isAbsoluteURL(path) {
		if strings.TrimSpace(req.BaseURL) == "" {
			return Result{}, clierr.New(clierr.CodeConfig, "no API base URL configured for "+req.Resource+"/"+req.Action)
		}
		target = registry.JoinPath(req.BaseURL, path)
	}

	query := url.Values{}
	for _, p := range ep.ParamsIn(catalog.InQuery) {
		used[p.Name] = true
		if v, ok := req.Payload[p.Name]; ok {
			addQuery(query, p.Name, v)
		}
	}
	headers := map[string]string{}
	for _, p := range ep.ParamsIn(catalog.InHeader) {
		used[p.Name] = true
		if v, ok := req.Payload[p.Name]; ok && v != nil {
			headers[p.Name] = stringify(v)
		}
	}
	for _, p := range ep.ParamsIn(catalog.InPath) {
		used[p.Name] = true
	}
	if target, err = withQuery(target, query); err != nil {
		return Result{}, err
	}

	out := outgoing{
		Method:     ep.Method,
		URL:        target,
		Headers:    headers,
		Decoration: req.Decoration,
	}
	if hasBody(ep) {
		body, ok := req.Payload[RequestBodyField]
		if !ok {
			rest := map[string]any{}
			for k, v := range req.Payload {
				if !used[k] {
					rest[k] = v
				}
			}
			if len(rest) > 0 {
				body = rest
			}
		}
		if body != nil {
			if out.Body, out.ContentType, err = encodeBody(ep.BodyContentType, body); err != nil {
				return Result{}, err
			}
		}
	}
	return send(ctx, e.http, out)
}

func hasBody(ep *catalog.Endpoint) bool {
	if ep.BodyContentType != "" {
		return true
	}
	switch ep.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func encodeBody(contentType string, body any) ([]byte, string, error) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == formContentType {
		obj, ok := body.(map[string]any)
		if !ok {
			return nil, "", clierr.New(clierr.CodeExecutor, "form request body must be an object")
		}
		form := url.Values{}
		for k, v := range obj {
			addQuery(form, k, v)
		}
		return []byte(form.Encode()), formContentType, nil
	}
	if ct == "" {
		ct = "application/json"
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, "", clierr.Wrap(clierr.CodeExecutor, "encode request body", err)
	}
	return buf, ct, nil
}

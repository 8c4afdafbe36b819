package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

// LCD calls arbitrary Cosmos REST routes.
type LCD struct {
	http   *httpx.Client
	chains *registry.Registry
}

func NewLCD(client *httpx.Client, chains *registry.Registry) *LCD {
	return &LCD{http: client, chains: chains}
}

func (e *LCD) Name() string { return "lcd" }

func (e *LCD) Execute(ctx context.Context, req Request) (Result, error) {
	path, _ := req.Payload["path"].(string)
	if strings.TrimSpace(path) == "" {
		return Result{}, clierr.New(clierr.CodeExecutor, "path is required for LCD calls")
	}
	method := http.MethodGet
	if raw, ok := req.Payload["method"].(string); ok && strings.TrimSpace(raw) != "" {
		method = strings.ToUpper(strings.TrimSpace(raw))
	}
	if method != http.MethodGet && method != http.MethodPost {
		return Result{}, clierr.New(clierr.CodeExecutor, "LCD method must be GET or POST, got "+method)
	}
	base, err := resolveEndpoint(e.chains, req.Payload, cosmosLCDKind)
	if err != nil {
		return Result{}, err
	}

	query := url.Values{}
	if raw, ok := req.Payload["query"]; ok && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return Result{}, clierr.New(clierr.CodeExecutor, "query must be an object")
		}
		for k, v := range obj {
			addQuery(query, k, v)
		}
	}
	target, err := withQuery(registry.JoinPath(base, path), query)
	if err != nil {
		return Result{}, err
	}

	out := outgoing{Method: method, URL: target, Decoration: req.Decoration}
	if method == http.MethodPost {
		body := req.Payload["body"]
		if body == nil {
			body = map[string]any{}
		}
		if _, ok := body.(map[string]any); !ok {
			return Result{}, clierr.New(clierr.CodeExecutor, "body must be an object")
		}
		if out.Body, err = json.Marshal(body); err != nil {
			return Result{}, clierr.Wrap(clierr.CodeExecutor, "encode LCD body", err)
		}
		out.ContentType = "application/json"
	}
	return send(ctx, e.http, out)
}

package executor

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ggonzalez94/insights-mcp/internal/catalog"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

// Gateway issues GET requests against a chain's search gateway.
type Gateway struct {
	http   *httpx.Client
	chains *registry.Registry
}

func NewGateway(client *httpx.Client, chains *registry.Registry) *Gateway {
	return &Gateway{http: client, chains: chains}
}

func (e *Gateway) Name() string { return "gateway" }

func (e *Gateway) Execute(ctx context.Context, req Request) (Result, error) {
	base, err := resolveEndpoint(e.chains, req.Payload, gatewayKind)
	if err != nil {
		return Result{}, err
	}
	path, _, err := substitutePath(req.Endpoint.Path, req.Payload)
	if err != nil {
		return Result{}, err
	}
	query := url.Values{}
	for _, p := range req.Endpoint.ParamsIn(catalog.InQuery) {
		if v, ok := req.Payload[p.Name]; ok {
			addQuery(query, p.Name, v)
		}
	}
	headers := map[string]string{}
	for _, p := range req.Endpoint.ParamsIn(catalog.InHeader) {
		if v, ok := req.Payload[p.Name]; ok && v != nil {
			headers[p.Name] = stringify(v)
		}
	}
	target, err := withQuery(registry.JoinPath(base, path), query)
	if err != nil {
		return Result{}, err
	}
	return send(ctx, e.http, outgoing{
		Method:     http.MethodGet,
		URL:        target,
		Headers:    headers,
		Decoration: req.Decoration,
	})
}

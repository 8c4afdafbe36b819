package executor

import (
	"context"
	"strings"

	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/registry"
)

type rpcEnvelope struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// RPC posts a JSON-RPC 2.0 request to an EVM or Cosmos node.
type RPC struct {
	http   *httpx.Client
	chains *registry.Registry
}

func NewRPC(client *httpx.Client, chains *registry.Registry) *RPC {
	return &RPC{http: client, chains: chains}
}

func (e *RPC) Name() string { return "rpc" }

// isCosmosCall selects the Cosmos endpoint list for actions like call_cosmos_rpc.
func isCosmosCall(action string) bool {
	lower := strings.ToLower(action)
	return strings.Contains(lower, "cosmos") || strings.Contains(lower, "tendermint")
}

func (e *RPC) Execute(ctx context.Context, req Request) (Result, error) {
	method, _ := req.Payload["rpc_method"].(string)
	if strings.TrimSpace(method) == "" {
		return Result{}, clierr.New(clierr.CodeExecutor, "rpc_method is required")
	}
	kind := evmRPCKind
	if isCosmosCall(req.Action) {
		kind = cosmosRPCKind
	}
	endpoint, err := resolveEndpoint(e.chains, req.Payload, kind)
	if err != nil {
		return Result{}, err
	}
	params, ok := req.Payload["params"]
	if !ok || params == nil {
		params = []any{}
	}
	envelope := rpcEnvelope{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	resp, err := e.http.PostJSON(ctx, endpoint, envelope, req.Decoration.Apply)
	if err != nil {
		return Result{}, err
	}
	return normalize(resp)
}
